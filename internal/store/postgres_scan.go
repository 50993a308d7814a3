package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/cinevault/core/internal/models"
	"github.com/cinevault/core/internal/scanerr"
	"github.com/cinevault/core/internal/scanpipe"
)

func (p *Postgres) CreateScan(ctx context.Context, scan *models.LibraryScan) error {
	cursorJSON, err := marshalJSON(scan.Cursor)
	if err != nil {
		return err
	}
	query := `INSERT INTO library_scans (
		id, library_id, status, files_found, files_added, files_skipped,
		cursor, checkpoint_version, last_checkpoint_at, started_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)
	RETURNING started_at, last_checkpoint_at`

	err = p.db.QueryRowContext(ctx, query,
		scan.ID, scan.LibraryID, scan.Status, scan.FilesFound, scan.FilesAdded, scan.FilesSkipped,
		cursorJSON, scan.CheckpointVersion,
	).Scan(&scan.StartedAt, &scan.LastCheckpointAt)
	if err != nil {
		return scanerr.Fatal(fmt.Errorf("create scan %s: %w", scan.ID, err))
	}
	return nil
}

// SaveCheckpoint implements the scanpipe.Store contract's conditional
// checkpoint write (spec.md §4.E): the UPDATE only matches a row whose
// checkpoint_version still equals expectedVersion, so a concurrent writer
// racing on a stale snapshot loses instead of silently overwriting a newer
// cursor. On success it returns the bumped version the caller should use
// for its next call.
func (p *Postgres) SaveCheckpoint(ctx context.Context, scanID uuid.UUID, cursor models.ResumeCursor, expectedVersion int64) (int64, error) {
	cursorJSON, err := marshalJSON(cursor)
	if err != nil {
		return 0, err
	}
	res, err := p.db.ExecContext(ctx, `UPDATE library_scans
		SET cursor = $1, checkpoint_version = checkpoint_version + 1, last_checkpoint_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND checkpoint_version = $3`,
		cursorJSON, scanID, expectedVersion)
	if err != nil {
		return 0, scanerr.Fatal(fmt.Errorf("save checkpoint for scan %s: %w", scanID, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, scanerr.Fatal(fmt.Errorf("save checkpoint rows affected for scan %s: %w", scanID, err))
	}
	if n == 0 {
		return 0, ErrCheckpointConflict
	}
	return expectedVersion + 1, nil
}

func (p *Postgres) GetScan(ctx context.Context, id uuid.UUID) (*models.LibraryScan, error) {
	scan := &models.LibraryScan{}
	var cursorJSON []byte
	err := p.db.QueryRowContext(ctx, `SELECT id, library_id, status, files_found, files_added,
		files_skipped, cursor, checkpoint_version, last_checkpoint_at, started_at, completed_at
	FROM library_scans WHERE id = $1`, id).Scan(
		&scan.ID, &scan.LibraryID, &scan.Status, &scan.FilesFound, &scan.FilesAdded,
		&scan.FilesSkipped, &cursorJSON, &scan.CheckpointVersion, &scan.LastCheckpointAt,
		&scan.StartedAt, &scan.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, scanerr.RecoverableIO(fmt.Errorf("get scan %s: %w", id, err))
	}
	if err := unmarshalJSON(cursorJSON, &scan.Cursor); err != nil {
		return nil, fmt.Errorf("unmarshal scan cursor %s: %w", id, err)
	}
	return scan, nil
}

// LoadScan satisfies scanpipe.Store: a by-value variant of GetScan, since
// the pipeline only ever reads a scan's cursor, never mutates the pointer
// it got back.
func (p *Postgres) LoadScan(ctx context.Context, scanID uuid.UUID) (models.LibraryScan, error) {
	scan, err := p.GetScan(ctx, scanID)
	if err != nil {
		return models.LibraryScan{}, err
	}
	return *scan, nil
}

func (p *Postgres) CompleteScan(ctx context.Context, id uuid.UUID, status models.ScanStatus, errs []string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE library_scans
		SET status = $1, errors = $2, completed_at = CURRENT_TIMESTAMP WHERE id = $3`,
		status, pq.Array(errs), id)
	if err != nil {
		return scanerr.Fatal(fmt.Errorf("complete scan %s: %w", id, err))
	}
	return nil
}

// RecordSeenPaths satisfies scanpipe.Store: a batched insert of every path
// ScanContext flushed this round (spec.md §4.E P4).
func (p *Postgres) RecordSeenPaths(ctx context.Context, scanID uuid.UUID, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return scanerr.RecoverableIO(fmt.Errorf("begin record seen paths tx: %w", err))
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO library_scan_seen_paths (scan_id, file_path)
		VALUES ($1, $2) ON CONFLICT (scan_id, file_path) DO NOTHING`)
	if err != nil {
		return scanerr.RecoverableIO(fmt.Errorf("prepare record seen paths: %w", err))
	}
	defer stmt.Close()

	for _, path := range paths {
		if _, err := stmt.ExecContext(ctx, scanID, path); err != nil {
			return scanerr.RecoverableIO(fmt.Errorf("record seen path %s for scan %s: %w", path, scanID, err))
		}
	}
	return tx.Commit()
}

// ExistingStats satisfies scanpipe.Store's change-detection lookup: every
// already-persisted MediaPart's size/mtime under librarySectionID, keyed
// by file path, so the ChangeDetection stage can diff a freshly stat'd
// entry against it without N+1 queries.
func (p *Postgres) ExistingStats(ctx context.Context, librarySectionID uuid.UUID) (map[string]scanpipe.StatSnapshot, error) {
	query := `SELECT mp.file_path, mp.size_bytes, mp.modified_at
	FROM media_parts mp
	JOIN media_items mi ON mi.id = mp.media_item_id
	JOIN metadata_items meta ON meta.id = mi.metadata_item_id
	WHERE meta.library_id = $1`
	rows, err := p.db.QueryContext(ctx, query, librarySectionID)
	if err != nil {
		return nil, scanerr.RecoverableIO(fmt.Errorf("existing stats for library %s: %w", librarySectionID, err))
	}
	defer rows.Close()

	out := make(map[string]scanpipe.StatSnapshot)
	for rows.Next() {
		var path string
		var snap scanpipe.StatSnapshot
		if err := rows.Scan(&path, &snap.Size, &snap.ModTime); err != nil {
			return nil, err
		}
		out[path] = snap
	}
	return out, rows.Err()
}

// ReconcileOrphans satisfies scanpipe.Store: it soft-deletes every
// MetadataItem under librarySectionID none of whose MediaParts were
// recorded as seen during scanID, and returns how many were deleted
// (spec.md §4.E reconcile stage).
func (p *Postgres) ReconcileOrphans(ctx context.Context, librarySectionID, scanID uuid.UUID) (int, error) {
	query := `WITH orphaned AS (
		SELECT meta.id AS metadata_item_id
		FROM media_parts mp
		JOIN media_items mi ON mi.id = mp.media_item_id
		JOIN metadata_items meta ON meta.id = mi.metadata_item_id
		LEFT JOIN library_scan_seen_paths sp
		  ON sp.scan_id = $2 AND sp.file_path = mp.file_path
		WHERE meta.library_id = $1
		  AND meta.deleted_at IS NULL
		GROUP BY meta.id
		HAVING bool_and(sp.file_path IS NULL)
	)
	UPDATE metadata_items SET deleted_at = CURRENT_TIMESTAMP
	WHERE id IN (SELECT metadata_item_id FROM orphaned)`

	res, err := p.db.ExecContext(ctx, query, librarySectionID, scanID)
	if err != nil {
		return 0, scanerr.Fatal(fmt.Errorf("reconcile orphans for library %s scan %s: %w", librarySectionID, scanID, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, scanerr.Fatal(fmt.Errorf("reconcile orphans rows affected: %w", err))
	}
	return int(n), nil
}
