package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/cinevault/core/internal/models"
	"github.com/cinevault/core/internal/scanerr"
)

// ErrNotFound is returned by single-row lookups that matched no row,
// mirroring the teacher's plain fmt.Errorf("job not found") but as a
// sentinel so callers can errors.Is it.
var ErrNotFound = errors.New("store: not found")

// ErrCheckpointConflict is returned by SaveCheckpoint when the stored
// checkpoint_version does not equal the caller's expectedVersion
// (spec.md §4.E's fail-fast conditional write).
var ErrCheckpointConflict = errors.New("store: checkpoint version conflict")

// Postgres implements Store over database/sql + lib/pq, following the
// teacher's internal/repository/job_repository.go: no ORM, explicit column
// lists, QueryRow().Scan() / rows.Scan().
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an already-connected *sql.DB (see internal/db.Connect).
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

var _ Store = (*Postgres)(nil)

func marshalJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return b, nil
}

func unmarshalJSON(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

// ──────────────────── MetadataStore ────────────────────

func (p *Postgres) UpsertMetadataItem(ctx context.Context, item *models.MetadataItem) error {
	query := `INSERT INTO metadata_items (
		id, kind, title, sort_title, original_title, summary, tagline,
		content_rating, content_rating_age, release_date, year,
		parent_index, absolute_index, duration_ms, parent_id, library_id,
		locked_fields, source, created_at, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,
		COALESCE($19, CURRENT_TIMESTAMP), CURRENT_TIMESTAMP)
	ON CONFLICT (id) DO UPDATE SET
		title = EXCLUDED.title, sort_title = EXCLUDED.sort_title,
		original_title = EXCLUDED.original_title, summary = EXCLUDED.summary,
		tagline = EXCLUDED.tagline, content_rating = EXCLUDED.content_rating,
		content_rating_age = EXCLUDED.content_rating_age,
		release_date = EXCLUDED.release_date, year = EXCLUDED.year,
		parent_index = EXCLUDED.parent_index, absolute_index = EXCLUDED.absolute_index,
		duration_ms = EXCLUDED.duration_ms, parent_id = EXCLUDED.parent_id,
		locked_fields = EXCLUDED.locked_fields, source = EXCLUDED.source,
		updated_at = CURRENT_TIMESTAMP
	RETURNING created_at, updated_at`

	var createdAt *time.Time
	if !item.CreatedAt.IsZero() {
		createdAt = &item.CreatedAt
	}
	err := p.db.QueryRowContext(ctx, query,
		item.ID, item.Kind, item.Title, item.SortTitle, item.OriginalTitle, item.Summary, item.Tagline,
		item.ContentRating, item.ContentRatingAge, item.ReleaseDate, item.Year,
		item.ParentIndex, item.AbsoluteIndex, item.DurationMs, item.ParentID, item.LibraryID,
		pq.Array(item.LockedFields), item.Source, createdAt,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return scanerr.RecoverableIO(fmt.Errorf("upsert metadata item %s: %w", item.ID, err))
	}
	return nil
}

func (p *Postgres) GetMetadataItem(ctx context.Context, id uuid.UUID) (*models.MetadataItem, error) {
	query := `SELECT id, kind, title, sort_title, original_title, summary, tagline,
		content_rating, content_rating_age, release_date, year,
		parent_index, absolute_index, duration_ms, parent_id, library_id,
		locked_fields, source, deleted_at, created_at, updated_at
	FROM metadata_items WHERE id = $1`

	item := &models.MetadataItem{}
	var lockedFields pq.StringArray
	err := p.db.QueryRowContext(ctx, query, id).Scan(
		&item.ID, &item.Kind, &item.Title, &item.SortTitle, &item.OriginalTitle, &item.Summary, &item.Tagline,
		&item.ContentRating, &item.ContentRatingAge, &item.ReleaseDate, &item.Year,
		&item.ParentIndex, &item.AbsoluteIndex, &item.DurationMs, &item.ParentID, &item.LibraryID,
		&lockedFields, &item.Source, &item.DeletedAt, &item.CreatedAt, &item.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, scanerr.RecoverableIO(fmt.Errorf("get metadata item %s: %w", id, err))
	}
	item.LockedFields = lockedFields

	item.ExternalIDs, err = p.listExternalIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// FindByExternalID scopes the lookup to librarySectionID so two libraries
// never implicitly merge an item sharing the same external id (spec.md
// §4.F's dedup invariant).
func (p *Postgres) FindByExternalID(ctx context.Context, kind models.ItemKind, provider, value string, librarySectionID uuid.UUID) (*models.MetadataItem, error) {
	query := `SELECT x.item_id FROM metadata_external_ids x
		JOIN metadata_items m ON m.id = x.item_id
		WHERE x.kind = $1 AND x.provider = $2 AND x.value = $3 AND m.library_id = $4`
	var id uuid.UUID
	err := p.db.QueryRowContext(ctx, query, kind, provider, value, librarySectionID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, scanerr.RecoverableIO(fmt.Errorf("find by external id %s:%s: %w", provider, value, err))
	}
	return p.GetMetadataItem(ctx, id)
}

func (p *Postgres) ListChildren(ctx context.Context, parentID uuid.UUID) ([]*models.MetadataItem, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id FROM metadata_items
		WHERE parent_id = $1 AND deleted_at IS NULL ORDER BY parent_index NULLS LAST`, parentID)
	if err != nil {
		return nil, scanerr.RecoverableIO(fmt.Errorf("list children of %s: %w", parentID, err))
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items := make([]*models.MetadataItem, 0, len(ids))
	for _, id := range ids {
		item, err := p.GetMetadataItem(ctx, id)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (p *Postgres) SoftDelete(ctx context.Context, id uuid.UUID) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE metadata_items SET deleted_at = CURRENT_TIMESTAMP WHERE id = $1`, id)
	if err != nil {
		return scanerr.RecoverableIO(fmt.Errorf("soft delete %s: %w", id, err))
	}
	return nil
}

func (p *Postgres) listExternalIDs(ctx context.Context, itemID uuid.UUID) ([]models.ExternalIdentifier, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT provider, value FROM metadata_external_ids WHERE item_id = $1`, itemID)
	if err != nil {
		return nil, scanerr.RecoverableIO(fmt.Errorf("list external ids for %s: %w", itemID, err))
	}
	defer rows.Close()

	var ids []models.ExternalIdentifier
	for rows.Next() {
		var e models.ExternalIdentifier
		if err := rows.Scan(&e.Provider, &e.Value); err != nil {
			return nil, err
		}
		ids = append(ids, e)
	}
	return ids, rows.Err()
}

func (p *Postgres) AddExternalIDs(ctx context.Context, itemID uuid.UUID, ids []models.ExternalIdentifier) error {
	for _, id := range ids {
		_, err := p.db.ExecContext(ctx, `INSERT INTO metadata_external_ids (item_id, kind, provider, value)
			SELECT $1::uuid, kind, $2::text, $3::text FROM metadata_items WHERE id = $1::uuid
			ON CONFLICT (item_id, provider) DO UPDATE SET value = EXCLUDED.value`,
			itemID, id.Provider, id.Value)
		if err != nil {
			return scanerr.RecoverableIO(fmt.Errorf("add external id %s:%s for %s: %w", id.Provider, id.Value, itemID, err))
		}
	}
	return nil
}

func (p *Postgres) SetGenres(ctx context.Context, itemID uuid.UUID, genres []models.GenreEdge) error {
	names := make([]string, len(genres))
	for i, g := range genres {
		names[i] = g.Name
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return scanerr.RecoverableIO(fmt.Errorf("begin set genres tx: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM metadata_item_genres WHERE item_id = $1`, itemID); err != nil {
		return scanerr.RecoverableIO(fmt.Errorf("clear genres for %s: %w", itemID, err))
	}
	for _, name := range names {
		if _, err := tx.ExecContext(ctx, `INSERT INTO metadata_item_genres (item_id, name) VALUES ($1, $2)`, itemID, name); err != nil {
			return scanerr.RecoverableIO(fmt.Errorf("insert genre %q for %s: %w", name, itemID, err))
		}
	}
	return tx.Commit()
}

func (p *Postgres) SetTags(ctx context.Context, itemID uuid.UUID, tags []models.TagEdge) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return scanerr.RecoverableIO(fmt.Errorf("begin set tags tx: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM metadata_item_tags WHERE item_id = $1`, itemID); err != nil {
		return scanerr.RecoverableIO(fmt.Errorf("clear tags for %s: %w", itemID, err))
	}
	for _, t := range tags {
		if _, err := tx.ExecContext(ctx, `INSERT INTO metadata_item_tags (item_id, name) VALUES ($1, $2)`, itemID, t.Name); err != nil {
			return scanerr.RecoverableIO(fmt.Errorf("insert tag %q for %s: %w", t.Name, itemID, err))
		}
	}
	return tx.Commit()
}

func (p *Postgres) AddRelation(ctx context.Context, fromID uuid.UUID, rel models.Relation) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO metadata_relations (from_id, to_id, type, pending)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (from_id, to_id, type) DO UPDATE SET pending = EXCLUDED.pending`,
		fromID, rel.TargetID, rel.Type, rel.Pending)
	if err != nil {
		return scanerr.RecoverableIO(fmt.Errorf("add relation %s->%s: %w", fromID, rel.TargetID, err))
	}
	return nil
}
