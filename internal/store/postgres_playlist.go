package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cinevault/core/internal/models"
	"github.com/cinevault/core/internal/scanerr"
)

func (p *Postgres) CreateGenerator(ctx context.Context, g *models.PlaylistGenerator) error {
	seedJSON, err := marshalJSON(g.Seed)
	if err != nil {
		return err
	}
	query := `INSERT INTO playlist_generators (
		public_id, session_id, seed, cursor, repeat, shuffle, shuffle_state,
		expires_at, chunk_size, total_count
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	_, err = p.db.ExecContext(ctx, query,
		g.PublicID, g.SessionID, seedJSON, g.Cursor, g.Repeat, g.Shuffle, g.ShuffleState,
		g.ExpiresAt, g.ChunkSize, g.TotalCount)
	if err != nil {
		return scanerr.RecoverableIO(fmt.Errorf("create playlist generator %s: %w", g.PublicID, err))
	}
	return nil
}

func (p *Postgres) GetGenerator(ctx context.Context, publicID uuid.UUID) (*models.PlaylistGenerator, error) {
	g := &models.PlaylistGenerator{}
	var seedJSON []byte
	err := p.db.QueryRowContext(ctx, `SELECT public_id, session_id, seed, cursor, repeat, shuffle,
		shuffle_state, expires_at, chunk_size, total_count
	FROM playlist_generators WHERE public_id = $1`, publicID).Scan(
		&g.PublicID, &g.SessionID, &seedJSON, &g.Cursor, &g.Repeat, &g.Shuffle,
		&g.ShuffleState, &g.ExpiresAt, &g.ChunkSize, &g.TotalCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, scanerr.RecoverableIO(fmt.Errorf("get playlist generator %s: %w", publicID, err))
	}
	if err := unmarshalJSON(seedJSON, &g.Seed); err != nil {
		return nil, fmt.Errorf("unmarshal seed for generator %s: %w", publicID, err)
	}
	return g, nil
}

// AdvanceCursor sets the generator's cursor to newCursor; callers are
// responsible for wrapping it modulo TotalCount when Repeat is set
// (spec.md §4.M — that arithmetic belongs to internal/playlist, not here).
func (p *Postgres) AdvanceCursor(ctx context.Context, publicID uuid.UUID, newCursor int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE playlist_generators SET cursor = $1 WHERE public_id = $2`,
		newCursor, publicID)
	if err != nil {
		return scanerr.RecoverableIO(fmt.Errorf("advance cursor for generator %s: %w", publicID, err))
	}
	return nil
}

func (p *Postgres) TouchExpiry(ctx context.Context, publicID uuid.UUID, expiresAt time.Time) error {
	_, err := p.db.ExecContext(ctx, `UPDATE playlist_generators SET expires_at = $1 WHERE public_id = $2`,
		expiresAt, publicID)
	if err != nil {
		return scanerr.RecoverableIO(fmt.Errorf("touch expiry for generator %s: %w", publicID, err))
	}
	return nil
}

func (p *Postgres) ReplaceItems(ctx context.Context, generatorID uuid.UUID, items []*models.PlaylistGeneratorItem) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return scanerr.RecoverableIO(fmt.Errorf("begin replace playlist items tx: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM playlist_generator_items WHERE generator_id = $1`, generatorID); err != nil {
		return scanerr.RecoverableIO(fmt.Errorf("clear playlist items for %s: %w", generatorID, err))
	}
	for _, item := range items {
		_, err := tx.ExecContext(ctx, `INSERT INTO playlist_generator_items (
			generator_id, metadata_item_id, media_item_id, media_part_id, sort_order, served, cohort
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			generatorID, item.MetadataItemID, item.MediaItemID, item.MediaPartID,
			item.SortOrder, item.Served, item.Cohort)
		if err != nil {
			return scanerr.RecoverableIO(fmt.Errorf("insert playlist item %d for %s: %w", item.SortOrder, generatorID, err))
		}
	}
	return tx.Commit()
}

func (p *Postgres) ListItemsRange(ctx context.Context, generatorID uuid.UUID, offset, limit int) ([]*models.PlaylistGeneratorItem, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT generator_id, metadata_item_id, media_item_id,
		media_part_id, sort_order, served, cohort
	FROM playlist_generator_items WHERE generator_id = $1
	ORDER BY sort_order OFFSET $2 LIMIT $3`, generatorID, offset, limit)
	if err != nil {
		return nil, scanerr.RecoverableIO(fmt.Errorf("list playlist items for %s: %w", generatorID, err))
	}
	defer rows.Close()

	var items []*models.PlaylistGeneratorItem
	for rows.Next() {
		item := &models.PlaylistGeneratorItem{}
		if err := rows.Scan(&item.GeneratorID, &item.MetadataItemID, &item.MediaItemID,
			&item.MediaPartID, &item.SortOrder, &item.Served, &item.Cohort); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (p *Postgres) MarkServed(ctx context.Context, generatorID uuid.UUID, sortOrder int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE playlist_generator_items
		SET served = true WHERE generator_id = $1 AND sort_order = $2`, generatorID, sortOrder)
	if err != nil {
		return scanerr.RecoverableIO(fmt.Errorf("mark served generator %s item %d: %w", generatorID, sortOrder, err))
	}
	return nil
}
