package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/cinevault/core/internal/models"
	"github.com/cinevault/core/internal/scanerr"
)

func (p *Postgres) UpsertMediaItem(ctx context.Context, mi *models.MediaItem) error {
	query := `INSERT INTO media_items (
		id, metadata_item_id, container, video_codec, audio_codec, resolution,
		width, height, dynamic_range, hdr_format, file_size_bytes
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	ON CONFLICT (id) DO UPDATE SET
		container = EXCLUDED.container, video_codec = EXCLUDED.video_codec,
		audio_codec = EXCLUDED.audio_codec, resolution = EXCLUDED.resolution,
		width = EXCLUDED.width, height = EXCLUDED.height,
		dynamic_range = EXCLUDED.dynamic_range, hdr_format = EXCLUDED.hdr_format,
		file_size_bytes = EXCLUDED.file_size_bytes, updated_at = CURRENT_TIMESTAMP
	RETURNING created_at, updated_at`

	err := p.db.QueryRowContext(ctx, query,
		mi.ID, mi.MetadataItemID, mi.Container, mi.VideoCodec, mi.AudioCodec, mi.Resolution,
		mi.Width, mi.Height, mi.DynamicRange, mi.HDRFormat, mi.FileSizeBytes,
	).Scan(&mi.CreatedAt, &mi.UpdatedAt)
	if err != nil {
		return scanerr.RecoverableIO(fmt.Errorf("upsert media item %s: %w", mi.ID, err))
	}
	return nil
}

func (p *Postgres) GetMediaItem(ctx context.Context, metadataItemID uuid.UUID) (*models.MediaItem, error) {
	query := `SELECT id, metadata_item_id, container, video_codec, audio_codec, resolution,
		width, height, dynamic_range, hdr_format, file_size_bytes, created_at, updated_at
	FROM media_items WHERE metadata_item_id = $1`

	mi := &models.MediaItem{}
	err := p.db.QueryRowContext(ctx, query, metadataItemID).Scan(
		&mi.ID, &mi.MetadataItemID, &mi.Container, &mi.VideoCodec, &mi.AudioCodec, &mi.Resolution,
		&mi.Width, &mi.Height, &mi.DynamicRange, &mi.HDRFormat, &mi.FileSizeBytes, &mi.CreatedAt, &mi.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, scanerr.RecoverableIO(fmt.Errorf("get media item for %s: %w", metadataItemID, err))
	}
	return mi, nil
}

func (p *Postgres) UpsertMediaPart(ctx context.Context, part *models.MediaPart) error {
	query := `INSERT INTO media_parts (
		id, media_item_id, part_index, file_path, size_bytes, modified_at, hash, duration_ms, bitrate_bps
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	ON CONFLICT (media_item_id, part_index) DO UPDATE SET
		file_path = EXCLUDED.file_path, size_bytes = EXCLUDED.size_bytes,
		modified_at = EXCLUDED.modified_at, hash = EXCLUDED.hash,
		duration_ms = EXCLUDED.duration_ms, bitrate_bps = EXCLUDED.bitrate_bps
	RETURNING id`

	return p.db.QueryRowContext(ctx, query,
		part.ID, part.MediaItemID, part.PartIndex, part.FilePath, part.SizeBytes,
		part.ModifiedAt, part.Hash, part.DurationMs, part.BitrateBps,
	).Scan(&part.ID)
}

func (p *Postgres) ListMediaParts(ctx context.Context, mediaItemID uuid.UUID) ([]*models.MediaPart, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, media_item_id, part_index, file_path, size_bytes,
		modified_at, hash, duration_ms, bitrate_bps
	FROM media_parts WHERE media_item_id = $1 ORDER BY part_index`, mediaItemID)
	if err != nil {
		return nil, scanerr.RecoverableIO(fmt.Errorf("list media parts for %s: %w", mediaItemID, err))
	}
	defer rows.Close()

	var parts []*models.MediaPart
	for rows.Next() {
		part := &models.MediaPart{}
		if err := rows.Scan(&part.ID, &part.MediaItemID, &part.PartIndex, &part.FilePath, &part.SizeBytes,
			&part.ModifiedAt, &part.Hash, &part.DurationMs, &part.BitrateBps); err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, rows.Err()
}

func (p *Postgres) GetMediaPart(ctx context.Context, id uuid.UUID) (*models.MediaPart, error) {
	part := &models.MediaPart{}
	err := p.db.QueryRowContext(ctx, `SELECT id, media_item_id, part_index, file_path, size_bytes,
		modified_at, hash, duration_ms, bitrate_bps FROM media_parts WHERE id = $1`, id).Scan(
		&part.ID, &part.MediaItemID, &part.PartIndex, &part.FilePath, &part.SizeBytes,
		&part.ModifiedAt, &part.Hash, &part.DurationMs, &part.BitrateBps)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, scanerr.RecoverableIO(fmt.Errorf("get media part %s: %w", id, err))
	}
	return part, nil
}

func (p *Postgres) DeleteMediaPart(ctx context.Context, id uuid.UUID) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM media_parts WHERE id = $1`, id)
	if err != nil {
		return scanerr.RecoverableIO(fmt.Errorf("delete media part %s: %w", id, err))
	}
	return nil
}

func (p *Postgres) ReplaceMediaStreams(ctx context.Context, partID uuid.UUID, streams []*models.MediaStream) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return scanerr.RecoverableIO(fmt.Errorf("begin replace streams tx: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM media_streams WHERE media_part_id = $1`, partID); err != nil {
		return scanerr.RecoverableIO(fmt.Errorf("clear streams for %s: %w", partID, err))
	}
	for _, s := range streams {
		_, err := tx.ExecContext(ctx, `INSERT INTO media_streams (
			id, media_part_id, kind, stream_index, codec, profile, language, title,
			channels, channel_layout, sample_rate_hz, bitrate_bps, width, height,
			is_default, is_forced, is_sdh, external_file_path
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
			s.ID, partID, s.Kind, s.StreamIndex, s.Codec, s.Profile, s.Language, s.Title,
			s.Channels, s.ChannelLayout, s.SampleRateHz, s.BitrateBps, s.Width, s.Height,
			s.IsDefault, s.IsForced, s.IsSDH, s.ExternalFilePath)
		if err != nil {
			return scanerr.RecoverableIO(fmt.Errorf("insert stream %d for %s: %w", s.StreamIndex, partID, err))
		}
	}
	return tx.Commit()
}

func (p *Postgres) ListMediaStreams(ctx context.Context, partID uuid.UUID) ([]*models.MediaStream, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, media_part_id, kind, stream_index, codec, profile,
		language, title, channels, channel_layout, sample_rate_hz, bitrate_bps, width, height,
		is_default, is_forced, is_sdh, external_file_path
	FROM media_streams WHERE media_part_id = $1 ORDER BY stream_index`, partID)
	if err != nil {
		return nil, scanerr.RecoverableIO(fmt.Errorf("list streams for %s: %w", partID, err))
	}
	defer rows.Close()

	var streams []*models.MediaStream
	for rows.Next() {
		s := &models.MediaStream{}
		if err := rows.Scan(&s.ID, &s.MediaPartID, &s.Kind, &s.StreamIndex, &s.Codec, &s.Profile,
			&s.Language, &s.Title, &s.Channels, &s.ChannelLayout, &s.SampleRateHz, &s.BitrateBps,
			&s.Width, &s.Height, &s.IsDefault, &s.IsForced, &s.IsSDH, &s.ExternalFilePath); err != nil {
			return nil, err
		}
		streams = append(streams, s)
	}
	return streams, rows.Err()
}
