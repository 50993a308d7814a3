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

func (p *Postgres) CreateSession(ctx context.Context, s *models.PlaybackSession) error {
	capJSON, err := marshalJSON(s.Capability)
	if err != nil {
		return err
	}
	query := `INSERT INTO playback_sessions (
		id, user_session_id, capability, current_item_id, current_part_id,
		playhead_ms, state, last_heartbeat_at, expires_at, playlist_generator_id
	) VALUES ($1,$2,$3,$4,$5,$6,$7,CURRENT_TIMESTAMP,$8,$9)
	RETURNING last_heartbeat_at`

	err = p.db.QueryRowContext(ctx, query,
		s.ID, s.UserSessionID, capJSON, s.CurrentItemID, s.CurrentPartID,
		s.PlayheadMs, s.State, s.ExpiresAt, s.PlaylistGeneratorID,
	).Scan(&s.LastHeartbeatAt)
	if err != nil {
		return scanerr.RecoverableIO(fmt.Errorf("create session %s: %w", s.ID, err))
	}
	return nil
}

func (p *Postgres) GetSession(ctx context.Context, id uuid.UUID) (*models.PlaybackSession, error) {
	s := &models.PlaybackSession{}
	var capJSON []byte
	err := p.db.QueryRowContext(ctx, `SELECT id, user_session_id, capability, current_item_id,
		current_part_id, playhead_ms, state, last_heartbeat_at, expires_at, playlist_generator_id
	FROM playback_sessions WHERE id = $1`, id).Scan(
		&s.ID, &s.UserSessionID, &capJSON, &s.CurrentItemID, &s.CurrentPartID,
		&s.PlayheadMs, &s.State, &s.LastHeartbeatAt, &s.ExpiresAt, &s.PlaylistGeneratorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, scanerr.RecoverableIO(fmt.Errorf("get session %s: %w", id, err))
	}
	if err := unmarshalJSON(capJSON, &s.Capability); err != nil {
		return nil, fmt.Errorf("unmarshal capability for session %s: %w", id, err)
	}
	return s, nil
}

func (p *Postgres) UpdateHeartbeat(ctx context.Context, id uuid.UUID, playheadMs int64, state models.SessionState, at time.Time) error {
	_, err := p.db.ExecContext(ctx, `UPDATE playback_sessions
		SET playhead_ms = $1, state = $2, last_heartbeat_at = $3 WHERE id = $4`,
		playheadMs, state, at, id)
	if err != nil {
		return scanerr.RecoverableIO(fmt.Errorf("update heartbeat for session %s: %w", id, err))
	}
	return nil
}

func (p *Postgres) SetCurrentPart(ctx context.Context, id uuid.UUID, itemID, partID uuid.UUID) error {
	_, err := p.db.ExecContext(ctx, `UPDATE playback_sessions
		SET current_item_id = $1, current_part_id = $2 WHERE id = $3`, itemID, partID, id)
	if err != nil {
		return scanerr.RecoverableIO(fmt.Errorf("set current part for session %s: %w", id, err))
	}
	return nil
}

// ExpireStaleSessions marks every session whose last heartbeat predates
// olderThan as stopped and returns their ids, so the caller can cancel any
// transcode jobs still bound to them.
func (p *Postgres) ExpireStaleSessions(ctx context.Context, olderThan time.Time) ([]uuid.UUID, error) {
	rows, err := p.db.QueryContext(ctx, `UPDATE playback_sessions
		SET state = $1 WHERE last_heartbeat_at < $2 AND state != $1
		RETURNING id`, models.SessionStopped, olderThan)
	if err != nil {
		return nil, scanerr.RecoverableIO(fmt.Errorf("expire stale sessions: %w", err))
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
	return ids, rows.Err()
}
