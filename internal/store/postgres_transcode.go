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

func (p *Postgres) CreateJob(ctx context.Context, job *models.TranscodeJob) error {
	targetJSON, err := marshalJSON(job.Target)
	if err != nil {
		return err
	}
	query := `INSERT INTO transcode_jobs (
		id, session_id, media_part_id, state, target, seek_ms, output_dir,
		progress, last_ping_at, started_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)
	RETURNING last_ping_at, started_at`

	err = p.db.QueryRowContext(ctx, query,
		job.ID, job.SessionID, job.MediaPartID, job.State, targetJSON, job.SeekMs,
		job.OutputDir, job.Progress,
	).Scan(&job.LastPingAt, &job.StartedAt)
	if err != nil {
		return scanerr.TranscodeFailure(fmt.Errorf("create transcode job %s: %w", job.ID, err))
	}
	return nil
}

func (p *Postgres) GetJob(ctx context.Context, id uuid.UUID) (*models.TranscodeJob, error) {
	job, err := scanJob(p.db.QueryRowContext(ctx, `SELECT id, session_id, media_part_id, state,
		target, seek_ms, output_dir, progress, last_ping_at, error_message, started_at, completed_at
	FROM transcode_jobs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, scanerr.RecoverableIO(fmt.Errorf("get transcode job %s: %w", id, err))
	}
	return job, nil
}

// GetRunningJobForPart enforces spec.md §4.I's one-Running-job-per-
// (session,part) invariant: callers check this before starting a new job
// and cancel-and-restart if the target differs.
func (p *Postgres) GetRunningJobForPart(ctx context.Context, sessionID, mediaPartID uuid.UUID) (*models.TranscodeJob, error) {
	job, err := scanJob(p.db.QueryRowContext(ctx, `SELECT id, session_id, media_part_id, state,
		target, seek_ms, output_dir, progress, last_ping_at, error_message, started_at, completed_at
	FROM transcode_jobs WHERE session_id = $1 AND media_part_id = $2 AND state = $3`,
		sessionID, mediaPartID, models.TranscodeRunning))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, scanerr.RecoverableIO(fmt.Errorf("get running job for session %s part %s: %w", sessionID, mediaPartID, err))
	}
	return job, nil
}

func (p *Postgres) UpdateProgress(ctx context.Context, id uuid.UUID, progress float64, at time.Time) error {
	_, err := p.db.ExecContext(ctx, `UPDATE transcode_jobs
		SET progress = $1, last_ping_at = $2 WHERE id = $3`, progress, at, id)
	if err != nil {
		return scanerr.RecoverableIO(fmt.Errorf("update progress for job %s: %w", id, err))
	}
	return nil
}

func (p *Postgres) Transition(ctx context.Context, id uuid.UUID, state models.TranscodeState, errMsg string) error {
	query := `UPDATE transcode_jobs SET state = $1, error_message = $2, last_ping_at = CURRENT_TIMESTAMP`
	args := []any{state, errMsg}
	if state == models.TranscodeCompleted || state == models.TranscodeCancelled || state == models.TranscodeFailed {
		query += `, completed_at = CURRENT_TIMESTAMP`
	}
	query += ` WHERE id = $3`
	args = append(args, id)

	_, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return scanerr.TranscodeFailure(fmt.Errorf("transition job %s to %s: %w", id, state, err))
	}
	return nil
}

// ListStaleHeartbeats returns every Running job whose last_ping_at predates
// olderThan, for the supervisor's reaper tick (spec.md §4.I).
func (p *Postgres) ListStaleHeartbeats(ctx context.Context, olderThan time.Time) ([]*models.TranscodeJob, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, session_id, media_part_id, state, target,
		seek_ms, output_dir, progress, last_ping_at, error_message, started_at, completed_at
	FROM transcode_jobs WHERE state = $1 AND last_ping_at < $2`, models.TranscodeRunning, olderThan)
	if err != nil {
		return nil, scanerr.RecoverableIO(fmt.Errorf("list stale heartbeats: %w", err))
	}
	defer rows.Close()

	var jobs []*models.TranscodeJob
	for rows.Next() {
		job := &models.TranscodeJob{}
		var targetJSON []byte
		if err := rows.Scan(&job.ID, &job.SessionID, &job.MediaPartID, &job.State, &targetJSON,
			&job.SeekMs, &job.OutputDir, &job.Progress, &job.LastPingAt, &job.ErrorMessage,
			&job.StartedAt, &job.CompletedAt); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(targetJSON, &job.Target); err != nil {
			return nil, fmt.Errorf("unmarshal target for job %s: %w", job.ID, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.TranscodeJob, error) {
	job := &models.TranscodeJob{}
	var targetJSON []byte
	err := row.Scan(&job.ID, &job.SessionID, &job.MediaPartID, &job.State, &targetJSON,
		&job.SeekMs, &job.OutputDir, &job.Progress, &job.LastPingAt, &job.ErrorMessage,
		&job.StartedAt, &job.CompletedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(targetJSON, &job.Target); err != nil {
		return nil, fmt.Errorf("unmarshal target for job %s: %w", job.ID, err)
	}
	return job, nil
}
