// Package store is the change-data contract (spec.md §4.N): Go interfaces
// over every persisted entity in internal/models, plus a Postgres
// implementation.
//
// The interfaces exist so the scan pipeline, playback/transcode engines,
// and playlist generator depend on behavior, not on database/sql directly
// — the scanpipe package's fakeStore test double is the pattern this
// mirrors. The Postgres implementation is grounded directly on the
// teacher's internal/repository/job_repository.go: manual column lists,
// QueryRow().Scan() for single rows, rows.Scan() loops for sets, no ORM.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cinevault/core/internal/models"
	"github.com/cinevault/core/internal/scanpipe"
)

// MetadataStore persists the metadata graph (spec.md §3, §4.F).
type MetadataStore interface {
	UpsertMetadataItem(ctx context.Context, item *models.MetadataItem) error
	GetMetadataItem(ctx context.Context, id uuid.UUID) (*models.MetadataItem, error)
	FindByExternalID(ctx context.Context, kind models.ItemKind, provider, value string, librarySectionID uuid.UUID) (*models.MetadataItem, error)
	ListChildren(ctx context.Context, parentID uuid.UUID) ([]*models.MetadataItem, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error

	AddExternalIDs(ctx context.Context, itemID uuid.UUID, ids []models.ExternalIdentifier) error
	SetGenres(ctx context.Context, itemID uuid.UUID, genres []models.GenreEdge) error
	SetTags(ctx context.Context, itemID uuid.UUID, tags []models.TagEdge) error
	AddRelation(ctx context.Context, fromID uuid.UUID, rel models.Relation) error
}

// MediaStore persists the physical realization of a MetadataItem: its
// MediaItem, MediaParts, and elementary MediaStreams (spec.md §3, §4.B).
type MediaStore interface {
	UpsertMediaItem(ctx context.Context, mi *models.MediaItem) error
	GetMediaItem(ctx context.Context, metadataItemID uuid.UUID) (*models.MediaItem, error)

	UpsertMediaPart(ctx context.Context, part *models.MediaPart) error
	ListMediaParts(ctx context.Context, mediaItemID uuid.UUID) ([]*models.MediaPart, error)
	GetMediaPart(ctx context.Context, id uuid.UUID) (*models.MediaPart, error)
	DeleteMediaPart(ctx context.Context, id uuid.UUID) error

	ReplaceMediaStreams(ctx context.Context, partID uuid.UUID, streams []*models.MediaStream) error
	ListMediaStreams(ctx context.Context, partID uuid.UUID) ([]*models.MediaStream, error)
}

// ScanStore persists LibraryScan runs and their seen-path ledger
// (spec.md §4.E). Its shape is a superset of scanpipe.Store — the pipeline
// only needs the subset it declares, but Postgres implements both from the
// same table set.
type ScanStore interface {
	CreateScan(ctx context.Context, scan *models.LibraryScan) error
	GetScan(ctx context.Context, id uuid.UUID) (*models.LibraryScan, error)
	CompleteScan(ctx context.Context, id uuid.UUID, status models.ScanStatus, errs []string) error

	scanpipe.Store
}

// SessionStore persists PlaybackSessions (spec.md §3, §4.H/§4.J).
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.PlaybackSession) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.PlaybackSession, error)
	UpdateHeartbeat(ctx context.Context, id uuid.UUID, playheadMs int64, state models.SessionState, at time.Time) error
	SetCurrentPart(ctx context.Context, id uuid.UUID, itemID, partID uuid.UUID) error
	ExpireStaleSessions(ctx context.Context, olderThan time.Time) ([]uuid.UUID, error)
}

// PlaylistStore persists PlaylistGenerators and their materialized items
// (spec.md §4.M).
type PlaylistStore interface {
	CreateGenerator(ctx context.Context, g *models.PlaylistGenerator) error
	GetGenerator(ctx context.Context, publicID uuid.UUID) (*models.PlaylistGenerator, error)
	AdvanceCursor(ctx context.Context, publicID uuid.UUID, newCursor int) error
	TouchExpiry(ctx context.Context, publicID uuid.UUID, expiresAt time.Time) error

	ReplaceItems(ctx context.Context, generatorID uuid.UUID, items []*models.PlaylistGeneratorItem) error
	ListItemsRange(ctx context.Context, generatorID uuid.UUID, offset, limit int) ([]*models.PlaylistGeneratorItem, error)
	MarkServed(ctx context.Context, generatorID uuid.UUID, sortOrder int) error
}

// TranscodeStore persists TranscodeJobs (spec.md §4.I).
type TranscodeStore interface {
	CreateJob(ctx context.Context, job *models.TranscodeJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.TranscodeJob, error)
	// GetRunningJobForPart enforces the one-Running-job-per-(session,part)
	// invariant: callers check this before starting a new job.
	GetRunningJobForPart(ctx context.Context, sessionID, mediaPartID uuid.UUID) (*models.TranscodeJob, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, progress float64, at time.Time) error
	Transition(ctx context.Context, id uuid.UUID, state models.TranscodeState, errMsg string) error
	ListStaleHeartbeats(ctx context.Context, olderThan time.Time) ([]*models.TranscodeJob, error)
}

// Store aggregates every sub-contract behind one handle, mirroring how the
// composition root wires a single *sql.DB into each component.
type Store interface {
	MetadataStore
	MediaStore
	ScanStore
	SessionStore
	PlaylistStore
	TranscodeStore
}
