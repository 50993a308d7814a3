package scanpipe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cinevault/core/internal/models"
	"github.com/cinevault/core/internal/scanerr"
)

// Stage names are the stable strings spec.md §6 requires for the
// persisted checkpoint/cursor layout.
const (
	StageDirectoryTraversal = "directory_traversal"
	StageChangeDetection    = "change_detection"
	StageResolveItems       = "resolve_items"
	StageLocalMetadata      = "local_metadata"
	StageRemoteMetadata     = "remote_metadata"
	StageReconcile          = "reconcile"
)

// seenPathBatchSize and the traversal checkpoint triggers match spec.md
// §4.E P4 and the checkpointing contract.
const (
	seenPathBatchSize       = 200
	traversalCheckpointN    = 500
	traversalCheckpointTime = 30 * time.Second
)

// Store is the narrow slice of the change-data store (spec.md §4.N) the
// pipeline needs: existing stat snapshots for change detection, and the
// checkpoint/seen-path/orphan-reconciliation writes. internal/store
// implements this over Postgres.
type Store interface {
	ExistingStats(ctx context.Context, librarySectionID uuid.UUID) (map[string]StatSnapshot, error)
	LoadScan(ctx context.Context, scanID uuid.UUID) (models.LibraryScan, error)
	SaveCheckpoint(ctx context.Context, scanID uuid.UUID, cursor models.ResumeCursor, expectedVersion int64) (newVersion int64, err error)
	RecordSeenPaths(ctx context.Context, scanID uuid.UUID, paths []string) error
	ReconcileOrphans(ctx context.Context, librarySectionID, scanID uuid.UUID) (deleted int, err error)
}

// ScanContext is handed to every stage; it exposes the checkpointing
// contract (`ctx.saveCheckpoint`/`ctx.recordSeenPaths`) from spec.md §4.E
// and owns the seen-path batching buffer.
type ScanContext struct {
	context.Context

	ScanID           uuid.UUID
	LibrarySectionID uuid.UUID
	Store            Store

	mu                sync.Mutex
	checkpointVersion int64
	seenBuf           []string

	traversalSinceCheckpoint int
	lastTraversalCheckpoint  time.Time
}

func NewScanContext(ctx context.Context, scanID, librarySectionID uuid.UUID, store Store, startVersion int64) *ScanContext {
	return &ScanContext{
		Context:                 ctx,
		ScanID:                  scanID,
		LibrarySectionID:        librarySectionID,
		Store:                   store,
		checkpointVersion:       startVersion,
		lastTraversalCheckpoint: time.Now(),
	}
}

// SaveCheckpoint atomically bumps checkpointVersion and persists the
// resume cursor. A stale version (another writer got there first) returns
// a scan-fatal error per spec.md §4.E/§7.
func (c *ScanContext) SaveCheckpoint(stage, cursor string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	newVersion, err := c.Store.SaveCheckpoint(c.Context, c.ScanID, models.ResumeCursor{
		Stage:            stage,
		StageLocalCursor: cursor,
		Version:          c.checkpointVersion,
	}, c.checkpointVersion)
	if err != nil {
		return scanerr.Fatal(fmt.Errorf("checkpoint write conflict at version %d: %w", c.checkpointVersion, err))
	}
	c.checkpointVersion = newVersion
	return nil
}

// RecordSeenPaths buffers paths and flushes in batches of
// seenPathBatchSize, per spec.md §4.E P4.
func (c *ScanContext) RecordSeenPaths(paths ...string) error {
	c.mu.Lock()
	c.seenBuf = append(c.seenBuf, paths...)
	shouldFlush := len(c.seenBuf) >= seenPathBatchSize
	var flushing []string
	if shouldFlush {
		flushing, c.seenBuf = c.seenBuf, nil
	}
	c.mu.Unlock()

	if shouldFlush {
		return c.Store.RecordSeenPaths(c.Context, c.ScanID, flushing)
	}
	return nil
}

// FlushSeenPaths drains any remaining buffered paths; the pipeline must
// call this before the final checkpoint write (P4).
func (c *ScanContext) FlushSeenPaths() error {
	c.mu.Lock()
	flushing, remaining := c.seenBuf, []string(nil)
	c.seenBuf = remaining
	c.mu.Unlock()

	if len(flushing) == 0 {
		return nil
	}
	return c.Store.RecordSeenPaths(c.Context, c.ScanID, flushing)
}

// ShouldCheckpointTraversal reports whether the directory-traversal stage
// has crossed the 500-items-or-30-seconds threshold since its last
// checkpoint, resetting the counters if so.
func (c *ScanContext) ShouldCheckpointTraversal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.traversalSinceCheckpoint++
	elapsed := time.Since(c.lastTraversalCheckpoint)
	if c.traversalSinceCheckpoint >= traversalCheckpointN || elapsed >= traversalCheckpointTime {
		c.traversalSinceCheckpoint = 0
		c.lastTraversalCheckpoint = time.Now()
		return true
	}
	return false
}
