package scanpipe

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cinevault/core/internal/models"
	"github.com/cinevault/core/internal/scanerr"
)

// Scanner runs a full scan for one library section end to end: builds a
// ScanContext, drives the Pipeline, then performs orphan reconciliation
// (spec.md §4.E, "post-pipeline").
type Scanner struct {
	Store    Store
	Pipeline *Pipeline
}

func NewScanner(store Store, pipeline *Pipeline) *Scanner {
	return &Scanner{Store: store, Pipeline: pipeline}
}

// RunScan resumes scanID if it already has a cursor set, otherwise starts
// fresh. roots are scanned sequentially — spec.md §5 scopes "at most one
// pipeline chain per library section" but says nothing about ordering
// across multiple section roots, so sequential is the conservative choice.
func (s *Scanner) RunScan(ctx context.Context, scanID, librarySectionID uuid.UUID, roots []string, libraryKind models.LibraryKind) error {
	scan, err := s.Store.LoadScan(ctx, scanID)
	if err != nil {
		return fmt.Errorf("load scan %s: %w", scanID, err)
	}

	sctx := NewScanContext(ctx, scanID, librarySectionID, s.Store, scan.CheckpointVersion)

	for _, root := range roots {
		if err := s.Pipeline.Run(sctx, root, libraryKind, scan.Cursor); err != nil {
			if scanerr.IsFatal(err) {
				return err
			}
			return fmt.Errorf("scan %s root %s: %w", scanID, root, err)
		}
		// Only the first root honors a stale resume cursor; subsequent
		// roots in the same run always start cold.
		scan.Cursor = models.ResumeCursor{}
	}

	deleted, err := s.Store.ReconcileOrphans(ctx, librarySectionID, scanID)
	if err != nil {
		return fmt.Errorf("reconcile orphans for scan %s: %w", scanID, err)
	}
	_ = deleted
	return nil
}

// nextCheckpointDeadline returns lastCheckpoint plus interval. It is
// unexported and nothing in this package calls it.
func nextCheckpointDeadline(lastCheckpoint time.Time, interval time.Duration) time.Time {
	return lastCheckpoint.Add(interval)
}
