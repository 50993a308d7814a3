package scanpipe

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cinevault/core/internal/fsprobe"
	"github.com/cinevault/core/internal/models"
)

type fakeStore struct {
	mu           sync.Mutex
	seenPaths    []string
	checkpoints  []models.ResumeCursor
	version      int64
	existingStats map[string]StatSnapshot
}

func (f *fakeStore) ExistingStats(ctx context.Context, _ uuid.UUID) (map[string]StatSnapshot, error) {
	return f.existingStats, nil
}

func (f *fakeStore) LoadScan(ctx context.Context, scanID uuid.UUID) (models.LibraryScan, error) {
	return models.LibraryScan{ID: scanID}, nil
}

func (f *fakeStore) SaveCheckpoint(ctx context.Context, scanID uuid.UUID, cursor models.ResumeCursor, expectedVersion int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if expectedVersion != f.version {
		return 0, context.DeadlineExceeded
	}
	f.version++
	f.checkpoints = append(f.checkpoints, cursor)
	return f.version, nil
}

func (f *fakeStore) RecordSeenPaths(ctx context.Context, scanID uuid.UUID, paths []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seenPaths = append(f.seenPaths, paths...)
	return nil
}

func (f *fakeStore) ReconcileOrphans(ctx context.Context, librarySectionID, scanID uuid.UUID) (int, error) {
	return 0, nil
}

func TestSameStatAbsorbsCoarseMtime(t *testing.T) {
	base := time.Now()
	if !sameStat(StatSnapshot{Size: 100, ModTime: base}, StatSnapshot{Size: 100, ModTime: base.Add(1 * time.Second)}) {
		t.Fatal("expected sub-2s mtime delta to count as unchanged")
	}
	if sameStat(StatSnapshot{Size: 100, ModTime: base}, StatSnapshot{Size: 100, ModTime: base.Add(3 * time.Second)}) {
		t.Fatal("expected 3s mtime delta to count as changed")
	}
	if sameStat(StatSnapshot{Size: 100, ModTime: base}, StatSnapshot{Size: 200, ModTime: base}) {
		t.Fatal("expected size change to count as changed regardless of mtime")
	}
}

func TestScanContextFlushesSeenPathsInBatches(t *testing.T) {
	store := &fakeStore{}
	sctx := NewScanContext(context.Background(), uuid.New(), uuid.New(), store, 0)

	for i := 0; i < seenPathBatchSize-1; i++ {
		if err := sctx.RecordSeenPaths("path"); err != nil {
			t.Fatal(err)
		}
	}
	if len(store.seenPaths) != 0 {
		t.Fatalf("expected no flush before batch size reached, got %d", len(store.seenPaths))
	}

	if err := sctx.RecordSeenPaths("path"); err != nil {
		t.Fatal(err)
	}
	if len(store.seenPaths) != seenPathBatchSize {
		t.Fatalf("expected flush at batch size, got %d", len(store.seenPaths))
	}

	if err := sctx.RecordSeenPaths("tail"); err != nil {
		t.Fatal(err)
	}
	if err := sctx.FlushSeenPaths(); err != nil {
		t.Fatal(err)
	}
	if len(store.seenPaths) != seenPathBatchSize+1 {
		t.Fatalf("expected final flush to include tail path, got %d", len(store.seenPaths))
	}
}

func TestScanContextCheckpointsAfterThreshold(t *testing.T) {
	store := &fakeStore{}
	sctx := NewScanContext(context.Background(), uuid.New(), uuid.New(), store, 0)

	count := 0
	for i := 0; i < traversalCheckpointN; i++ {
		if sctx.ShouldCheckpointTraversal() {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one checkpoint trigger at threshold, got %d", count)
	}
}

func TestScanContextSaveCheckpointRejectsStaleVersion(t *testing.T) {
	store := &fakeStore{}
	scanID := uuid.New()
	sctx := NewScanContext(context.Background(), scanID, uuid.New(), store, 5) // caller thinks version is 5
	if err := sctx.SaveCheckpoint(StageDirectoryTraversal, "/a"); err == nil {
		t.Fatal("expected checkpoint write to fail when store is behind the context's assumed version")
	}
}

func TestDirectoryTraversalFastForwardSkipsPriorPaths(t *testing.T) {
	root := t.TempDir()
	paths := []string{"a.mkv", "b.mkv", "c.mkv"}
	for _, p := range paths {
		if err := os.WriteFile(filepath.Join(root, p), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	store := &fakeStore{}
	pipeline := NewPipeline(nil, fsprobe.NewProber(), nil)
	sctx := NewScanContext(context.Background(), uuid.New(), uuid.New(), store, 0)

	resume := models.ResumeCursor{Stage: StageDirectoryTraversal, StageLocalCursor: filepath.Join(root, "b.mkv")}

	// runDirectoryTraversal publishes onto the bus; the buffer (256) easily
	// holds this test's handful of entries so they can be drained after the
	// fact without a background consumer racing the assertions below.
	sub, err := pipeline.bus.Subscribe(context.Background(), topicTraversed)
	if err != nil {
		t.Fatal(err)
	}

	if err := pipeline.runDirectoryTraversal(sctx, root, models.LibraryMovies, resume); err != nil {
		t.Fatal(err)
	}

	var emitted []string
	for {
		select {
		case msg := <-sub:
			item, derr := decode(msg)
			if derr != nil {
				t.Fatal(derr)
			}
			emitted = append(emitted, item.Entry.Path)
			msg.Ack()
		case <-time.After(100 * time.Millisecond):
			goto done
		}
	}
done:
	for _, p := range emitted {
		if p == filepath.Join(root, "a.mkv") {
			t.Fatalf("expected a.mkv (before cursor) to be skipped, got emitted=%v", emitted)
		}
	}
	if len(emitted) == 0 {
		t.Fatal("expected at least the cursored entry to be emitted")
	}
}
