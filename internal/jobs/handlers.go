package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/cinevault/core/internal/engine"
	"github.com/cinevault/core/internal/logging"
	"github.com/cinevault/core/internal/models"
	"github.com/cinevault/core/internal/trickplay"
)

// ScanLibraryPayload is the TaskScanLibrary job body. The core has no
// LibrarySection store contract of its own (spec.md §1 scopes library
// administration to the external API/DB layer), so the caller that
// enqueues this task carries the section's roots and kind directly.
type ScanLibraryPayload struct {
	LibraryID uuid.UUID         `json:"library_id"`
	Name      string            `json:"name"`
	Kind      models.LibraryKind `json:"kind"`
	Roots     []string          `json:"roots"`
}

// TrickplayPayload is the TaskGenerateTrickplay job body: enough to locate
// the source file and the content-addressed BIF destination (spec.md §4.K/§6).
type TrickplayPayload struct {
	ItemUUID    string `json:"item_uuid"`
	PartIndex   int    `json:"part_index"`
	SourcePath  string `json:"source_path"`
	DurationSec int    `json:"duration_sec"`
}

// RegisterHandlers wires every task type this core owns onto q, dispatching
// into internal/engine and internal/trickplay. Mirrors the teacher's
// cmd/cinevault/main.go RegisterHandlers call, adapted to this repo's
// engine-centric composition root instead of the teacher's HTTP-server
// repositories.
func RegisterHandlers(q *Queue, eng *engine.Engine, trick *trickplay.Generator, mediaRoot string) {
	q.RegisterHandler(TaskScanLibrary, asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		var p ScanLibraryPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("unmarshal scan payload: %w", err)
		}
		section := models.LibrarySection{ID: p.LibraryID, Name: p.Name, Kind: p.Kind, Roots: p.Roots}
		return eng.RunScan(ctx, section)
	}))

	q.RegisterHandler(TaskGenerateTrickplay, asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		var p TrickplayPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("unmarshal trickplay payload: %w", err)
		}
		return trick.GenerateAndWrite(ctx, p.SourcePath, mediaRoot, p.ItemUUID, p.PartIndex, p.DurationSec)
	}))

	q.RegisterHandler(TaskTranscodeReap, asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		return eng.ReapTranscodes(ctx)
	}))

	q.RegisterHandler(TaskExpireSessions, asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		expired, err := eng.ExpireSessions(ctx, 30*time.Minute)
		if err != nil {
			return fmt.Errorf("expire sessions: %w", err)
		}
		logging.Logger().Info().Int("count", len(expired)).Msg("expired stale playback sessions")
		return nil
	}))
}
