// Package trickplay generates the BIF sprite sheets internal/bif
// serializes: it drives ffmpeg to pull one JPEG thumbnail every interval
// across a media part's duration (spec.md §4.K / §6 trickplay storage
// layout).
//
// Grounded directly on the teacher's internal/fingerprint.ComputePHash:
// the same exec.Command(ffmpeg, "-ss", ..., "-vframes", "1", "-vf",
// "scale=...") frame-grab loop, generalized from seven percentage-offset
// sample points (used there for a dedup perceptual hash) into a dense,
// fixed-interval timeline covering the whole duration.
package trickplay

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/cinevault/core/internal/bif"
	"github.com/cinevault/core/internal/logging"
)

// DefaultInterval matches common trickplay scrubbing granularity.
const DefaultInterval = 10 * time.Second

// thumbnailWidth is the scaled-down frame width fed to the BIF sheet; BIF
// images are meant for a scrubber preview, not full-resolution playback.
const thumbnailWidth = 320

// Generator extracts evenly spaced thumbnail frames from a media file via
// ffmpeg and assembles them into a bif.Bif ready for bif.WriteFile.
type Generator struct {
	FFmpegPath string
	TempDir    string
	Interval   time.Duration
}

// NewGenerator builds a Generator; interval <= 0 falls back to DefaultInterval.
func NewGenerator(ffmpegPath, tempDir string, interval time.Duration) *Generator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Generator{FFmpegPath: ffmpegPath, TempDir: tempDir, Interval: interval}
}

// Generate extracts one JPEG frame every g.Interval across
// [0, durationSec) and returns a bif.Bif. A single failed frame is logged
// and skipped — spec.md §7's benign-skip / recoverable-I/O taxonomy: one
// bad extraction never aborts the whole sprite sheet.
func (g *Generator) Generate(ctx context.Context, sourcePath string, durationSec int) (bif.Bif, error) {
	if durationSec <= 0 {
		return bif.Bif{}, fmt.Errorf("trickplay: unknown duration for %s", sourcePath)
	}

	tmpDir, err := os.MkdirTemp(g.TempDir, "trickplay-*")
	if err != nil {
		return bif.Bif{}, fmt.Errorf("trickplay: create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	stepMs := g.Interval.Milliseconds()
	if stepMs <= 0 {
		stepMs = DefaultInterval.Milliseconds()
	}

	var entries []bif.Entry
	for tsMs := int64(0); tsMs < int64(durationSec)*1000; tsMs += stepMs {
		framePath := filepath.Join(tmpDir, fmt.Sprintf("frame_%08d.jpg", tsMs))

		cmd := exec.CommandContext(ctx, g.FFmpegPath,
			"-ss", fmt.Sprintf("%.3f", float64(tsMs)/1000),
			"-i", sourcePath,
			"-vframes", "1",
			"-vf", fmt.Sprintf("scale=%d:-1", thumbnailWidth),
			"-y", framePath,
		)
		if output, err := cmd.CombinedOutput(); err != nil {
			logging.Logger().Warn().
				Err(err).
				Str("source", sourcePath).
				Int64("ts_ms", tsMs).
				Str("ffmpeg_output", string(output)).
				Msg("trickplay frame extraction failed")
			continue
		}

		data, err := os.ReadFile(framePath)
		if err != nil {
			logging.Logger().Warn().Err(err).Str("source", sourcePath).Int64("ts_ms", tsMs).Msg("trickplay frame read failed")
			continue
		}
		entries = append(entries, bif.Entry{TimestampMs: int32(tsMs), Image: data})
	}

	if len(entries) == 0 {
		return bif.Bif{}, fmt.Errorf("trickplay: no frames extracted from %s", sourcePath)
	}
	return bif.Bif{Entries: entries}, nil
}

// GenerateAndWrite runs Generate and persists the result at its
// content-addressed path (spec.md §6), creating parent directories as
// needed.
func (g *Generator) GenerateAndWrite(ctx context.Context, sourcePath, mediaRoot, itemUUID string, partIndex, durationSec int) error {
	b, err := g.Generate(ctx, sourcePath, durationSec)
	if err != nil {
		return err
	}
	dest := bif.StoragePath(mediaRoot, itemUUID, partIndex)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("trickplay: create index dir: %w", err)
	}
	return bif.WriteFile(dest, b)
}
