package playback

import (
	"testing"

	"github.com/google/uuid"

	"github.com/cinevault/core/internal/models"
)

func baseCapability() models.CapabilityProfile {
	return models.CapabilityProfile{
		Version:             1,
		SupportedContainers: []string{"mp4", "mkv"},
		SupportedCodecs: []models.CodecCap{
			{Codec: "h264", MaxWidth: 1920, MaxHeight: 1080},
			{Codec: "aac"},
		},
		MaxChannels:   6,
		MaxSampleRate: 48000,
	}
}

func TestDecideDirectPlay(t *testing.T) {
	item := &models.MediaItem{Container: "mp4", VideoCodec: "h264", AudioCodec: "aac", Width: 1280, Height: 720}
	plan := Decide(item, nil, baseCapability())
	if plan.Mode != ModeDirectPlay {
		t.Fatalf("mode = %v, want direct_play; reasons=%v", plan.Mode, plan.Reasons.Names())
	}
}

func TestDecideDirectStreamOnContainerMismatch(t *testing.T) {
	item := &models.MediaItem{Container: "avi", VideoCodec: "h264", AudioCodec: "aac", Width: 1280, Height: 720}
	plan := Decide(item, nil, baseCapability())
	if plan.Mode != ModeDirectStream {
		t.Fatalf("mode = %v, want direct_stream; reasons=%v", plan.Mode, plan.Reasons.Names())
	}
}

func TestDecideTranscodeOnCodecMismatch(t *testing.T) {
	item := &models.MediaItem{Container: "mp4", VideoCodec: "hevc", AudioCodec: "aac", Width: 1280, Height: 720}
	plan := Decide(item, nil, baseCapability())
	if plan.Mode != ModeTranscode {
		t.Fatalf("mode = %v, want transcode; reasons=%v", plan.Mode, plan.Reasons.Names())
	}
}

func TestDecideTranscodeOnResolutionExceeds(t *testing.T) {
	item := &models.MediaItem{Container: "mp4", VideoCodec: "h264", AudioCodec: "aac", Width: 3840, Height: 2160}
	plan := Decide(item, nil, baseCapability())
	if plan.Mode != ModeTranscode {
		t.Fatalf("mode = %v, want transcode; reasons=%v", plan.Mode, plan.Reasons.Names())
	}
	if plan.Reasons&ReasonResolutionExceeds == 0 {
		t.Fatalf("expected ReasonResolutionExceeds set, got %v", plan.Reasons.Names())
	}
}

func TestDecideHDRRequiresToneMapping(t *testing.T) {
	item := &models.MediaItem{Container: "mp4", VideoCodec: "h264", AudioCodec: "aac", Width: 1280, Height: 720, DynamicRange: "HDR"}
	cap := baseCapability()
	cap.AcceptsToneMapping = false
	plan := Decide(item, nil, cap)
	if plan.Mode != ModeTranscode || !plan.ToneMapping {
		t.Fatalf("expected transcode with tone mapping, got mode=%v toneMapping=%v", plan.Mode, plan.ToneMapping)
	}
}

func TestDecideSubtitleBurnIn(t *testing.T) {
	item := &models.MediaItem{Container: "mp4", VideoCodec: "h264", AudioCodec: "aac", Width: 1280, Height: 720}
	cap := baseCapability()
	cap.SubtitleHandling = "burn-in"
	streams := []*models.MediaStream{{Kind: models.StreamSubtitle, IsDefault: true}}
	plan := Decide(item, streams, cap)
	if plan.Mode != ModeTranscode || !plan.SubtitleBurnIn {
		t.Fatalf("expected transcode with subtitle burn-in, got mode=%v burnIn=%v", plan.Mode, plan.SubtitleBurnIn)
	}
}

func TestSelectPartPrefersLeastWork(t *testing.T) {
	part0 := &models.MediaPart{ID: uuid.New(), PartIndex: 0}
	part1 := &models.MediaPart{ID: uuid.New(), PartIndex: 1}
	plans := map[string]StreamPlan{
		part0.ID.String(): {Mode: ModeTranscode},
		part1.ID.String(): {Mode: ModeDirectPlay},
	}
	best, plan, err := SelectPart([]*models.MediaPart{part0, part1}, plans)
	if err != nil {
		t.Fatalf("select part: %v", err)
	}
	if best.ID != part1.ID || plan.Mode != ModeDirectPlay {
		t.Fatalf("expected part1/direct_play, got %s/%v", best.ID, plan.Mode)
	}
}

func TestSelectPartTieBreaksOnFewerReasons(t *testing.T) {
	part0 := &models.MediaPart{ID: uuid.New(), PartIndex: 0, SizeBytes: 1000}
	part1 := &models.MediaPart{ID: uuid.New(), PartIndex: 1, SizeBytes: 1000}
	plans := map[string]StreamPlan{
		part0.ID.String(): {Mode: ModeDirectStream, Reasons: ReasonContainerUnsupported},
		part1.ID.String(): {Mode: ModeDirectStream},
	}
	best, _, err := SelectPart([]*models.MediaPart{part0, part1}, plans)
	if err != nil {
		t.Fatalf("select part: %v", err)
	}
	if best.ID != part1.ID {
		t.Fatalf("expected tie-break to part1 (fewer reasons), got %s", best.ID)
	}
}

func TestSelectPartTieBreaksOnLargestFileSize(t *testing.T) {
	part0 := &models.MediaPart{ID: uuid.New(), PartIndex: 0, SizeBytes: 500}
	part1 := &models.MediaPart{ID: uuid.New(), PartIndex: 1, SizeBytes: 1500}
	plans := map[string]StreamPlan{
		part0.ID.String(): {Mode: ModeDirectStream},
		part1.ID.String(): {Mode: ModeDirectStream},
	}
	best, _, err := SelectPart([]*models.MediaPart{part0, part1}, plans)
	if err != nil {
		t.Fatalf("select part: %v", err)
	}
	if best.ID != part1.ID {
		t.Fatalf("expected tie-break to part1 (largest size), got %s", best.ID)
	}
}
