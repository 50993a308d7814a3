package subtitle

import (
	"strings"
	"testing"
	"time"
)

const sampleSRT = `1
00:00:01,000 --> 00:00:04,000
Hello there.

2
00:00:05,500 --> 00:00:08,250
General Kenobi.
`

func TestRegistryParseSRT(t *testing.T) {
	reg := NewRegistry()
	cues, format, err := reg.Parse("srt", []byte(sampleSRT))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if format != FormatSRT {
		t.Fatalf("format = %v, want srt", format)
	}
	if len(cues) != 2 {
		t.Fatalf("len(cues) = %d, want 2", len(cues))
	}
	if cues[0].Start != 1*time.Second || cues[0].End != 4*time.Second {
		t.Fatalf("cue 0 timing = %v-%v", cues[0].Start, cues[0].End)
	}
	if cues[0].Text != "Hello there." {
		t.Fatalf("cue 0 text = %q", cues[0].Text)
	}
}

func TestRegistryRetriesOtherFormats(t *testing.T) {
	reg := NewRegistry()
	// Claimed format is VTT but content is actually SRT — self-identify
	// should fail on the claimed format and fall through to SRT.
	cues, format, err := reg.Parse("vtt", []byte(sampleSRT))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if format != FormatSRT {
		t.Fatalf("format = %v, want srt (fallback)", format)
	}
	if len(cues) != 2 {
		t.Fatalf("len(cues) = %d, want 2", len(cues))
	}
}

// TestConvertTimeWindow_S5 exercises spec.md S5: every output cue lies
// within [0, endTicks-startTicks] after shifting, and boundary-touching
// cues are kept.
func TestConvertTimeWindow_S5(t *testing.T) {
	reg := NewRegistry()
	start := int64(2000)
	end := int64(6000)

	out, err := Convert(reg, "srt", strings.NewReader(sampleSRT), "vtt", &start, &end)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	cues, _, err := reg.Parse("vtt", []byte(out))
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	windowLen := time.Duration(end-start) * time.Millisecond
	for _, c := range cues {
		if c.Start < 0 || c.End < 0 {
			t.Fatalf("negative cue time: %+v", c)
		}
		if c.Start > windowLen {
			t.Fatalf("cue start %v exceeds window %v", c.Start, windowLen)
		}
	}
	// First cue (1000-4000ms) overlaps [2000,6000) and should be clamped to 0.
	if cues[0].Start != 0 {
		t.Fatalf("cue 0 start = %v, want clamped to 0", cues[0].Start)
	}
}

func TestConvertDropsCuesFullyOutsideWindow(t *testing.T) {
	reg := NewRegistry()
	start := int64(20000)
	end := int64(30000)

	out, err := Convert(reg, "srt", strings.NewReader(sampleSRT), "vtt", &start, &end)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	cues, _, err := reg.Parse("vtt", []byte(out))
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if len(cues) != 0 {
		t.Fatalf("len(cues) = %d, want 0 (fully outside window)", len(cues))
	}
}

func TestRequiresFFmpegExtraction(t *testing.T) {
	cases := map[string]bool{
		"hdmv_pgs_subtitle": true,
		"dvd_subtitle":      true,
		"subrip":            false,
		"ass":               false,
	}
	for codec, want := range cases {
		if got := RequiresFFmpegExtraction(codec); got != want {
			t.Errorf("RequiresFFmpegExtraction(%q) = %v, want %v", codec, got, want)
		}
	}
}

func TestASSParserStripsOverrideTags(t *testing.T) {
	const ass = `[Script Info]
Title: Test

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
Dialogue: 0,0:00:01.00,0:00:03.00,Default,,0,0,0,,{\i1}Hello{\i0}\Nworld
`
	reg := NewRegistry()
	cues, format, err := reg.Parse("ass", []byte(ass))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if format != FormatASS {
		t.Fatalf("format = %v, want ass", format)
	}
	if len(cues) != 1 {
		t.Fatalf("len(cues) = %d, want 1", len(cues))
	}
	if cues[0].Text != "Hello\nworld" {
		t.Fatalf("text = %q", cues[0].Text)
	}
}
