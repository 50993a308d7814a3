package seekreload

import (
	"strings"
	"testing"
)

func TestAlignToSegment(t *testing.T) {
	cases := map[int64]int64{
		0:    0,
		100:  0,
		3999: 0,
		4000: 4000,
		4001: 4000,
		9999: 8000,
	}
	for in, want := range cases {
		if got := alignToSegment(in); got != want {
			t.Errorf("alignToSegment(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestPlanDashSeekAlignsAndSetsHeader(t *testing.T) {
	plan, err := PlanDashSeek("https://host/stream/manifest.mpd", 6500, 120000)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.ActualStartMs != 4000 {
		t.Fatalf("ActualStartMs = %d, want 4000", plan.ActualStartMs)
	}
	if plan.Headers[HeaderStartTimeMs] != "4000" {
		t.Fatalf("header = %q, want 4000", plan.Headers[HeaderStartTimeMs])
	}
	if !strings.Contains(plan.URL, "t=4000") {
		t.Fatalf("url missing aligned offset: %s", plan.URL)
	}
}

func TestPlanDashSeekSuppressesEndedNearDuration(t *testing.T) {
	plan, err := PlanDashSeek("https://host/stream/manifest.mpd", 118500, 120000)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !plan.SuppressedEnded {
		t.Fatalf("expected SuppressedEnded near duration, got false (actual=%d duration=120000)", plan.ActualStartMs)
	}
}

func TestPlanDashSeekClampsPastDuration(t *testing.T) {
	plan, err := PlanDashSeek("https://host/stream/manifest.mpd", 500000, 120000)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.ActualStartMs > 120000 {
		t.Fatalf("ActualStartMs %d exceeds duration 120000", plan.ActualStartMs)
	}
}

func TestPlanRemuxSeekHonorsExactOffset(t *testing.T) {
	plan, err := PlanRemuxSeek("https://host/stream/direct", 12345)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.ActualStartMs != 12345 {
		t.Fatalf("ActualStartMs = %d, want exact 12345", plan.ActualStartMs)
	}
	if !strings.Contains(plan.URL, "startMs=12345") {
		t.Fatalf("url missing startMs: %s", plan.URL)
	}
}

func TestRewriteManifestOffsetRoundTrips(t *testing.T) {
	original := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static" mediaPresentationDuration="PT120S">
  <Period start="PT0S"></Period>
</MPD>`)
	rewritten, err := RewriteManifestOffset(original, 8000)
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if !strings.Contains(string(rewritten), `presentationTimeOffset="8000"`) {
		t.Fatalf("expected rewritten offset in output: %s", rewritten)
	}
}
