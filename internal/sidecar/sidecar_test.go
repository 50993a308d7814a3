package sidecar

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cinevault/core/internal/parts"
)

func TestNFOParserParsesCoreFields(t *testing.T) {
	dir := t.TempDir()
	nfoPath := filepath.Join(dir, "movie.nfo")
	xmlBody := `<movie>
		<title>Blade Runner</title>
		<sorttitle>Blade Runner</sorttitle>
		<plot>A blade runner hunts replicants.</plot>
		<year>1982</year>
		<mpaa>R</mpaa>
		<uniqueid type="tmdb">78</uniqueid>
		<genre>Science Fiction</genre>
	</movie>`
	if err := os.WriteFile(nfoPath, []byte(xmlBody), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NFOParser{}
	if !p.CanParse(nfoPath) {
		t.Fatal("expected CanParse to accept .nfo")
	}
	res, err := p.Parse(context.Background(), Request{SidecarFile: nfoPath})
	if err != nil {
		t.Fatal(err)
	}
	if res.Item.Title != "Blade Runner" {
		t.Fatalf("expected title parsed, got %q", res.Item.Title)
	}
	if res.Item.Year == nil || *res.Item.Year != 1982 {
		t.Fatalf("expected year 1982, got %v", res.Item.Year)
	}
	if len(res.Item.PendingExternalIDs) != 1 || res.Item.PendingExternalIDs[0].Provider != "tmdb" {
		t.Fatalf("expected one tmdb external id, got %v", res.Item.PendingExternalIDs)
	}
}

func TestMergeSidecarResultsLastWriterWinsAndUnion(t *testing.T) {
	a := parts.SidecarResult{
		Source: "nfo",
		Hints:  map[string]string{"premiered": "1982-06-25"},
	}
	a.Item.Title = "Blade Runner"

	b := parts.SidecarResult{
		Source: "metadata-json",
		Hints:  map[string]string{"premiered": "overridden"},
	}
	b.Item.Title = "Blade Runner (Director's Cut)"

	merged := MergeSidecarResults([]parts.SidecarResult{a, b})
	if merged.Item.Title != "Blade Runner (Director's Cut)" {
		t.Fatalf("expected last-writer-wins title, got %q", merged.Item.Title)
	}
	if merged.Hints["premiered"] != "overridden" {
		t.Fatalf("expected right-biased hint merge, got %q", merged.Hints["premiered"])
	}
	if merged.Source != "nfo+metadata-json" {
		t.Fatalf("expected combined source tag, got %q", merged.Source)
	}
}

func TestLocalArtworkParserRecognizesConventionalNames(t *testing.T) {
	p := LocalArtworkParser{}
	if !p.CanParse("/lib/Movie (2020)/poster.jpg") {
		t.Fatal("expected poster.jpg to be recognized")
	}
	if p.CanParse("/lib/Movie (2020)/random.jpg") {
		t.Fatal("expected unrelated jpg to be rejected")
	}
}
