package resolve

import (
	"context"
	"testing"

	"github.com/cinevault/core/internal/fsprobe"
	"github.com/cinevault/core/internal/models"
	"github.com/cinevault/core/internal/parts"
)

func TestParseFolderName(t *testing.T) {
	cases := []struct {
		name, title, year, edition string
	}{
		{"Blade Runner (1982)", "Blade Runner", "1982", ""},
		{"Blade Runner (1982) {edition-Final Cut}", "Blade Runner", "1982", "Final Cut"},
		{"not a movie folder", "", "", ""},
	}
	for _, c := range cases {
		title, year, edition := parseFolderName(c.name)
		if title != c.title || year != c.year || edition != c.edition {
			t.Errorf("parseFolderName(%q) = (%q,%q,%q), want (%q,%q,%q)",
				c.name, title, year, edition, c.title, c.year, c.edition)
		}
	}
}

func TestMovieResolverGroupsStackedParts(t *testing.T) {
	args := parts.ResolveArgs{
		Entry:       fsprobe.Entry{Name: "Avatar (2009)", IsDir: true},
		LibraryKind: models.LibraryMovies,
		Children: []fsprobe.Entry{
			{Name: "Avatar (2009)-cd1.mkv", Ext: ".mkv", Path: "/lib/Avatar (2009)/Avatar (2009)-cd1.mkv"},
			{Name: "Avatar (2009)-cd2.mkv", Ext: ".mkv", Path: "/lib/Avatar (2009)/Avatar (2009)-cd2.mkv"},
		},
	}

	res, ok, err := MovieResolver{}.Resolve(context.Background(), args)
	if err != nil || !ok {
		t.Fatalf("expected resolution, got ok=%v err=%v", ok, err)
	}
	if len(res.ClaimedPaths) != 2 {
		t.Fatalf("expected 2 claimed paths, got %d", len(res.ClaimedPaths))
	}
	if res.ClaimedPaths[0] != args.Children[0].Path || res.ClaimedPaths[1] != args.Children[1].Path {
		t.Fatalf("expected parts ordered cd1 then cd2, got %v", res.ClaimedPaths)
	}
}

func TestMovieResolverSkipsInlineExtras(t *testing.T) {
	args := parts.ResolveArgs{
		Entry:       fsprobe.Entry{Name: "Avatar (2009)", IsDir: true},
		LibraryKind: models.LibraryMovies,
		Children: []fsprobe.Entry{
			{Name: "Avatar (2009).mkv", Ext: ".mkv", Path: "/lib/Avatar (2009)/Avatar (2009).mkv"},
			{Name: "Avatar (2009)-trailer.mkv", Ext: ".mkv", Path: "/lib/Avatar (2009)/Avatar (2009)-trailer.mkv"},
		},
	}
	res, ok, err := MovieResolver{}.Resolve(context.Background(), args)
	if err != nil || !ok {
		t.Fatalf("expected resolution, got ok=%v err=%v", ok, err)
	}
	if len(res.ClaimedPaths) != 1 {
		t.Fatalf("expected only the non-extra file claimed, got %v", res.ClaimedPaths)
	}
}

func TestMovieResolverClaimsLargestFileWhenNotStacked(t *testing.T) {
	args := parts.ResolveArgs{
		Entry:       fsprobe.Entry{Name: "Avatar (2009)", IsDir: true},
		LibraryKind: models.LibraryMovies,
		Children: []fsprobe.Entry{
			{Name: "Avatar (2009).mkv", Ext: ".mkv", Path: "/lib/Avatar (2009)/Avatar (2009).mkv", Size: 500},
			{Name: "Avatar (2009) - Sample.mkv", Ext: ".mkv", Path: "/lib/Avatar (2009)/Avatar (2009) - Sample.mkv", Size: 5_000_000_000},
		},
	}

	res, ok, err := MovieResolver{}.Resolve(context.Background(), args)
	if err != nil || !ok {
		t.Fatalf("expected resolution, got ok=%v err=%v", ok, err)
	}
	if len(res.ClaimedPaths) != 1 {
		t.Fatalf("expected only the largest file claimed, got %v", res.ClaimedPaths)
	}
	if res.ClaimedPaths[0] != args.Children[1].Path {
		t.Fatalf("expected the larger file claimed, got %v", res.ClaimedPaths)
	}
}

func TestExtrasResolverPendingWhenParentUnresolved(t *testing.T) {
	args := parts.ResolveArgs{
		Entry: fsprobe.Entry{Name: "Avatar-trailer.mkv", Ext: ".mkv", Path: "/lib/Avatar-trailer.mkv"},
	}
	res, ok, err := ExtrasResolver{}.Resolve(context.Background(), args)
	if err != nil || !ok {
		t.Fatalf("expected resolution, got ok=%v err=%v", ok, err)
	}
	if res.Outcome != parts.OutcomeAmbiguousCandidates {
		t.Fatalf("expected ambiguous-candidates outcome without a resolved parent, got %v", res.Outcome)
	}
	if len(res.Relations) != 1 || !res.Relations[0].Pending {
		t.Fatalf("expected a pending relation, got %+v", res.Relations)
	}
}

func TestAlbumResolverNormalizesFeaturingArtist(t *testing.T) {
	if got := normalizeArtist("Daft Punk feat. Pharrell Williams"); got != "Daft Punk" {
		t.Fatalf("expected featuring suffix stripped, got %q", got)
	}
}

func TestTrackResolverParsesDiscAndTrackNumber(t *testing.T) {
	args := parts.ResolveArgs{
		LibraryKind: models.LibraryMusic,
		Entry:       fsprobe.Entry{Name: "2-03 Instant Crush.flac", Ext: ".flac", Path: "/lib/Artist/Album/2-03 Instant Crush.flac"},
	}
	res, ok, err := TrackResolver{}.Resolve(context.Background(), args)
	if err != nil || !ok {
		t.Fatalf("expected resolution, got ok=%v err=%v", ok, err)
	}
	if res.Item.Title != "Instant Crush" {
		t.Fatalf("expected title %q, got %q", "Instant Crush", res.Item.Title)
	}
	if res.Item.ParentIndex == nil || *res.Item.ParentIndex != 2 {
		t.Fatalf("expected disc number 2, got %v", res.Item.ParentIndex)
	}
	if res.Item.AbsoluteIndex == nil || *res.Item.AbsoluteIndex != 3 {
		t.Fatalf("expected track number 3, got %v", res.Item.AbsoluteIndex)
	}
}
