package fsprobe

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cinevault/core/internal/models"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestEnumerateSkipsIgnoredDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Movie (2020)", "movie.mkv"), 10)
	writeFile(t, filepath.Join(root, "@eaDir", "thumb.jpg"), 10)

	p := NewProber(DefaultIgnoreDirs)
	entries := collect(t, p, root)

	for _, e := range entries {
		if e.Name == "thumb.jpg" {
			t.Fatalf("expected @eaDir contents to be skipped, found %s", e.Path)
		}
	}
}

func TestEnumerateIgnoresSampleFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Movie (2020)", "movie.mkv"), 1000)
	writeFile(t, filepath.Join(root, "Movie (2020)", "movie-sample.mkv"), 1000)

	p := NewProber(SampleFileRule)
	entries := collect(t, p, root)

	found := false
	for _, e := range entries {
		if e.Name == "movie-sample.mkv" {
			found = true
		}
	}
	if found {
		t.Fatal("expected sample file to be ignored")
	}
}

func TestEnumerateReportsMissingRootWithoutPanicking(t *testing.T) {
	p := NewProber()
	entries := collect(t, p, filepath.Join(t.TempDir(), "does-not-exist"))
	if len(entries) != 0 {
		t.Fatalf("expected no entries for unreachable root, got %d", len(entries))
	}
}

func collect(t *testing.T, p *Prober, root string) []Entry {
	t.Helper()
	var out []Entry
	for e := range p.Enumerate(context.Background(), root, models.LibraryMovies) {
		out = append(out, e)
	}
	return out
}
