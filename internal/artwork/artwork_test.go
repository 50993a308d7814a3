package artwork

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func samplePNG(t *testing.T, fill color.Gray) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetGray(x, y, fill)
		}
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestIngestLocalFile(t *testing.T) {
	root := t.TempDir()
	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "poster.png")
	if err := os.WriteFile(srcPath, samplePNG(t, color.Gray{Y: 200}), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	s := NewStore(root)
	ref, err := s.Ingest(nil, "11112222-0000-0000-0000-000000000000", KindPoster, srcPath)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if ref.PlaceholderHash == "" {
		t.Fatalf("expected non-empty placeholder hash")
	}

	dest := filepath.Join(root, "11", "11112222-0000-0000-0000-000000000000", "image", "poster.png")
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("expected file at %s: %v", dest, err)
	}
}

func TestIngestRemoteFetch(t *testing.T) {
	data := samplePNG(t, color.Gray{Y: 40})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer srv.Close()

	root := t.TempDir()
	s := NewStore(root)
	ref, err := s.Ingest(t.Context(), "abcd1234-0000-0000-0000-000000000000", KindBackdrop, srv.URL+"/backdrop.png")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if ref.URI != "artwork://abcd1234-0000-0000-0000-000000000000/backdrop.png" {
		t.Fatalf("unexpected uri: %s", ref.URI)
	}
}

func TestComputePerceptualHashDeterministic(t *testing.T) {
	data := samplePNG(t, color.Gray{Y: 128})
	h1, err := ComputePerceptualHash(data)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := ComputePerceptualHash(data)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hash not deterministic: %s != %s", h1, h2)
	}
}

func TestComputePerceptualHashRejectsGarbage(t *testing.T) {
	if _, err := ComputePerceptualHash([]byte("not an image")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestShard(t *testing.T) {
	if got := shard("abcdef12-0000"); got != "ab" {
		t.Fatalf("shard = %q, want ab", got)
	}
	if got := shard("a"); got != "00" {
		t.Fatalf("shard = %q, want 00 fallback", got)
	}
}
