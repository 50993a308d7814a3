// Package artwork ingests poster/backdrop/logo images referenced by
// sidecar, embedded, or remote-agent metadata patches: it fetches remote
// images, places every image under a content-addressed tree keyed by the
// owning item's UUID, and computes a perceptual placeholder hash persisted
// next to it (spec.md §4.G, §6).
//
// The average-hash algorithm (decode -> grayscale -> mean threshold ->
// packed bits) is grounded directly on the teacher's
// internal/fingerprint.hashFrame, generalized from a video keyframe to any
// decoded still image. Remote fetches are wrapped in a gobreaker circuit
// breaker the same way cartographus wraps its outbound metadata-agent
// calls, so a wedged art-fanart endpoint trips open instead of stalling
// the scan pipeline's LocalMetadata stage.
package artwork

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// Kind names an artwork slot on a MetadataItem.
type Kind string

const (
	KindPoster   Kind = "poster"
	KindBackdrop Kind = "backdrop"
	KindLogo     Kind = "logo"
)

// Ref mirrors models.ArtworkRef without importing internal/models, so this
// package stays leaf-level; the scan pipeline's merge/persist stage copies
// the result across.
type Ref struct {
	URI             string
	PlaceholderHash string
}

// Store ingests artwork into a content-addressed tree rooted at Root:
// <root>/<uuid[0:2]>/<uuid>/image/<kind>.<ext> (spec.md §6).
type Store struct {
	Root       string
	HTTPClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// NewStore constructs a Store with a default 30s HTTP client and a
// gobreaker circuit breaker tripping after 5 consecutive remote-fetch
// failures, matching cartographus's ReadyToTrip shape.
func NewStore(root string) *Store {
	settings := gobreaker.Settings{
		Name:        "artwork-fetch",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Store{
		Root:       root,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		breaker:    gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

// Ingest resolves uri (a local filesystem path or an http(s) URL), writes
// it under the content-addressed tree for itemUUID/kind, and returns the
// rewritten internal URI plus a perceptual placeholder hash.
func (s *Store) Ingest(ctx context.Context, itemUUID string, kind Kind, uri string) (Ref, error) {
	data, ext, err := s.fetch(ctx, uri)
	if err != nil {
		return Ref{}, fmt.Errorf("fetch artwork %s: %w", uri, err)
	}

	hash, err := ComputePerceptualHash(data)
	if err != nil {
		// A corrupt or undecodable image still gets stored — the hash is
		// a placeholder for dedup/preview, not a correctness gate.
		hash = ""
	}

	dir := filepath.Join(s.Root, shard(itemUUID), itemUUID, "image")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Ref{}, fmt.Errorf("create artwork dir: %w", err)
	}

	destPath := filepath.Join(dir, string(kind)+ext)
	if err := writeAtomic(destPath, data); err != nil {
		return Ref{}, fmt.Errorf("write artwork: %w", err)
	}

	if hash != "" {
		hashPath := filepath.Join(dir, string(kind)+".phash")
		_ = writeAtomic(hashPath, []byte(hash))
	}

	return Ref{URI: internalURI(itemUUID, kind, ext), PlaceholderHash: hash}, nil
}

func (s *Store) fetch(ctx context.Context, uri string) (data []byte, ext string, err error) {
	if isRemote(uri) {
		result, err := s.breaker.Execute(func() ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
			if err != nil {
				return nil, err
			}
			resp, err := s.HTTPClient.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
			}
			return io.ReadAll(resp.Body)
		})
		if err != nil {
			return nil, "", err
		}
		return result, extFromURL(uri), nil
	}

	data, err = os.ReadFile(uri)
	if err != nil {
		return nil, "", err
	}
	return data, strings.ToLower(filepath.Ext(uri)), nil
}

func isRemote(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func extFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ".jpg"
	}
	if ext := strings.ToLower(filepath.Ext(u.Path)); ext != "" {
		return ext
	}
	return ".jpg"
}

func shard(uuidStr string) string {
	if len(uuidStr) >= 2 {
		return uuidStr[0:2]
	}
	return "00"
}

func internalURI(itemUUID string, kind Kind, ext string) string {
	return fmt.Sprintf("artwork://%s/%s%s", itemUUID, kind, ext)
}

func writeAtomic(dest string, data []byte) error {
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}

// ── Perceptual placeholder hash ──

const hashSize = 8

// ComputePerceptualHash decodes image bytes and returns a packed 64-bit
// average hash (aHash) as 16 hex characters: each of an 8x8 grayscale
// grid's pixels is 1 if above the mean, 0 otherwise. Grounded on
// internal/fingerprint.hashFrame, generalized from a decoded video
// keyframe to any still image format the stdlib can decode.
func ComputePerceptualHash(data []byte) (string, error) {
	img, _, err := image.Decode(newByteReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return "", fmt.Errorf("zero-size image")
	}

	pixels := make([]float64, hashSize*hashSize)
	for y := 0; y < hashSize; y++ {
		for x := 0; x < hashSize; x++ {
			sx := bounds.Min.X + x*width/hashSize
			sy := bounds.Min.Y + y*height/hashSize
			r, g, b, _ := img.At(sx, sy).RGBA()
			gray := color.GrayModel.Convert(color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), 255}).(color.Gray).Y
			pixels[y*hashSize+x] = float64(gray)
		}
	}

	var sum float64
	for _, v := range pixels {
		sum += v
	}
	avg := sum / float64(len(pixels))

	numBytes := (hashSize * hashSize) / 8
	hashBytes := make([]byte, numBytes)
	for i, v := range pixels {
		if v > avg {
			hashBytes[i/8] |= 1 << (7 - uint(i%8))
		}
	}

	return fmt.Sprintf("%x", hashBytes), nil
}

type byteReaderSeeker struct {
	data []byte
	pos  int
}

func newByteReader(data []byte) *byteReaderSeeker { return &byteReaderSeeker{data: data} }

func (b *byteReaderSeeker) Read(p []byte) (int, error) {
	if b.pos >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += n
	return n, nil
}
