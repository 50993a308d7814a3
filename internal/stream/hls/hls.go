// Package hls builds HLS master playlists for HLS-only clients (older
// Safari/tvOS) using a real m3u8 encoder, replacing the teacher's
// hand-built "#EXTM3U" string concatenation in
// stream/transcoder.go's GenerateMasterPlaylist. DASH remains this repo's
// primary transcode delivery format (internal/transcode,
// internal/seekreload); this package is the HLS side of the same ABR
// quality ladder for clients that never negotiate DASH.
package hls

import (
	"fmt"
	"sort"

	"github.com/mogiioin/hls-m3u8/m3u8"

	"github.com/cinevault/core/internal/models"
)

// Rendition names one ABR quality rung plus the URI serving its media
// playlist, already resolved by the caller (typically
// /api/stream/<session>/<rung>/stream.m3u8).
type Rendition struct {
	Target models.TranscodeTarget
	URI    string
}

// BuildMasterPlaylist encodes an HLS master playlist with one
// EXT-X-STREAM-INF variant per rendition, sorted by ascending bandwidth so
// a dumb player that takes the first entry starts at the lowest rung.
func BuildMasterPlaylist(renditions []Rendition) string {
	sorted := make([]Rendition, len(renditions))
	copy(sorted, renditions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Target.BitrateBps < sorted[j].Target.BitrateBps })

	p := m3u8.NewMasterPlaylist()
	for _, r := range sorted {
		params := m3u8.VariantParams{
			Bandwidth:  bandwidth(r.Target),
			Resolution: fmt.Sprintf("%dx%d", r.Target.Width, r.Target.Height),
			Codecs:     codecsString(r.Target),
		}
		p.Append(r.URI, nil, params)
	}
	return p.Encode().String()
}

func bandwidth(t models.TranscodeTarget) uint32 {
	if t.BitrateBps <= 0 {
		return 0
	}
	return uint32(t.BitrateBps)
}

// codecsString fills in the RFC 6381 CODECS attribute with a reasonable
// default (H.264 High@4.0 / AAC-LC) when the target didn't pin one, since
// most HLS clients refuse to probe a variant that omits CODECS entirely.
func codecsString(t models.TranscodeTarget) string {
	v := t.VideoCodec
	if v == "" {
		v = "avc1.640028"
	}
	a := t.AudioCodec
	if a == "" {
		a = "mp4a.40.2"
	}
	return v + "," + a
}

// Rung is one rendition in the ABR quality ladder HLS clients select from,
// a generalized form of the teacher's fixed stream/transcoder.go Qualities
// map (which this package's DefaultLadder reproduces as data).
type Rung struct {
	Name       string
	Width      int
	Height     int
	BitrateBps int64
}

// DefaultLadder mirrors the teacher's five-rung Qualities map.
var DefaultLadder = []Rung{
	{Name: "360p", Width: 640, Height: 360, BitrateBps: 800_000},
	{Name: "480p", Width: 854, Height: 480, BitrateBps: 1_400_000},
	{Name: "720p", Width: 1280, Height: 720, BitrateBps: 2_800_000},
	{Name: "1080p", Width: 1920, Height: 1080, BitrateBps: 5_000_000},
	{Name: "4K", Width: 3840, Height: 2160, BitrateBps: 14_000_000},
}

// BuildMasterPlaylistForItem builds the master playlist referencing one
// media-playlist URI per ladder rung, rooted at uriPrefix (typically
// "/api/stream/<mediaItemID>"), mirroring the URI shape
// GenerateMasterPlaylist hard-coded per quality name.
func BuildMasterPlaylistForItem(uriPrefix string, ladder []Rung) string {
	renditions := make([]Rendition, len(ladder))
	for i, rung := range ladder {
		renditions[i] = Rendition{
			Target: models.TranscodeTarget{Width: rung.Width, Height: rung.Height, BitrateBps: rung.BitrateBps},
			URI:    fmt.Sprintf("%s/%s/stream.m3u8", uriPrefix, rung.Name),
		}
	}
	return BuildMasterPlaylist(renditions)
}
