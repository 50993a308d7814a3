package hls

import (
	"strings"
	"testing"

	"github.com/matryer/is"

	"github.com/cinevault/core/internal/models"
)

func TestBuildMasterPlaylistOrdersByBandwidth(t *testing.T) {
	is := is.New(t)

	playlist := BuildMasterPlaylist([]Rendition{
		{Target: models.TranscodeTarget{Width: 1920, Height: 1080, BitrateBps: 5_000_000}, URI: "/1080p/stream.m3u8"},
		{Target: models.TranscodeTarget{Width: 640, Height: 360, BitrateBps: 800_000}, URI: "/360p/stream.m3u8"},
	})

	is.True(strings.HasPrefix(playlist, "#EXTM3U\n"))
	lowIdx := strings.Index(playlist, "/360p/stream.m3u8")
	highIdx := strings.Index(playlist, "/1080p/stream.m3u8")
	is.True(lowIdx >= 0)
	is.True(highIdx >= 0)
	is.True(lowIdx < highIdx) // lowest-bandwidth variant listed first
}

func TestBuildMasterPlaylistIncludesResolutionAndCodecs(t *testing.T) {
	is := is.New(t)

	playlist := BuildMasterPlaylist([]Rendition{
		{Target: models.TranscodeTarget{Width: 1280, Height: 720, BitrateBps: 2_800_000, VideoCodec: "avc1.640028", AudioCodec: "mp4a.40.2"}, URI: "/720p/stream.m3u8"},
	})

	is.True(strings.Contains(playlist, "RESOLUTION=1280x720"))
	is.True(strings.Contains(playlist, "BANDWIDTH=2800000"))
	is.True(strings.Contains(playlist, `CODECS="avc1.640028,mp4a.40.2"`))
}

func TestBuildMasterPlaylistForItemUsesDefaultLadder(t *testing.T) {
	is := is.New(t)

	playlist := BuildMasterPlaylistForItem("/api/stream/abc123", DefaultLadder)
	for _, rung := range DefaultLadder {
		is.True(strings.Contains(playlist, "/api/stream/abc123/"+rung.Name+"/stream.m3u8"))
	}
}
