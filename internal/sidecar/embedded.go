package sidecar

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cinevault/core/internal/ffmpeg"
	"github.com/cinevault/core/internal/models"
	"github.com/cinevault/core/internal/parts"
)

// jsonSidecar is the shape a metadata.json sidecar is expected to decode
// into; unknown fields are ignored rather than rejected, matching the
// forward-compatible parsing style of CineVault's NFO import.
type jsonSidecar struct {
	Title         string   `json:"title"`
	SortTitle     string   `json:"sort_title"`
	Summary       string   `json:"summary"`
	Tagline       string   `json:"tagline"`
	ContentRating string   `json:"content_rating"`
	ReleaseDate   string   `json:"release_date"`
	Genres        []string `json:"genres"`
	Tags          []string `json:"tags"`
	ExternalIDs   map[string]string `json:"external_ids"`
}

func decodeMetadataJSON(data []byte) (models.MetadataItem, map[string]string, error) {
	var doc jsonSidecar
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.MetadataItem{}, nil, err
	}

	item := models.MetadataItem{
		Title:         doc.Title,
		SortTitle:     doc.SortTitle,
		Summary:       doc.Summary,
		Tagline:       doc.Tagline,
		ContentRating: doc.ContentRating,
		Year:          parseYear(doc.ReleaseDate),
	}
	for _, g := range doc.Genres {
		item.Genres = append(item.Genres, models.GenreEdge{Name: g})
	}
	for _, t := range doc.Tags {
		item.Tags = append(item.Tags, models.TagEdge{Name: t})
	}
	for provider, value := range doc.ExternalIDs {
		item.PendingExternalIDs = append(item.PendingExternalIDs, models.ExternalIdentifier{Provider: provider, Value: value})
	}

	return item, map[string]string{}, nil
}

// FFprobeExtractor extracts embedded audio/video/subtitle stream metadata
// from a media file using internal/ffmpeg's FFprobe wrapper — the same
// probe CineVault's transcode path uses for codec/resolution decisions,
// reused here instead of a second hand-rolled ffprobe JSON parser.
type FFprobeExtractor struct {
	probe *ffmpeg.FFprobe
}

func NewFFprobeExtractor(ffprobePath string) FFprobeExtractor {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return FFprobeExtractor{probe: ffmpeg.NewFFprobe(ffprobePath)}
}

func (FFprobeExtractor) Name() string { return "ffprobe" }

func (e FFprobeExtractor) Extract(ctx context.Context, partPath string) (parts.EmbeddedResult, error) {
	result, err := e.probe.Probe(ctx, partPath)
	if err != nil {
		return parts.EmbeddedResult{}, err
	}

	out := parts.EmbeddedResult{Tags: map[string]string{}}
	for _, s := range result.Streams {
		kind, ok := streamKindFor(s.CodecType)
		if !ok {
			continue
		}
		stream := models.MediaStream{
			Kind:          kind,
			StreamIndex:   s.Index,
			Codec:         s.CodecName,
			Profile:       s.Profile,
			Language:      s.Tags["language"],
			Title:         s.Tags["title"],
			Channels:      s.Channels,
			ChannelLayout: s.ChannelLayout,
			Width:         s.Width,
			Height:        s.Height,
			IsDefault:     s.Disposition.Default == 1,
			IsForced:      s.Disposition.Forced == 1,
			IsSDH:         s.Disposition.HearingImpaired == 1 || isSDHTrack(s.Tags["title"]),
		}
		out.Streams = append(out.Streams, stream)
	}
	return out, nil
}

func streamKindFor(codecType string) (models.StreamKind, bool) {
	switch codecType {
	case "video":
		return models.StreamVideo, true
	case "audio":
		return models.StreamAudio, true
	case "subtitle":
		return models.StreamSubtitle, true
	default:
		return "", false
	}
}

func isSDHTrack(title string) bool {
	lower := strings.ToLower(title)
	for _, kw := range []string{"sdh", "cc", "hearing impaired"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
