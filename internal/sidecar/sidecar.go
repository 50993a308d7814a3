// Package sidecar implements sidecar-file and embedded-tag enrichment
// (spec.md §4.D): NFO/JSON sidecar parsing and ffprobe-driven embedded
// extraction, both producing a partial metadata patch the merge stage
// overlays. Adapted from CineVault's internal/metadata/nfo.go import path
// and the embedded-extraction half of scanner.go (subtitle/audio/chapter
// pulls off ffprobe output).
package sidecar

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cinevault/core/internal/models"
	"github.com/cinevault/core/internal/parts"
)

// Request is this package's name for parts.SidecarRequest, kept as an
// alias so callers outside internal/parts don't need to import it under
// two names.
type Request = parts.SidecarRequest

// nfoDocument is the subset of Kodi/Jellyfin NFO XML this parser reads.
type nfoDocument struct {
	XMLName xml.Name `xml:"movie"`
	Title   string   `xml:"title"`
	Sorttitle string `xml:"sorttitle"`
	Plot    string   `xml:"plot"`
	Tagline string   `xml:"tagline"`
	Year    int      `xml:"year"`
	Premiered string `xml:"premiered"`
	MPAA    string   `xml:"mpaa"`
	UniqueIDs []struct {
		Type  string `xml:"type,attr"`
		Value string `xml:",chardata"`
	} `xml:"uniqueid"`
	Genres []string `xml:"genre"`
	Tags   []string `xml:"tag"`
}

// NFOParser reads Kodi-style `.nfo` XML sidecars.
type NFOParser struct{}

func (NFOParser) Name() string { return "nfo" }

func (NFOParser) CanParse(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".nfo")
}

func (NFOParser) Parse(ctx context.Context, req Request) (parts.SidecarResult, error) {
	data, err := os.ReadFile(req.SidecarFile)
	if err != nil {
		return parts.SidecarResult{}, fmt.Errorf("read nfo %s: %w", req.SidecarFile, err)
	}

	var doc nfoDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		// Malformed NFO is a benign-skip, not a pipeline-aborting error; the
		// caller is expected to classify via internal/scanerr.
		return parts.SidecarResult{}, fmt.Errorf("parse nfo %s: %w", req.SidecarFile, err)
	}

	item := models.MetadataItem{
		Title:     doc.Title,
		SortTitle: doc.Sorttitle,
		Summary:   doc.Plot,
		Tagline:   doc.Tagline,
	}
	if doc.Year > 0 {
		item.Year = &doc.Year
	}
	if doc.MPAA != "" {
		item.ContentRating = doc.MPAA
	}

	var ext []models.ExternalIdentifier
	for _, id := range doc.UniqueIDs {
		if id.Type != "" && id.Value != "" {
			ext = append(ext, models.ExternalIdentifier{Provider: id.Type, Value: id.Value})
		}
	}
	item.PendingExternalIDs = ext

	for _, g := range doc.Genres {
		item.Genres = append(item.Genres, models.GenreEdge{Name: g})
	}
	for _, t := range doc.Tags {
		item.Tags = append(item.Tags, models.TagEdge{Name: t})
	}

	return parts.SidecarResult{
		Source: "nfo",
		Item:   item,
		Hints:  map[string]string{"premiered": doc.Premiered},
	}, nil
}

// LocalArtworkParser recognizes conventional poster/fanart/logo sidecar
// image files and turns them into hints artwork ingestion (§4.G) consumes.
type LocalArtworkParser struct{}

func (LocalArtworkParser) Name() string { return "local-artwork" }

var artworkHintNames = map[string]string{
	"poster":   "poster",
	"folder":   "poster",
	"cover":    "poster",
	"fanart":   "backdrop",
	"backdrop": "backdrop",
	"background": "backdrop",
	"logo":     "logo",
	"clearlogo": "logo",
}

func (LocalArtworkParser) CanParse(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
		return false
	}
	base := strings.ToLower(strings.TrimSuffix(filepath.Base(path), ext))
	_, ok := artworkHintNames[base]
	return ok
}

func (LocalArtworkParser) Parse(ctx context.Context, req Request) (parts.SidecarResult, error) {
	ext := strings.ToLower(filepath.Ext(req.SidecarFile))
	base := strings.ToLower(strings.TrimSuffix(filepath.Base(req.SidecarFile), ext))
	kind, ok := artworkHintNames[base]
	if !ok {
		return parts.SidecarResult{}, fmt.Errorf("local-artwork: unrecognized sidecar name %s", base)
	}
	return parts.SidecarResult{
		Source: "local-artwork",
		Hints:  map[string]string{"artwork." + kind: req.SidecarFile},
	}, nil
}

// JSONSidecarParser reads a generic metadata.json sidecar, the format
// plugin-contributed agents commonly emit for re-import.
type JSONSidecarParser struct{}

func (JSONSidecarParser) Name() string { return "metadata-json" }

func (JSONSidecarParser) CanParse(path string) bool {
	return strings.EqualFold(filepath.Base(path), "metadata.json")
}

func (JSONSidecarParser) Parse(ctx context.Context, req Request) (parts.SidecarResult, error) {
	data, err := os.ReadFile(req.SidecarFile)
	if err != nil {
		return parts.SidecarResult{}, fmt.Errorf("read metadata.json %s: %w", req.SidecarFile, err)
	}
	item, hints, err := decodeMetadataJSON(data)
	if err != nil {
		return parts.SidecarResult{}, fmt.Errorf("parse metadata.json %s: %w", req.SidecarFile, err)
	}
	return parts.SidecarResult{Source: "metadata-json", Item: item, Hints: hints}, nil
}

// MergeSidecarResults applies the last-writer-wins / set-union / right-biased
// merge rule spec.md §4.D specifies for multiple parsers claiming the same
// file set.
func MergeSidecarResults(results []parts.SidecarResult) parts.SidecarResult {
	var merged parts.SidecarResult
	merged.Hints = map[string]string{}

	var sources []string
	genreSeen := map[string]bool{}
	tagSeen := map[string]bool{}

	for _, r := range results {
		if r.Source != "" {
			sources = append(sources, r.Source)
		}
		mergeNonBlankFields(&merged.Item, r.Item)

		for _, g := range r.Item.Genres {
			if !genreSeen[g.Name] {
				genreSeen[g.Name] = true
				merged.Item.Genres = append(merged.Item.Genres, g)
			}
		}
		for _, t := range r.Item.Tags {
			if !tagSeen[t.Name] {
				tagSeen[t.Name] = true
				merged.Item.Tags = append(merged.Item.Tags, t)
			}
		}
		merged.Item.PendingExternalIDs = append(merged.Item.PendingExternalIDs, r.Item.PendingExternalIDs...)

		for k, v := range r.Hints {
			merged.Hints[k] = v // right-biased: later parser wins
		}
	}

	merged.Source = strings.Join(sources, "+")
	return merged
}

// mergeNonBlankFields applies last-writer-wins for non-null/non-blank
// scalar fields, in the order spec.md §4.D describes.
func mergeNonBlankFields(dst *models.MetadataItem, src models.MetadataItem) {
	if strings.TrimSpace(src.Title) != "" {
		dst.Title = strings.TrimSpace(src.Title)
	}
	if strings.TrimSpace(src.SortTitle) != "" {
		dst.SortTitle = strings.TrimSpace(src.SortTitle)
	}
	if src.Summary != "" {
		dst.Summary = src.Summary
	}
	if src.Tagline != "" {
		dst.Tagline = src.Tagline
	}
	if src.ContentRating != "" {
		dst.ContentRating = src.ContentRating
	}
	if src.Year != nil {
		dst.Year = src.Year
	}
	if src.ReleaseDate != nil {
		dst.ReleaseDate = src.ReleaseDate
	}
}

func parseYear(s string) *int {
	s = strings.TrimSpace(s)
	if len(s) < 4 {
		return nil
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil {
		return nil
	}
	return &y
}
