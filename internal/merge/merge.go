// Package merge implements the metadata overlay and identity/dedup
// protocol (spec.md §4.F): `resolved <- embedded <- sidecar <- remote`
// layering with field-specific policies, and
// `findOrCreateByExternalId` keyed dedup across a scan. Grounded on
// CineVault's upsert-by-unique-key repository pattern
// (internal/repository), generalized from single-table upserts into a
// layered in-memory overlay applied before one persistence call.
package merge

import (
	"strings"
	"time"

	"github.com/cinevault/core/internal/models"
)

// ContentRatingResolver resolves a bare content rating string (e.g. "TV-14",
// "R") to a minimum viewer age, parameterized by whether the item is
// television-kind, per spec.md §4.F.
type ContentRatingResolver interface {
	ResolveAge(rating string, isTelevision bool) (age int, ok bool)
}

// Layer is one named overlay pass; LockedOverride lists field names the
// caller explicitly wants to refresh despite being locked.
type Layer struct {
	Source         string
	Item           models.MetadataItem
	LockedOverride map[string]bool
}

// ApplyOverlay layers resolved <- embedded <- sidecar <- remote onto base
// (the previously-persisted item, or a zero value for a new item), per
// spec.md §4.F's field policy.
func ApplyOverlay(base models.MetadataItem, ratings ContentRatingResolver, isTelevision bool, layers ...Layer) models.MetadataItem {
	out := base

	for _, layer := range layers {
		src := layer.Item
		overridden := layer.LockedOverride

		setIfUnlocked := func(field string, apply func()) {
			if out.IsFieldLocked(field) && !overridden[field] {
				return
			}
			apply()
		}

		if t := strings.TrimSpace(src.Title); t != "" {
			setIfUnlocked("title", func() { out.Title = t })
		}
		if t := strings.TrimSpace(src.SortTitle); t != "" {
			setIfUnlocked("sort_title", func() { out.SortTitle = t })
		}
		if src.OriginalTitle != "" {
			setIfUnlocked("original_title", func() { out.OriginalTitle = src.OriginalTitle })
		}
		if src.Summary != "" {
			setIfUnlocked("summary", func() { out.Summary = src.Summary })
		}
		if src.Tagline != "" {
			setIfUnlocked("tagline", func() { out.Tagline = src.Tagline })
		}

		// Year is deterministically recomputed from ReleaseDate whenever
		// this layer sets ReleaseDate, even if Year was also supplied —
		// the authoritative release date always wins (spec.md §9 open
		// question: preserved as-is, not "fixed").
		if src.ReleaseDate != nil {
			setIfUnlocked("release_date", func() {
				out.ReleaseDate = src.ReleaseDate
				year := src.ReleaseDate.Year()
				out.Year = &year
			})
		} else if src.Year != nil {
			setIfUnlocked("year", func() { out.Year = src.Year })
		}

		if src.ContentRating != "" {
			setIfUnlocked("content_rating", func() {
				out.ContentRating = src.ContentRating
				if src.ContentRatingAge != nil {
					out.ContentRatingAge = src.ContentRatingAge
				} else if ratings != nil {
					if age, ok := ratings.ResolveAge(src.ContentRating, isTelevision); ok {
						out.ContentRatingAge = &age
					}
				}
			})
		}

		if src.DurationMs != nil {
			setIfUnlocked("duration_ms", func() { out.DurationMs = src.DurationMs })
		}

		if len(src.CustomFields) > 0 {
			if out.CustomFields == nil {
				out.CustomFields = map[string]models.CustomFieldValue{}
			}
			for k, v := range src.CustomFields {
				out.CustomFields[k] = v // right-biased map merge
			}
		}

		out.PendingExternalIDs = append(out.PendingExternalIDs, src.PendingExternalIDs...)

		out.Genres = unionGenres(out.Genres, src.Genres)
		out.Tags = unionTags(out.Tags, src.Tags)

		_ = layer.Source // carried for provenance logging by the caller
	}

	out.UpdatedAt = time.Now()
	return out
}

func unionGenres(existing, incoming []models.GenreEdge) []models.GenreEdge {
	seen := make(map[string]bool, len(existing))
	for _, g := range existing {
		seen[g.Name] = true
	}
	for _, g := range incoming {
		if !seen[g.Name] {
			seen[g.Name] = true
			existing = append(existing, g)
		}
	}
	return existing
}

func unionTags(existing, incoming []models.TagEdge) []models.TagEdge {
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[t.Name] = true
	}
	for _, t := range incoming {
		if !seen[t.Name] {
			seen[t.Name] = true
			existing = append(existing, t)
		}
	}
	return existing
}
