// Package resolve supplies the concrete ItemResolver implementations that
// internal/parts dispatches to: movies (with stacking and folder-first
// titles), extras, photos/pictures, and music. The folder-first title
// parsing and part-stacking rules are adapted from the teacher's
// scanner.go ParseFolderName/pendingMultiParts logic, generalized from a
// single monolithic walker into an ItemResolver each.
package resolve

import (
	"context"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cinevault/core/internal/fsprobe"
	"github.com/cinevault/core/internal/models"
	"github.com/cinevault/core/internal/parts"
)

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".m4v": true, ".avi": true, ".mov": true,
	".wmv": true, ".ts": true, ".m2ts": true, ".iso": true,
}

// folderTitleRe pulls "Title (Year)" or "Title (Year) {edition-...}" out of
// a directory name, same convention the teacher's ParseFolderName targets.
var folderTitleRe = regexp.MustCompile(`^(.*?)\s*\((\d{4})\)(?:\s*\{edition-([^}]+)\})?`)

// stackPartRe recognizes Plex/Kodi "-cdN"/"-partN"/"-diskN" stacking
// suffixes immediately before the extension.
var stackPartRe = regexp.MustCompile(`(?i)[-. ](cd|part|disk|disc)0*([0-9]+)$`)

// MovieResolver resolves a movie's folder into a MetadataItem skeleton and
// claims every video file inside it, grouping stacked parts together
// (spec.md §4.C).
type MovieResolver struct{}

func (MovieResolver) Priority() int { return 20 }
func (MovieResolver) Name() string  { return "movie" }

func (MovieResolver) Resolve(ctx context.Context, args parts.ResolveArgs) (parts.Resolution, bool, error) {
	if args.LibraryKind != models.LibraryMovies {
		return parts.Resolution{}, false, nil
	}
	if !args.Entry.IsDir {
		return parts.Resolution{}, false, nil
	}

	title, year, edition := parseFolderName(args.Entry.Name)
	if title == "" {
		return parts.Resolution{}, false, nil
	}

	var claimed []fsprobe.Entry
	for _, child := range args.Children {
		if child.IsDir || !videoExtensions[child.Ext] {
			continue
		}
		if looksLikeExtra(child.Name) {
			continue // ownership belongs to the extras resolver
		}
		claimed = append(claimed, child)
	}
	if len(claimed) == 0 {
		return parts.Resolution{}, false, nil
	}

	allPaths := selectMovieFiles(claimed)

	item := models.MetadataItem{
		Kind:          models.KindMovie,
		Title:         title,
		OriginalTitle: title,
	}
	if year != "" {
		y, _ := strconv.Atoi(year)
		item.Year = &y
	}
	if edition != "" {
		item.Tagline = "" // edition has no first-class field yet; carried via custom fields
		item.CustomFields = map[string]models.CustomFieldValue{
			"edition": {Kind: "string", Str: &edition},
		}
	}

	return parts.Resolution{
		Kind:         models.KindMovie,
		Item:         item,
		ClaimedPaths: allPaths,
		Outcome:      parts.OutcomeSuccess,
	}, true, nil
}

// parseFolderName implements folder-first movie title resolution: the
// directory name, not embedded file tags, is the source of truth for title
// and year (supplemented feature grounded in scanner.go's ParseFolderName).
func parseFolderName(name string) (title, year, edition string) {
	m := folderTitleRe.FindStringSubmatch(name)
	if m == nil {
		return "", "", ""
	}
	return strings.TrimSpace(m[1]), m[2], m[3]
}

func looksLikeExtra(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range []string{"trailer", "behind the scenes", "deleted", "featurette", "interview", "scene", "short", "-extra"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// selectMovieFiles decides whether claimed is a genuine stacked multi-part
// movie or a folder that just happens to hold more than one video file
// (spec.md §4.C). A folder is stacked only if every candidate's name
// carries a recognized "-cdN"/"-partN"/"-diskN" suffix AND all of them
// share the same residual basename once that suffix is stripped — the way
// the teacher's pendingMultiParts map key ("dir|baseTitle") groups parts,
// but checked as an all-or-nothing precondition instead of bucketed
// per-file. When the precondition fails, the folder isn't a stack; only
// the single largest file (by Size) is claimed, since the smaller ones are
// most likely samples or unrelated extras the extras resolver missed.
func selectMovieFiles(candidates []fsprobe.Entry) []string {
	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) == 1 {
		return []string{candidates[0].Path}
	}

	type stackedPart struct {
		path  string
		index int
	}
	group := make([]stackedPart, 0, len(candidates))
	residual := ""
	stacked := true
	for i, c := range candidates {
		base := strings.TrimSuffix(filepath.Base(c.Path), filepath.Ext(c.Path))
		m := stackPartRe.FindStringSubmatch(base)
		if m == nil {
			stacked = false
			break
		}
		r := strings.TrimSuffix(base, m[0])
		if i == 0 {
			residual = r
		} else if r != residual {
			stacked = false
			break
		}
		idx, _ := strconv.Atoi(m[2])
		group = append(group, stackedPart{path: c.Path, index: idx})
	}

	if stacked {
		sort.Slice(group, func(i, j int) bool { return group[i].index < group[j].index })
		out := make([]string, len(group))
		for i, pt := range group {
			out[i] = pt.path
		}
		return out
	}

	largest := candidates[0]
	for _, c := range candidates[1:] {
		if c.Size > largest.Size {
			largest = c
		}
	}
	return []string{largest.Path}
}
