package resolve

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/cinevault/core/internal/models"
	"github.com/cinevault/core/internal/parts"
)

var audioExtensions = map[string]bool{
	".flac": true, ".mp3": true, ".m4a": true, ".aac": true, ".ogg": true, ".opus": true, ".wav": true, ".alac": true,
}

// featuringSuffixRe strips "feat./ft./featuring/introducing ..." tails so
// "Artist feat. Other" and "Artist" group under the same canonical
// AlbumArtist (teacher's scanner.go artist-name normalization).
var featuringSuffixRe = regexp.MustCompile(`(?i)\s+(feat\.?|ft\.?|featuring|introducing)\s+.*$`)

// discTrackRe pulls an optional disc number ("1-03 Track.flac" or
// "Disc 2/03 Track.flac" handled one level up) and a track number out of a
// filename.
var discTrackRe = regexp.MustCompile(`^(?:(\d+)-)?(\d{1,3})[\s._-]+(.*)$`)

func normalizeArtist(name string) string {
	return strings.TrimSpace(featuringSuffixRe.ReplaceAllString(name, ""))
}

// ArtistResolver never materializes a standalone Person/Group node for a
// bare artist folder — artist is carried as a field on the album/track
// instead (spec.md §4.C: "artist folders never yield standalone
// Person/Group"). It never claims an entry: Resolve returns ok=false for
// every input, so an artist folder is dropped as "no resolver matched".
type ArtistResolver struct{}

func (ArtistResolver) Priority() int { return 15 }
func (ArtistResolver) Name() string  { return "music-artist" }

func (ArtistResolver) Resolve(ctx context.Context, args parts.ResolveArgs) (parts.Resolution, bool, error) {
	if args.LibraryKind != models.LibraryMusic || !args.Entry.IsDir || !args.IsRoot {
		return parts.Resolution{}, false, nil
	}
	hasAlbumChild := false
	for _, c := range args.Children {
		if c.IsDir {
			hasAlbumChild = true
			break
		}
	}
	if !hasAlbumChild {
		return parts.Resolution{}, false, nil
	}
	// An artist folder produces no item: AlbumResolver reads the artist
	// name back off the nearest ancestor folder for each child album.
	return parts.Resolution{}, false, nil
}

// AlbumResolver resolves an "Artist/Album (Year)" folder into an
// AlbumReleaseGroup. Title and year come from the folder name only;
// embedded tags are not read here (spec.md §4.C).
type AlbumResolver struct{}

func (AlbumResolver) Priority() int { return 25 }
func (AlbumResolver) Name() string  { return "music-album" }

func (AlbumResolver) Resolve(ctx context.Context, args parts.ResolveArgs) (parts.Resolution, bool, error) {
	if args.LibraryKind != models.LibraryMusic || !args.Entry.IsDir || args.IsRoot {
		return parts.Resolution{}, false, nil
	}

	var claimed []string
	hasSubdirs := false
	for _, child := range args.Children {
		switch {
		case child.IsDir:
			hasSubdirs = true
		case audioExtensions[child.Ext]:
			claimed = append(claimed, child.Path)
		}
	}
	// A folder with neither audio files nor subfolders resolves to
	// OutcomeNoEligibleFiles. Loose audio files with no album folder above
	// them are not dropped: TrackResolver claims any audio file in a music
	// library.
	if len(claimed) == 0 && !hasSubdirs {
		return parts.Resolution{
			Outcome: parts.OutcomeNoEligibleFiles,
		}, true, nil
	}
	if len(claimed) == 0 {
		return parts.Resolution{}, false, nil // multi-disc album; medium subfolders resolve individually
	}

	albumTitle := args.Entry.Name
	year := ""
	if m := folderTitleRe.FindStringSubmatch(args.Entry.Name); m != nil {
		albumTitle = strings.TrimSpace(m[1])
		year = m[2]
	}

	artistName := ""
	if len(args.Ancestors) > 0 {
		artistName = normalizeArtist(args.Ancestors[len(args.Ancestors)-1].Name)
	}

	item := models.MetadataItem{
		Kind:  models.KindAlbumReleaseGroup,
		Title: albumTitle,
	}
	if year != "" {
		y, _ := strconv.Atoi(year)
		item.Year = &y
	}
	if artistName != "" {
		item.CustomFields = map[string]models.CustomFieldValue{
			"album_artist": {Kind: "string", Str: &artistName},
		}
	}

	return parts.Resolution{
		Kind:         models.KindAlbumReleaseGroup,
		Item:         item,
		ClaimedPaths: claimed,
		Outcome:      parts.OutcomeSuccess,
	}, true, nil
}

// TrackResolver splits a claimed audio file's leading "NN - Title" or
// "D-NN Title" numbering into disc/track index. The numbers come from the
// filename only; embedded tags are not consulted.
type TrackResolver struct{}

func (TrackResolver) Priority() int { return 35 }
func (TrackResolver) Name() string  { return "music-track" }

func (TrackResolver) Resolve(ctx context.Context, args parts.ResolveArgs) (parts.Resolution, bool, error) {
	if args.LibraryKind != models.LibraryMusic || args.Entry.IsDir || !audioExtensions[args.Entry.Ext] {
		return parts.Resolution{}, false, nil
	}

	base := strings.TrimSuffix(args.Entry.Name, args.Entry.Ext)
	title := base
	var discNum, trackNum *int
	if m := discTrackRe.FindStringSubmatch(base); m != nil {
		if m[1] != "" {
			d, _ := strconv.Atoi(m[1])
			discNum = &d
		}
		t, _ := strconv.Atoi(m[2])
		trackNum = &t
		title = strings.TrimSpace(m[3])
	}

	item := models.MetadataItem{
		Kind:          models.KindTrack,
		Title:         title,
		ParentIndex:   discNum,
		AbsoluteIndex: trackNum,
	}
	if args.ResolvedParent != nil {
		item.ParentID = &args.ResolvedParent.Item.ID
	}

	return parts.Resolution{
		Kind:         models.KindTrack,
		Item:         item,
		ClaimedPaths: []string{args.Entry.Path},
		Outcome:      parts.OutcomeSuccess,
	}, true, nil
}
