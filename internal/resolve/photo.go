package resolve

import (
	"context"
	"regexp"

	"github.com/cinevault/core/internal/models"
	"github.com/cinevault/core/internal/parts"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".heic": true, ".tiff": true, ".raw": true, ".cr2": true, ".nef": true,
}

// dateOnlyFolderRe matches bare date folders (2024-06-01, 2024_06) that
// photo apps create automatically — these aren't materialized as albums
// (spec.md §4.C) and carry no other meaning for the resolver.
var dateOnlyFolderRe = regexp.MustCompile(`^\d{4}([-_]\d{2}){0,2}$`)

// PhotoResolver treats every non-date folder that directly contains image
// files as an album; it does not check whether the folder is a leaf, so a
// folder holding images and a subfolder of images yields two albums. Bare
// date folders are skipped as album roots so "2024/2024-06-01/beach trip"
// yields one album, not two.
type PhotoResolver struct{}

func (PhotoResolver) Priority() int { return 30 }
func (PhotoResolver) Name() string  { return "photo" }

func (PhotoResolver) Resolve(ctx context.Context, args parts.ResolveArgs) (parts.Resolution, bool, error) {
	if args.LibraryKind != models.LibraryPhotos && args.LibraryKind != models.LibraryPictures {
		return parts.Resolution{}, false, nil
	}
	if !args.Entry.IsDir {
		return parts.Resolution{}, false, nil
	}
	if dateOnlyFolderRe.MatchString(args.Entry.Name) {
		return parts.Resolution{}, false, nil
	}

	var claimed []string
	for _, child := range args.Children {
		if !child.IsDir && imageExtensions[child.Ext] {
			claimed = append(claimed, child.Path)
		}
	}
	if len(claimed) == 0 {
		return parts.Resolution{}, false, nil
	}

	// The leaf folder itself becomes the album; each claimed path is
	// materialized as a child Photo/Picture item by the merge stage.
	albumKind := models.KindPhotoAlbum
	if args.LibraryKind == models.LibraryPictures {
		albumKind = models.KindPictureSet
	}

	return parts.Resolution{
		Kind:         albumKind,
		Item:         models.MetadataItem{Kind: albumKind, Title: args.Entry.Name},
		ClaimedPaths: claimed,
		Relations:    []models.Relation{{Type: models.RelationCollectionMember}},
		Outcome:      parts.OutcomeSuccess,
	}, true, nil
}
