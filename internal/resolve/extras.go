package resolve

import (
	"context"
	"strings"

	"github.com/cinevault/core/internal/models"
	"github.com/cinevault/core/internal/parts"
)

// extraKeywordKinds maps a filename/folder keyword to the extra ItemKind it
// implies, in longest-match-first precedence so "behind the scenes" wins
// over a bare "scene".
var extraKeywordKinds = []struct {
	keyword string
	kind    models.ItemKind
}{
	{"behind the scenes", models.KindBehindTheScenes},
	{"deleted scene", models.KindDeletedScene},
	{"featurette", models.KindFeaturette},
	{"interview", models.KindInterview},
	{"trailer", models.KindTrailer},
	{"short", models.KindShortForm},
	{"scene", models.KindScene},
	{"clip", models.KindClip},
}

// extraFolderNames are well-known folders Plex/Jellyfin treat as extras
// containers, each implying a default kind for inline-named files inside.
var extraFolderNames = map[string]models.ItemKind{
	"trailers":           models.KindTrailer,
	"behind the scenes":  models.KindBehindTheScenes,
	"deleted scenes":     models.KindDeletedScene,
	"featurettes":        models.KindFeaturette,
	"interviews":         models.KindInterview,
	"scenes":             models.KindScene,
	"shorts":             models.KindShortForm,
	"other":              models.KindExtraOther,
}

// ExtrasResolver claims video files that are either inline-named extras
// living alongside a primary item (movie-trailer.mkv) or contained in a
// dedicated extras folder (Trailers/movie-name.mkv). It runs before
// MovieResolver so extras never get swallowed as a stacked movie part.
type ExtrasResolver struct{}

func (ExtrasResolver) Priority() int { return 10 }
func (ExtrasResolver) Name() string  { return "extras" }

func (ExtrasResolver) Resolve(ctx context.Context, args parts.ResolveArgs) (parts.Resolution, bool, error) {
	if args.Entry.IsDir {
		return resolveExtrasFolder(args)
	}
	return resolveInlineExtra(args)
}

func resolveExtrasFolder(args parts.ResolveArgs) (parts.Resolution, bool, error) {
	kind, ok := extraFolderNames[strings.ToLower(args.Entry.Name)]
	if !ok {
		return parts.Resolution{}, false, nil
	}

	var claimed []string
	for _, child := range args.Children {
		if child.IsDir || !videoExtensions[child.Ext] {
			continue
		}
		claimed = append(claimed, child.Path)
	}
	if len(claimed) == 0 {
		return parts.Resolution{
			Outcome: parts.OutcomeNoEligibleFiles,
		}, true, nil
	}

	if args.ResolvedParent == nil {
		// Folder exists, files exist, but we don't yet know who owns them —
		// emit a pending relation the merge stage resolves once the parent
		// item is persisted (spec.md §4.C, "extras resolved before owner
		// folder created").
		return parts.Resolution{
			Kind:         kind,
			Item:         models.MetadataItem{Kind: kind, Title: args.Entry.Name},
			ClaimedPaths: claimed,
			Relations: []models.Relation{
				{Type: models.RelationFeaturetteBelongs, Pending: true},
			},
			Outcome: parts.OutcomeMissingFolder,
		}, true, nil
	}

	return parts.Resolution{
		Kind:         kind,
		Item:         models.MetadataItem{Kind: kind, Title: args.Entry.Name, ParentID: &args.ResolvedParent.Item.ID},
		ClaimedPaths: claimed,
		Relations: []models.Relation{
			{Type: models.RelationFeaturetteBelongs, TargetID: args.ResolvedParent.Item.ID},
		},
		Outcome: parts.OutcomeSuccess,
	}, true, nil
}

func resolveInlineExtra(args parts.ResolveArgs) (parts.Resolution, bool, error) {
	if !videoExtensions[args.Entry.Ext] {
		return parts.Resolution{}, false, nil
	}
	if !looksLikeExtra(args.Entry.Name) {
		return parts.Resolution{}, false, nil
	}

	kind := models.KindExtraOther
	for _, kk := range extraKeywordKinds {
		if strings.Contains(strings.ToLower(args.Entry.Name), kk.keyword) {
			kind = kk.kind
			break
		}
	}

	if args.ResolvedParent == nil {
		return parts.Resolution{
			Kind:         kind,
			Item:         models.MetadataItem{Kind: kind, Title: args.Entry.Name},
			ClaimedPaths: []string{args.Entry.Path},
			Relations: []models.Relation{
				{Type: models.RelationClipSupplements, Pending: true},
			},
			Outcome: parts.OutcomeAmbiguousCandidates,
		}, true, nil
	}

	return parts.Resolution{
		Kind:         kind,
		Item:         models.MetadataItem{Kind: kind, Title: args.Entry.Name, ParentID: &args.ResolvedParent.Item.ID},
		ClaimedPaths: []string{args.Entry.Path},
		Relations: []models.Relation{
			{Type: models.RelationClipSupplements, TargetID: args.ResolvedParent.Item.ID},
		},
		Outcome: parts.OutcomeSuccess,
	}, true, nil
}
