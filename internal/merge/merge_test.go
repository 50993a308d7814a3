package merge

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cinevault/core/internal/models"
)

func TestApplyOverlayTitleOnlyReplacedByNonBlank(t *testing.T) {
	base := models.MetadataItem{Title: "Original"}
	out := ApplyOverlay(base, nil, false, Layer{Item: models.MetadataItem{Title: "   "}})
	if out.Title != "Original" {
		t.Fatalf("expected blank incoming title to be ignored, got %q", out.Title)
	}

	out = ApplyOverlay(base, nil, false, Layer{Item: models.MetadataItem{Title: "New Title"}})
	if out.Title != "New Title" {
		t.Fatalf("expected non-blank title to replace, got %q", out.Title)
	}
}

func TestApplyOverlayYearRecomputedFromReleaseDate(t *testing.T) {
	explicitYear := 1999
	releaseDate := time.Date(2001, time.March, 1, 0, 0, 0, 0, time.UTC)

	out := ApplyOverlay(models.MetadataItem{}, nil, false, Layer{
		Item: models.MetadataItem{Year: &explicitYear, ReleaseDate: &releaseDate},
	})
	if out.Year == nil || *out.Year != 2001 {
		t.Fatalf("expected year recomputed from release date (2001), got %v", out.Year)
	}
}

func TestApplyOverlaySkipsLockedFieldsUnlessOverridden(t *testing.T) {
	base := models.MetadataItem{Title: "Locked Title", LockedFields: []string{"title"}}

	out := ApplyOverlay(base, nil, false, Layer{Item: models.MetadataItem{Title: "Attempted Overwrite"}})
	if out.Title != "Locked Title" {
		t.Fatalf("expected locked title to resist overlay, got %q", out.Title)
	}

	out = ApplyOverlay(base, nil, false, Layer{
		Item:           models.MetadataItem{Title: "Explicit Override"},
		LockedOverride: map[string]bool{"title": true},
	})
	if out.Title != "Explicit Override" {
		t.Fatalf("expected explicit override to win, got %q", out.Title)
	}
}

func TestApplyOverlayUnionsGenresWithoutDuplicates(t *testing.T) {
	base := models.MetadataItem{Genres: []models.GenreEdge{{Name: "Action"}}}
	out := ApplyOverlay(base, nil, false,
		Layer{Item: models.MetadataItem{Genres: []models.GenreEdge{{Name: "Action"}, {Name: "Sci-Fi"}}}},
	)
	if len(out.Genres) != 2 {
		t.Fatalf("expected deduped union of 2 genres, got %v", out.Genres)
	}
}

type fakeIdentityStore struct {
	byKey map[string]*models.MetadataItem
}

func (f *fakeIdentityStore) FindByExternalID(ctx context.Context, kind models.ItemKind, provider, value string, librarySectionID uuid.UUID) (*models.MetadataItem, error) {
	key := models.ExternalIdentifier{Provider: provider, Value: value}.Key(kind)
	return f.byKey[key], nil
}

func (f *fakeIdentityStore) Insert(ctx context.Context, item models.MetadataItem) (models.MetadataItem, error) {
	item.ID = uuid.New()
	return item, nil
}

func TestDeduperCreatesOnceAndReusesFromCache(t *testing.T) {
	store := &fakeIdentityStore{byKey: map[string]*models.MetadataItem{}}
	d := NewDeduper(store)
	section := uuid.New()
	ids := []models.ExternalIdentifier{{Provider: "tmdb", Value: "78"}}

	first, err := d.FindOrCreateByExternalID(context.Background(), models.KindMovie, ids, section, func() models.MetadataItem {
		return models.MetadataItem{Title: "Blade Runner"}
	})
	if err != nil {
		t.Fatal(err)
	}

	second, err := d.FindOrCreateByExternalID(context.Background(), models.KindMovie, ids, section, func() models.MetadataItem {
		t.Fatal("factory should not be called on cache hit")
		return models.MetadataItem{}
	})
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same item id from cache, got %s vs %s", first.ID, second.ID)
	}
}

func TestDeduperCrossLibraryNeverMergesImplicitly(t *testing.T) {
	store := &fakeIdentityStore{byKey: map[string]*models.MetadataItem{}}
	d := NewDeduper(store)
	ids := []models.ExternalIdentifier{{Provider: "tmdb", Value: "78"}}

	a, err := d.FindOrCreateByExternalID(context.Background(), models.KindMovie, ids, uuid.New(), func() models.MetadataItem {
		return models.MetadataItem{Title: "Copy A"}
	})
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.FindOrCreateByExternalID(context.Background(), models.KindMovie, ids, uuid.New(), func() models.MetadataItem {
		return models.MetadataItem{Title: "Copy B"}
	})
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == b.ID {
		t.Fatal("expected distinct library sections to never share a dedup identity implicitly")
	}
}
