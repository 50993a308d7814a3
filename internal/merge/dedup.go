package merge

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/cinevault/core/internal/models"
)

// IdentityStore is the slice of the change-data store (spec.md §4.N)
// dedup needs: a database lookup by external id, and an insert that
// returns the assigned id.
type IdentityStore interface {
	FindByExternalID(ctx context.Context, kind models.ItemKind, provider, value string, librarySectionID uuid.UUID) (*models.MetadataItem, error)
	Insert(ctx context.Context, item models.MetadataItem) (models.MetadataItem, error)
}

// Deduper implements `findOrCreateByExternalId` (spec.md §4.F): a per-scan
// in-memory cache keyed by library section plus `{kind}:{provider}:{value}`, backed by a database
// lookup, with pending ids for not-yet-persisted items tracked by object
// identity until the insert completes.
type Deduper struct {
	store IdentityStore

	mu    sync.Mutex
	cache map[string]*models.MetadataItem
}

func NewDeduper(store IdentityStore) *Deduper {
	return &Deduper{store: store, cache: map[string]*models.MetadataItem{}}
}

// FindOrCreateByExternalID resolves identity across every id the caller
// knows about for one candidate item. Two items never merge across
// libraries: every external-id check and the eventual insert are scoped to
// librarySectionID.
func (d *Deduper) FindOrCreateByExternalID(
	ctx context.Context,
	kind models.ItemKind,
	ids []models.ExternalIdentifier,
	librarySectionID uuid.UUID,
	factory func() models.MetadataItem,
) (models.MetadataItem, error) {
	d.mu.Lock()
	for _, id := range ids {
		if cached, ok := d.cache[cacheKey(kind, id, librarySectionID)]; ok {
			d.mu.Unlock()
			return *cached, nil
		}
	}
	d.mu.Unlock()

	for _, id := range ids {
		existing, err := d.store.FindByExternalID(ctx, kind, id.Provider, id.Value, librarySectionID)
		if err != nil {
			return models.MetadataItem{}, fmt.Errorf("find by external id %s/%s: %w", id.Provider, id.Value, err)
		}
		if existing != nil {
			d.cacheAll(kind, ids, librarySectionID, existing)
			return *existing, nil
		}
	}

	item := factory()
	item.LibraryID = librarySectionID
	item.Kind = kind
	item.PendingExternalIDs = append(item.PendingExternalIDs, ids...)

	inserted, err := d.store.Insert(ctx, item)
	if err != nil {
		return models.MetadataItem{}, fmt.Errorf("insert new %s item: %w", kind, err)
	}

	d.cacheAll(kind, ids, librarySectionID, &inserted)
	return inserted, nil
}

func cacheKey(kind models.ItemKind, id models.ExternalIdentifier, librarySectionID uuid.UUID) string {
	return librarySectionID.String() + "|" + id.Key(kind)
}

func (d *Deduper) cacheAll(kind models.ItemKind, ids []models.ExternalIdentifier, librarySectionID uuid.UUID, item *models.MetadataItem) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range ids {
		d.cache[cacheKey(kind, id, librarySectionID)] = item
	}
}
