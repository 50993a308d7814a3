// Package playlist implements the playlist generator & session engine
// (spec.md §4.M): a server-owned cursor over a deterministic ordering of
// items, with optional seeded shuffle, repeat-cycling, and chunked
// materialization into PlaylistGeneratorItem rows.
//
// Nothing in the example pack generates playlists directly; this package's
// shape (a persisted cursor advanced by store.PlaylistStore, materialized
// in bounded chunks) follows internal/scanpipe's checkpoint-cursor pattern
// generalized from "resume a scan" to "resume a playback queue", and its
// deterministic shuffle is grounded on the same requirement spec.md states
// for LibraryScan resume: re-deriving identical output from a persisted,
// opaque cursor string rather than from wall-clock entropy.
package playlist

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/cinevault/core/internal/models"
	"github.com/cinevault/core/internal/store"
)

// DefaultChunkSize is used when a caller (or the loaded config) supplies
// zero, matching spec.md's stated default.
const DefaultChunkSize = 20

// Engine drives PlaylistGenerator lifecycle over a PlaylistStore.
type Engine struct {
	Store store.PlaylistStore
}

func NewEngine(st store.PlaylistStore) *Engine {
	return &Engine{Store: st}
}

// seedFromState derives a deterministic int64 seed from an opaque
// shuffleState string (persisted on models.PlaylistGenerator), so the same
// state always reproduces the same permutation regardless of process
// restarts or which instance serves the request.
func seedFromState(state string) int64 {
	return int64(xxhash.Sum64String(state))
}

// Order returns itemIDs in playback order: identity order if shuffle is
// false, or a Fisher-Yates permutation seeded by shuffleState if true. The
// same (itemIDs, shuffleState, cohortOf) triple always yields the same
// permutation.
//
// cohortOf, when non-nil, maps an item to the grouping key it belongs to
// (e.g. an album ID for a track, a season ID for an episode). Shuffling
// then permutes whole cohorts as contiguous blocks rather than individual
// items, so every item sharing a cohort stays adjacent and in its original
// relative order afterward — spec.md §4.M's "shuffle to respect grouping
// (e.g., keep an album together)". Items with no cohortOf entry (or an
// empty key) are each their own singleton block and shuffle independently,
// matching the no-grouping behavior when cohortOf is nil.
func Order(itemIDs []uuid.UUID, shuffle bool, shuffleState string, cohortOf map[uuid.UUID]string) []uuid.UUID {
	if !shuffle {
		out := make([]uuid.UUID, len(itemIDs))
		copy(out, itemIDs)
		return out
	}

	blocks := groupByCohort(itemIDs, cohortOf)
	rng := rand.New(rand.NewSource(seedFromState(shuffleState)))
	rng.Shuffle(len(blocks), func(i, j int) { blocks[i], blocks[j] = blocks[j], blocks[i] })

	out := make([]uuid.UUID, 0, len(itemIDs))
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out
}

// groupByCohort partitions itemIDs into blocks: every item sharing a
// non-empty cohortOf key collapses into one block (in that key's
// first-appearance order), and every item with no key becomes its own
// singleton block. Block order overall follows first appearance too, so
// the partition itself is deterministic before any shuffle runs.
func groupByCohort(itemIDs []uuid.UUID, cohortOf map[uuid.UUID]string) [][]uuid.UUID {
	indexOf := make(map[string]int, len(itemIDs))
	var blocks [][]uuid.UUID
	for _, id := range itemIDs {
		key := ""
		if cohortOf != nil {
			key = cohortOf[id]
		}
		if key == "" {
			blocks = append(blocks, []uuid.UUID{id})
			continue
		}
		if i, ok := indexOf[key]; ok {
			blocks[i] = append(blocks[i], id)
			continue
		}
		indexOf[key] = len(blocks)
		blocks = append(blocks, []uuid.UUID{id})
	}
	return blocks
}

// NewShuffleState mints a fresh opaque shuffle state string from a
// generator's public id and its current total count, so regenerating the
// ordering (e.g. after a library rescan changes TotalCount) produces a
// distinct, still-deterministic permutation rather than silently reusing
// the old one.
func NewShuffleState(publicID uuid.UUID, totalCount int) string {
	return fmt.Sprintf("%s:%d", publicID, totalCount)
}

// NextCursor advances cursor by one slot. If repeat is true and the cursor
// runs past totalCount, it wraps via modulo (spec.md §4.M); otherwise
// ended reports true once the cursor reaches totalCount, and the returned
// cursor is clamped to totalCount rather than left out of range.
func NextCursor(cursor, totalCount int, repeat bool) (next int, ended bool) {
	if totalCount <= 0 {
		return 0, true
	}
	next = cursor + 1
	if next >= totalCount {
		if repeat {
			return next % totalCount, false
		}
		return totalCount, true
	}
	return next, false
}

// Materialize builds the PlaylistGeneratorItem rows for a generator: every
// ordered item gets a SortOrder, a Cohort tag distinguishing this
// generation pass from any that preceded it (e.g. after a reshuffle), and
// Served=false.
func Materialize(generatorID uuid.UUID, ordered []uuid.UUID, lookup map[uuid.UUID]*models.MediaItem, cohort string) []*models.PlaylistGeneratorItem {
	items := make([]*models.PlaylistGeneratorItem, 0, len(ordered))
	for i, metadataItemID := range ordered {
		item := &models.PlaylistGeneratorItem{
			GeneratorID:    generatorID,
			MetadataItemID: metadataItemID,
			SortOrder:      i,
			Cohort:         cohort,
		}
		if mi, ok := lookup[metadataItemID]; ok {
			item.MediaItemID = &mi.ID
		}
		items = append(items, item)
	}
	return items
}

// Advance persists the next cursor position for a generator and marks the
// slot it just left as served (spec.md §4.M's served/cohort bookkeeping).
func (e *Engine) Advance(ctx context.Context, g *models.PlaylistGenerator) (ended bool, err error) {
	if err := e.Store.MarkServed(ctx, g.PublicID, g.Cursor); err != nil {
		return false, err
	}
	next, ended := NextCursor(g.Cursor, g.TotalCount, g.Repeat)
	if err := e.Store.AdvanceCursor(ctx, g.PublicID, next); err != nil {
		return false, err
	}
	g.Cursor = next
	return ended, nil
}

// effectiveChunkSize applies DefaultChunkSize when the generator was
// created with zero (spec.md's stated default). The config's
// PlaylistChunkSize (default 50) is not read by this package.
func effectiveChunkSize(chunkSize int) int {
	if chunkSize <= 0 {
		return DefaultChunkSize
	}
	return chunkSize
}

// NextChunk returns up to ChunkSize items starting at the generator's
// current cursor, for handing to a client as the next playable window.
func (e *Engine) NextChunk(ctx context.Context, g *models.PlaylistGenerator) ([]*models.PlaylistGeneratorItem, error) {
	return e.Store.ListItemsRange(ctx, g.PublicID, g.Cursor, effectiveChunkSize(g.ChunkSize))
}
