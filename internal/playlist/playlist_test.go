package playlist

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
)

func sampleIDs(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids
}

func TestOrderIdentityWhenNotShuffled(t *testing.T) {
	ids := sampleIDs(5)
	out := Order(ids, false, "", nil)
	if !reflect.DeepEqual(ids, out) {
		t.Fatalf("expected identity order, got %v", out)
	}
}

func TestOrderDeterministicForSameState(t *testing.T) {
	ids := sampleIDs(20)
	a := Order(ids, true, "fixed-state", nil)
	b := Order(ids, true, "fixed-state", nil)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("expected same shuffle state to reproduce identical order")
	}
}

func TestOrderDiffersForDifferentState(t *testing.T) {
	ids := sampleIDs(20)
	a := Order(ids, true, "state-a", nil)
	b := Order(ids, true, "state-b", nil)
	if reflect.DeepEqual(a, b) {
		t.Fatalf("expected different shuffle states to diverge")
	}
}

func TestOrderIsPermutation(t *testing.T) {
	ids := sampleIDs(10)
	out := Order(ids, true, "perm-check", nil)
	seen := make(map[uuid.UUID]bool)
	for _, id := range out {
		seen[id] = true
	}
	if len(seen) != len(ids) {
		t.Fatalf("shuffled output is not a permutation: got %d unique of %d", len(seen), len(ids))
	}
}

func TestOrderKeepsCohortsTogether(t *testing.T) {
	ids := sampleIDs(9)
	// ids[0:3] form an album, ids[3:6] form a second album, ids[6:9] are
	// singletons with no cohort.
	cohortOf := map[uuid.UUID]string{
		ids[0]: "album-a", ids[1]: "album-a", ids[2]: "album-a",
		ids[3]: "album-b", ids[4]: "album-b", ids[5]: "album-b",
	}

	out := Order(ids, true, "album-shuffle", cohortOf)

	seen := make(map[uuid.UUID]bool)
	for _, id := range out {
		seen[id] = true
	}
	if len(seen) != len(ids) {
		t.Fatalf("shuffled output is not a permutation: got %d unique of %d", len(seen), len(ids))
	}

	positions := make(map[uuid.UUID]int, len(out))
	for i, id := range out {
		positions[id] = i
	}
	for _, album := range [][]uuid.UUID{ids[0:3], ids[3:6]} {
		first := positions[album[0]]
		for i, id := range album {
			if positions[id] != first+i {
				t.Fatalf("expected %v to stay contiguous and in order, got positions %v", album, positions)
			}
		}
	}
}

func TestNextCursorRepeatWraps(t *testing.T) {
	next, ended := NextCursor(9, 10, true)
	if ended || next != 0 {
		t.Fatalf("NextCursor(9,10,repeat) = (%d,%v), want (0,false)", next, ended)
	}
}

func TestNextCursorNoRepeatEnds(t *testing.T) {
	next, ended := NextCursor(9, 10, false)
	if !ended || next != 10 {
		t.Fatalf("NextCursor(9,10,!repeat) = (%d,%v), want (10,true)", next, ended)
	}
}

func TestNextCursorMidway(t *testing.T) {
	next, ended := NextCursor(3, 10, false)
	if ended || next != 4 {
		t.Fatalf("NextCursor(3,10,!repeat) = (%d,%v), want (4,false)", next, ended)
	}
}

func TestEffectiveChunkSizeDefaultsTo20(t *testing.T) {
	if got := effectiveChunkSize(0); got != DefaultChunkSize {
		t.Fatalf("effectiveChunkSize(0) = %d, want %d", got, DefaultChunkSize)
	}
	if got := effectiveChunkSize(50); got != 50 {
		t.Fatalf("effectiveChunkSize(50) = %d, want 50", got)
	}
}

func TestMaterializeAssignsSortOrder(t *testing.T) {
	genID := uuid.New()
	ids := sampleIDs(3)
	items := Materialize(genID, ids, nil, "cohort-1")
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}
	for i, item := range items {
		if item.SortOrder != i || item.MetadataItemID != ids[i] || item.Cohort != "cohort-1" {
			t.Fatalf("item %d mismatched: %+v", i, item)
		}
	}
}
