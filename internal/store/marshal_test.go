package store

import (
	"errors"
	"testing"

	"github.com/cinevault/core/internal/models"
)

func TestMarshalUnmarshalJSONRoundTrip(t *testing.T) {
	cursor := models.ResumeCursor{Stage: "directory_traversal", StageLocalCursor: "/movies/Foo", Version: 3}
	data, err := marshalJSON(cursor)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got models.ResumeCursor
	if err := unmarshalJSON(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != cursor {
		t.Fatalf("got %+v, want %+v", got, cursor)
	}
}

func TestUnmarshalJSONEmptyIsNoop(t *testing.T) {
	var got models.ResumeCursor
	if err := unmarshalJSON(nil, &got); err != nil {
		t.Fatalf("unmarshal empty: %v", err)
	}
	if got != (models.ResumeCursor{}) {
		t.Fatalf("expected zero value, got %+v", got)
	}
}

func TestErrNotFoundAndCheckpointConflictAreDistinctSentinels(t *testing.T) {
	if errors.Is(ErrNotFound, ErrCheckpointConflict) {
		t.Fatalf("ErrNotFound and ErrCheckpointConflict must not alias")
	}
}
