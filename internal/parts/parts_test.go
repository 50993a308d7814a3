package parts

import (
	"context"
	"testing"

	"github.com/cinevault/core/internal/fsprobe"
	"github.com/cinevault/core/internal/models"
)

type stubResolver struct {
	name     string
	priority int
	matches  bool
}

func (s stubResolver) Priority() int { return s.priority }
func (s stubResolver) Name() string  { return s.name }
func (s stubResolver) Resolve(ctx context.Context, args ResolveArgs) (Resolution, bool, error) {
	if !s.matches {
		return Resolution{}, false, nil
	}
	return Resolution{Kind: models.KindMovie, Outcome: OutcomeSuccess}, true, nil
}

func TestResolveItemPicksFirstMatchInPriorityOrder(t *testing.T) {
	r := NewRegistry()
	r.WithItemResolver(stubResolver{name: "low-priority-noop", priority: 5, matches: false})
	r.WithItemResolver(stubResolver{name: "extras", priority: 1, matches: false})
	r.WithItemResolver(stubResolver{name: "movie", priority: 10, matches: true})
	r.Freeze()

	got, err := r.ResolveItem(context.Background(), ResolveArgs{Entry: fsprobe.Entry{Name: "movie.mkv"}})
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != models.KindMovie {
		t.Fatalf("expected movie kind, got %v", got.Kind)
	}
}

func TestResolveItemReturnsSentinelWhenNoneMatch(t *testing.T) {
	r := NewRegistry()
	r.WithItemResolver(stubResolver{name: "never", priority: 1, matches: false})
	r.Freeze()

	_, err := r.ResolveItem(context.Background(), ResolveArgs{})
	if err != ErrNoResolverMatched {
		t.Fatalf("expected ErrNoResolverMatched, got %v", err)
	}
}

func TestFrozenRegistryPanicsOnMutation(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when registering after Freeze")
		}
	}()
	r := NewRegistry().Freeze()
	r.WithIgnoreRule(fsprobe.HiddenFileRule)
}

func TestMetadataAgentsSortedByPriority(t *testing.T) {
	r := NewRegistry()
	r.WithMetadataAgent(fakeAgent{category: AgentCategoryRemote, priority: PriorityRemote})
	r.WithMetadataAgent(fakeAgent{category: AgentCategorySidecar, priority: PrioritySidecar})
	r.WithMetadataAgent(fakeAgent{category: AgentCategoryEmbedded, priority: PriorityEmbedded})
	r.Freeze()

	agents := r.MetadataAgents()
	if len(agents) != 3 {
		t.Fatalf("expected 3 agents, got %d", len(agents))
	}
	if agents[0].Category() != AgentCategorySidecar || agents[2].Category() != AgentCategoryRemote {
		t.Fatalf("expected sidecar first and remote last, got order %v %v %v",
			agents[0].Category(), agents[1].Category(), agents[2].Category())
	}
}

type fakeAgent struct {
	category MetadataAgentCategory
	priority int
}

func (f fakeAgent) Category() MetadataAgentCategory { return f.category }
func (f fakeAgent) Priority() int                   { return f.priority }
func (f fakeAgent) Name() string                    { return string(f.category) }
func (f fakeAgent) Fetch(ctx context.Context, item models.MetadataItem) (models.MetadataItem, error) {
	return item, nil
}
