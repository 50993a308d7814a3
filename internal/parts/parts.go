// Package parts is the scan pipeline's extension point registry. Seven
// ordered collections are registered once at startup and frozen before the
// first scan runs, the way the teacher wires its scanner with fixed
// extension maps and a fixed worker count rather than a runtime plugin
// system — generalized here into typed, explicitly-ordered slices instead
// of package-level maps, since this spec needs several independent
// extension points rather than one.
package parts

import (
	"context"
	"fmt"
	"sync"

	"github.com/cinevault/core/internal/fsprobe"
	"github.com/cinevault/core/internal/models"
)

// ItemResolver turns a filesystem entry (plus its surrounding context) into
// a typed metadata skeleton. Resolvers run in ascending Priority order;
// the first one that returns ok=true wins (spec.md §4.C).
type ItemResolver interface {
	Priority() int
	Name() string
	Resolve(ctx context.Context, args ResolveArgs) (Resolution, bool, error)
}

// ResolveArgs is the read-only context handed to every resolver.
type ResolveArgs struct {
	Entry             fsprobe.Entry
	LibraryKind       models.LibraryKind
	SectionLocationID string
	LibrarySectionID  string
	Children          []fsprobe.Entry
	Siblings          []fsprobe.Entry
	IsRoot            bool
	Ancestors         []fsprobe.Entry
	ResolvedParent    *Resolution
}

// Resolution is a resolver's verdict: a typed metadata skeleton plus
// whichever physical parts it claims ownership of.
type Resolution struct {
	Kind        models.ItemKind
	Item        models.MetadataItem
	ClaimedPaths []string
	Relations    []models.Relation
	Outcome      ResolveOutcome
}

// ResolveOutcome differentiates a successful resolution from the
// extras-specific failure modes spec.md §4.C calls out by name.
type ResolveOutcome string

const (
	OutcomeSuccess             ResolveOutcome = "success"
	OutcomeMissingFolder       ResolveOutcome = "missing_folder"
	OutcomeNoEligibleFiles     ResolveOutcome = "no_eligible_files"
	OutcomeAmbiguousCandidates ResolveOutcome = "ambiguous_candidates"
)

// MetadataAgentCategory groups agents so the merge layer can apply the
// overlay order resolved -> embedded -> sidecar -> remote (spec.md §4.F).
type MetadataAgentCategory string

const (
	AgentCategorySidecar  MetadataAgentCategory = "sidecar"
	AgentCategoryEmbedded MetadataAgentCategory = "embedded"
	AgentCategoryLocal    MetadataAgentCategory = "local"
	AgentCategoryRemote   MetadataAgentCategory = "remote"
	AgentCategoryFallback MetadataAgentCategory = "fallback"
)

// Standard priorities for the built-in categories; registries may add more
// agents at any priority within a category's band.
const (
	PrioritySidecar  = 10
	PriorityEmbedded = 20
	PriorityLocal    = 30
	PriorityRemote   = 50
	PriorityFallback = 90
)

// MetadataAgent enriches a resolved item with external or local metadata.
type MetadataAgent interface {
	Category() MetadataAgentCategory
	Priority() int
	Name() string
	Fetch(ctx context.Context, item models.MetadataItem) (models.MetadataItem, error)
}

// SidecarParser recognizes and parses a sidecar metadata file (NFO, .nfo
// companion, json sidecar, etc).
type SidecarParser interface {
	Name() string
	CanParse(path string) bool
	Parse(ctx context.Context, req SidecarRequest) (SidecarResult, error)
}

// SidecarRequest bundles the arguments a SidecarParser needs, mirroring
// spec.md §4.D's `parse(request{mediaFile, sidecarFile, libraryKind,
// siblings?})`. Defined here (not in internal/sidecar) so the interface
// above has no dependency on the concrete parser package.
type SidecarRequest struct {
	MediaFile   string
	SidecarFile string
	LibraryKind models.LibraryKind
	Siblings    []string
}

// SidecarResult is a partial metadata overlay plus a free-form hint map for
// fields that don't have a first-class MetadataItem slot yet.
type SidecarResult struct {
	Source string
	Item   models.MetadataItem
	Hints  map[string]string
}

// EmbeddedExtractor pulls streams/chapters/tags directly out of a media
// container (ffprobe-backed in practice).
type EmbeddedExtractor interface {
	Name() string
	Extract(ctx context.Context, partPath string) (EmbeddedResult, error)
}

// EmbeddedResult is what an EmbeddedExtractor hands back for one physical
// part.
type EmbeddedResult struct {
	Streams []models.MediaStream
	Tags    map[string]string
}

// FileAnalyzer computes part-level facts that aren't tags (hash, duration,
// bitrate) — mirrors the teacher's ffprobe-driven MediaPart population.
type FileAnalyzer interface {
	Name() string
	Analyze(ctx context.Context, partPath string) (models.MediaPart, error)
}

// ImageProvider supplies a kind's candidate artwork (folder.jpg, poster.jpg,
// or a remote provider) for internal/artwork to ingest.
type ImageProvider interface {
	Name() string
	Kind() models.ItemKind
	Images(ctx context.Context, item models.MetadataItem) (map[string][]byte, error)
}

// Registry holds the seven ordered collections. It is built once via the
// With* methods and then Freeze()'d; every With* method panics once the
// registry is frozen so a scan can't silently observe a registry that
// changed under it mid-run.
type Registry struct {
	mu sync.Mutex

	ignoreRules   []fsprobe.IgnoreRule
	itemResolvers []ItemResolver
	metadataAgents []MetadataAgent
	sidecarParsers []SidecarParser
	embeddedExtractors []EmbeddedExtractor
	fileAnalyzers []FileAnalyzer
	imageProviders []ImageProvider

	frozen bool
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) mustNotBeFrozen() {
	if r.frozen {
		panic("parts: registry is frozen; register extensions before Freeze()")
	}
}

func (r *Registry) WithIgnoreRule(rule fsprobe.IgnoreRule) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustNotBeFrozen()
	r.ignoreRules = append(r.ignoreRules, rule)
	return r
}

func (r *Registry) WithItemResolver(res ItemResolver) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustNotBeFrozen()
	r.itemResolvers = append(r.itemResolvers, res)
	sortByPriority(r.itemResolvers)
	return r
}

func (r *Registry) WithMetadataAgent(a MetadataAgent) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustNotBeFrozen()
	r.metadataAgents = append(r.metadataAgents, a)
	sortAgentsByPriority(r.metadataAgents)
	return r
}

func (r *Registry) WithSidecarParser(p SidecarParser) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustNotBeFrozen()
	r.sidecarParsers = append(r.sidecarParsers, p)
	return r
}

func (r *Registry) WithEmbeddedExtractor(e EmbeddedExtractor) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustNotBeFrozen()
	r.embeddedExtractors = append(r.embeddedExtractors, e)
	return r
}

func (r *Registry) WithFileAnalyzer(a FileAnalyzer) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustNotBeFrozen()
	r.fileAnalyzers = append(r.fileAnalyzers, a)
	return r
}

func (r *Registry) WithImageProvider(p ImageProvider) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustNotBeFrozen()
	r.imageProviders = append(r.imageProviders, p)
	return r
}

// Freeze prevents further registration. Call once after all startup wiring
// has finished.
func (r *Registry) Freeze() *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
	return r
}

func (r *Registry) IgnoreRules() []fsprobe.IgnoreRule       { return r.ignoreRules }
func (r *Registry) ItemResolvers() []ItemResolver           { return r.itemResolvers }
func (r *Registry) MetadataAgents() []MetadataAgent         { return r.metadataAgents }
func (r *Registry) SidecarParsers() []SidecarParser         { return r.sidecarParsers }
func (r *Registry) EmbeddedExtractors() []EmbeddedExtractor { return r.embeddedExtractors }
func (r *Registry) FileAnalyzers() []FileAnalyzer           { return r.fileAnalyzers }
func (r *Registry) ImageProviders() []ImageProvider         { return r.imageProviders }

// MetadataAgentsFor returns the agents applicable to kind, already in
// overlay order (sidecar, embedded, local, remote, fallback).
func (r *Registry) MetadataAgentsFor(kind models.ItemKind) []MetadataAgent {
	_ = kind // every built-in agent is kind-agnostic today; reserved for future filtering
	return r.metadataAgents
}

func sortByPriority(resolvers []ItemResolver) {
	for i := 1; i < len(resolvers); i++ {
		j := i
		for j > 0 && resolvers[j-1].Priority() > resolvers[j].Priority() {
			resolvers[j-1], resolvers[j] = resolvers[j], resolvers[j-1]
			j--
		}
	}
}

func sortAgentsByPriority(agents []MetadataAgent) {
	for i := 1; i < len(agents); i++ {
		j := i
		for j > 0 && agents[j-1].Priority() > agents[j].Priority() {
			agents[j-1], agents[j] = agents[j], agents[j-1]
			j--
		}
	}
}

// ResolveItem runs every registered resolver in priority order, returning
// the first match. ErrNoResolverMatched is returned (not a fatal error) if
// none claim the entry — the caller treats that as "not an item root".
var ErrNoResolverMatched = fmt.Errorf("parts: no resolver matched entry")

func (r *Registry) ResolveItem(ctx context.Context, args ResolveArgs) (Resolution, error) {
	for _, res := range r.itemResolvers {
		resolution, ok, err := res.Resolve(ctx, args)
		if err != nil {
			return Resolution{}, fmt.Errorf("resolver %s: %w", res.Name(), err)
		}
		if ok {
			return resolution, nil
		}
	}
	return Resolution{}, ErrNoResolverMatched
}
