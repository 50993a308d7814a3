package scanpipe

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/cinevault/core/internal/fsprobe"
	"github.com/cinevault/core/internal/models"
	"github.com/cinevault/core/internal/parts"
	"github.com/cinevault/core/internal/sidecar"
)

const (
	topicTraversed = "scan.traversed"
	topicChanged   = "scan.change-detected"
	topicResolved  = "scan.resolved"
	topicEnriched  = "scan.enriched"
)

// PersistFunc is the Merge&Persist handoff (spec.md §4.E stage 5, spelled
// out fully in §4.F) — kept as a callback so scanpipe doesn't import
// internal/merge and create a cycle; the composition root wires the real
// implementation in.
type PersistFunc func(ctx context.Context, item ScanWorkItem) error

// Pipeline composes the four concrete stages and the merge/persist
// handoff into a single chain per library section, per spec.md §4.E P1.
type Pipeline struct {
	Registry *parts.Registry
	Prober   *fsprobe.Prober
	Persist  PersistFunc

	bus *gochannel.GoChannel
}

// NewPipeline wires Watermill's in-process gochannel pub/sub as the
// bounded-channel handoff between stages (spec.md §9: "async/await +
// IAsyncEnumerable -> bounded channels").
func NewPipeline(registry *parts.Registry, prober *fsprobe.Prober, persist PersistFunc) *Pipeline {
	logger := watermill.NopLogger{}
	bus := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            256,
		Persistent:                     false,
		BlockPublishUntilSubscriberAck: false,
	}, logger)

	return &Pipeline{Registry: registry, Prober: prober, Persist: persist, bus: bus}
}

// Run drives one full pipeline chain for a library section rooted at root,
// resuming from scan.Cursor if it points at the traversal stage.
func (p *Pipeline) Run(sctx *ScanContext, root string, libraryKind models.LibraryKind, resume models.ResumeCursor) error {
	stage2, err := p.bus.Subscribe(sctx.Context, topicTraversed)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topicTraversed, err)
	}
	stage3, err := p.bus.Subscribe(sctx.Context, topicChanged)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topicChanged, err)
	}
	stage4, err := p.bus.Subscribe(sctx.Context, topicResolved)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topicResolved, err)
	}
	stage5, err := p.bus.Subscribe(sctx.Context, topicEnriched)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topicEnriched, err)
	}

	errs := make(chan error, 5)
	done := make(chan struct{})

	go p.runChangeDetection(sctx, stage2, errs)
	go p.runResolveItems(sctx, stage3, errs, libraryKind)
	go p.runLocalMetadata(sctx, stage4, errs)
	go p.runPersist(sctx, stage5, errs, done)

	if err := p.runDirectoryTraversal(sctx, root, libraryKind, resume); err != nil {
		return err
	}
	// no more producers into topicTraversed for this chain
	if err := p.bus.Close(); err != nil {
		return fmt.Errorf("close pipeline bus: %w", err)
	}

	select {
	case <-done:
	case err := <-errs:
		return err
	case <-sctx.Context.Done():
		return sctx.Context.Err()
	}

	if err := sctx.FlushSeenPaths(); err != nil {
		return err
	}
	return sctx.SaveCheckpoint(StageReconcile, "")
}

// runDirectoryTraversal is stage 1: enumerate, apply ignore rules, and
// honor the resume fast-forward (P3): skip lexicographically-earlier
// paths, re-emit the cursored path, then resume normal flow.
func (p *Pipeline) runDirectoryTraversal(sctx *ScanContext, root string, libraryKind models.LibraryKind, resume models.ResumeCursor) error {
	fastForwarding := resume.Stage == StageDirectoryTraversal && resume.StageLocalCursor != ""

	for entry := range p.Prober.Enumerate(sctx.Context, root, libraryKind) {
		if fastForwarding {
			if entry.Path < resume.StageLocalCursor {
				continue
			}
			fastForwarding = false // re-emit this entry (== or first past cursor), then clear
		}

		item := ScanWorkItem{Location: root, Entry: entry, IsRoot: entry.Path == root}
		if err := p.publish(sctx.Context, topicTraversed, item); err != nil {
			return err
		}

		if entry.Exists {
			if err := sctx.RecordSeenPaths(entry.Path); err != nil {
				return err
			}
		}
		if sctx.ShouldCheckpointTraversal() {
			if err := sctx.SaveCheckpoint(StageDirectoryTraversal, entry.Path); err != nil {
				return err
			}
		}
	}
	return nil
}

// runChangeDetection is stage 2: loads existing stats once per run and
// marks IsUnchanged using the size+mtime-epsilon rule.
func (p *Pipeline) runChangeDetection(sctx *ScanContext, in <-chan *message.Message, errs chan<- error) {
	existing, err := sctx.Store.ExistingStats(sctx.Context, sctx.LibrarySectionID)
	if err != nil {
		errs <- fmt.Errorf("load existing stats: %w", err)
		return
	}

	for msg := range in {
		item, err := decode(msg)
		if err != nil {
			errs <- err
			msg.Nack()
			continue
		}

		if item.Entry.Exists && !item.Entry.IsDir {
			if prior, ok := existing[item.Entry.Path]; ok {
				observed := StatSnapshot{Size: item.Entry.Size, ModTime: item.Entry.ModTime}
				item = item.WithUnchanged(sameStat(prior, observed))
			}
			// Missing stored stats are treated as "potentially changed"
			// (spec.md §9 open question — preserved, not silently fixed).
		}

		if err := p.publish(sctx.Context, topicChanged, item); err != nil {
			errs <- err
			msg.Nack()
			continue
		}
		msg.Ack()
	}
}

// runResolveItems is stage 3: runs the resolver set; non-matches are
// dropped (non-fatal).
func (p *Pipeline) runResolveItems(sctx *ScanContext, in <-chan *message.Message, errs chan<- error, libraryKind models.LibraryKind) {
	for msg := range in {
		item, err := decode(msg)
		if err != nil {
			errs <- err
			msg.Nack()
			continue
		}

		if !item.Entry.Exists {
			item = item.WithDropped("entry unreadable")
		} else {
			resolution, rerr := p.Registry.ResolveItem(sctx.Context, parts.ResolveArgs{
				Entry:             item.Entry,
				LibraryKind:       libraryKind,
				LibrarySectionID:  sctx.LibrarySectionID.String(),
				Children:          item.Children,
				Siblings:          item.Siblings,
				Ancestors:         item.Ancestors,
				IsRoot:            item.IsRoot,
			})
			switch {
			case rerr == parts.ErrNoResolverMatched:
				item = item.WithDropped("no resolver matched")
			case rerr != nil:
				errs <- rerr
				msg.Nack()
				continue
			default:
				// Resolvers never see (or need to know) the owning
				// section's id; the persist stage does, so stamp it here
				// rather than threading it through every ItemResolver.
				resolution.Item.LibraryID = sctx.LibrarySectionID
				item = item.WithResolution(&resolution)
			}
		}

		if err := p.publish(sctx.Context, topicResolved, item); err != nil {
			errs <- err
			msg.Nack()
			continue
		}
		msg.Ack()
	}
}

// runLocalMetadata is stage 4: sidecar parsers + embedded extractors,
// merged per internal/sidecar's last-writer-wins/union rule.
func (p *Pipeline) runLocalMetadata(sctx *ScanContext, in <-chan *message.Message, errs chan<- error) {
	for msg := range in {
		item, err := decode(msg)
		if err != nil {
			errs <- err
			msg.Nack()
			continue
		}

		if item.Dropped || item.Resolution == nil || item.IsUnchanged {
			if err := p.publish(sctx.Context, topicEnriched, item); err != nil {
				errs <- err
				msg.Nack()
				continue
			}
			msg.Ack()
			continue
		}

		var results []parts.SidecarResult
		for _, sib := range item.Siblings {
			for _, parser := range p.Registry.SidecarParsers() {
				if !parser.CanParse(sib.Path) {
					continue
				}
				res, perr := parser.Parse(sctx.Context, sidecar.Request{
					MediaFile:   item.Entry.Path,
					SidecarFile: sib.Path,
				})
				if perr != nil {
					continue // parse failure: this sidecar is skipped and the error is not logged
				}
				results = append(results, res)
			}
		}
		if len(results) > 0 {
			item.SidecarResults = []parts.SidecarResult{sidecar.MergeSidecarResults(results)}
		}

		for _, extractor := range p.Registry.EmbeddedExtractors() {
			embedded, eerr := extractor.Extract(sctx.Context, item.Entry.Path)
			if eerr != nil {
				continue
			}
			item.Embedded = &embedded
			break
		}

		if err := p.publish(sctx.Context, topicEnriched, item); err != nil {
			errs <- err
			msg.Nack()
			continue
		}
		msg.Ack()
	}
}

// runPersist is stage 5, the merge/persist handoff.
func (p *Pipeline) runPersist(sctx *ScanContext, in <-chan *message.Message, errs chan<- error, done chan<- struct{}) {
	defer close(done)
	for msg := range in {
		item, err := decode(msg)
		if err != nil {
			errs <- err
			msg.Nack()
			continue
		}
		if item.Dropped {
			msg.Ack()
			continue
		}
		if p.Persist != nil {
			if err := p.Persist(sctx.Context, item); err != nil {
				errs <- err
				msg.Nack()
				continue
			}
		}
		msg.Ack()
	}
}

func (p *Pipeline) publish(ctx context.Context, topic string, item ScanWorkItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode work item: %w", err)
	}
	return p.bus.Publish(topic, message.NewMessage(watermill.NewUUID(), payload))
}

func decode(msg *message.Message) (ScanWorkItem, error) {
	var item ScanWorkItem
	if err := json.Unmarshal(msg.Payload, &item); err != nil {
		return ScanWorkItem{}, fmt.Errorf("decode work item: %w", err)
	}
	return item, nil
}

