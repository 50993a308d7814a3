// Package scanpipe composes the five scan stages (spec.md §4.E) into a
// single-producer/single-consumer chain per library section, using
// Watermill's in-process gochannel pub/sub as the bounded-channel handoff
// between stages (the teacher's jobs/queue.go gives the project its
// message-passing taste; cartographus's eventprocessor is what actually
// grounds wiring Watermill itself, since CineVault never uses a message
// bus between its own scanner stages).
package scanpipe

import (
	"time"

	"github.com/cinevault/core/internal/fsprobe"
	"github.com/cinevault/core/internal/parts"
)

// ScanWorkItem is the immutable value flowing through the pipeline; each
// stage produces a new instance with its own fields filled in rather than
// mutating in place (spec.md §9 design note on with-expression style
// updates).
type ScanWorkItem struct {
	Location string
	Entry    fsprobe.Entry

	Children  []fsprobe.Entry
	Siblings  []fsprobe.Entry
	Ancestors []fsprobe.Entry
	IsRoot    bool

	IsUnchanged bool

	Resolution *parts.Resolution

	SidecarResults []parts.SidecarResult
	Embedded       *parts.EmbeddedResult

	Dropped       bool
	DroppedReason string
}

// WithUnchanged returns a copy with IsUnchanged set, leaving the receiver
// untouched.
func (w ScanWorkItem) WithUnchanged(v bool) ScanWorkItem {
	w.IsUnchanged = v
	return w
}

// WithResolution returns a copy carrying the resolver's verdict.
func (w ScanWorkItem) WithResolution(r *parts.Resolution) ScanWorkItem {
	w.Resolution = r
	return w
}

// WithDropped returns a copy marked dropped (non-fatal: the entry was
// unreadable or no resolver matched).
func (w ScanWorkItem) WithDropped(reason string) ScanWorkItem {
	w.Dropped = true
	w.DroppedReason = reason
	return w
}

// StatSnapshot is the minimal file-change signature ChangeDetection
// compares against what's already persisted.
type StatSnapshot struct {
	Size    int64
	ModTime time.Time
}

// changeDetectionEpsilon absorbs FAT/HFS+ coarse mtime resolution per
// spec.md §4.E stage 2.
const changeDetectionEpsilon = 2 * time.Second

func sameStat(existing, observed StatSnapshot) bool {
	if existing.Size != observed.Size {
		return false
	}
	delta := existing.ModTime.Sub(observed.ModTime)
	if delta < 0 {
		delta = -delta
	}
	return delta < changeDetectionEpsilon
}
