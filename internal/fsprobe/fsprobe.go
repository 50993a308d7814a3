// Package fsprobe enumerates a library root's filesystem entries and
// applies pluggable ignore predicates, the way the teacher's
// scanner.go walks a scan path with a symlink-cycle guard and a worker
// pool — generalized here into a standalone, resolver-agnostic stage that
// the rest of the scan pipeline (internal/scanpipe) consumes.
package fsprobe

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cinevault/core/internal/models"
)

// Entry is one filesystem node observed during enumeration. I/O errors
// during stat don't abort enumeration — they yield an Entry with
// Exists=false so downstream stages can log and skip rather than the whole
// walk failing (spec.md §4.A).
type Entry struct {
	Path  string
	Name  string
	Ext   string
	IsDir bool

	Exists bool
	Size   int64
	ModTime time.Time
}

// IgnoreRule is a polymorphic ignore predicate; multiple rules compose with
// logical OR (spec.md §4.A). A directory match prevents descent entirely.
type IgnoreRule interface {
	Ignore(e Entry, kind models.LibraryKind) bool
}

// IgnoreRuleFunc adapts a plain function to IgnoreRule.
type IgnoreRuleFunc func(e Entry, kind models.LibraryKind) bool

func (f IgnoreRuleFunc) Ignore(e Entry, kind models.LibraryKind) bool { return f(e, kind) }

// HiddenFileRule ignores dotfiles and dot-directories.
var HiddenFileRule IgnoreRule = IgnoreRuleFunc(func(e Entry, _ models.LibraryKind) bool {
	return strings.HasPrefix(e.Name, ".")
})

// SampleFileRule matches the teacher's IsExtraFile "sample" classification:
// a small file (<150MB) whose name contains "sample". The parent
// directory's name is not checked.
var SampleFileRule IgnoreRule = IgnoreRuleFunc(func(e Entry, _ models.LibraryKind) bool {
	if e.IsDir {
		return false
	}
	const sampleSizeCeiling = 150 << 20
	lower := strings.ToLower(e.Name)
	return strings.Contains(lower, "sample") && e.Size < sampleSizeCeiling
})

// NamedIgnoreDirRule ignores well-known non-content directories (Plex/Jellyfin
// conventions) so they're never descended into.
func NamedIgnoreDirRule(names ...string) IgnoreRule {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = true
	}
	return IgnoreRuleFunc(func(e Entry, _ models.LibraryKind) bool {
		return e.IsDir && set[strings.ToLower(e.Name)]
	})
}

var DefaultIgnoreDirs = NamedIgnoreDirRule("@eaDir", "#recycle", ".grab", "lost+found", ".trash")

// ExtensionRule only allows entries whose extension is in the given set for
// files; directories always pass through (the walk decides whether to
// descend separately).
func ExtensionRule(allowed map[string]bool) IgnoreRule {
	return IgnoreRuleFunc(func(e Entry, _ models.LibraryKind) bool {
		if e.IsDir {
			return false
		}
		return !allowed[e.Ext]
	})
}

// Prober enumerates filesystem trees sequentially, with symlink cycle
// protection, a mount-reachability timeout, and an extensible ignore rule set.
type Prober struct {
	rules      []IgnoreRule
	mountStatTimeout time.Duration
}

func NewProber(rules ...IgnoreRule) *Prober {
	return &Prober{rules: rules, mountStatTimeout: 10 * time.Second}
}

func (p *Prober) shouldIgnore(e Entry, kind models.LibraryKind) bool {
	for _, r := range p.rules {
		if r.Ignore(e, kind) {
			return true
		}
	}
	return false
}

// Enumerate streams every entry under root on the returned channel, closing
// it when the walk completes or ctx is cancelled. Matches spec.md §4.A:
// `enumerate(root) -> stream of Entry`.
func (p *Prober) Enumerate(ctx context.Context, root string, kind models.LibraryKind) <-chan Entry {
	out := make(chan Entry, 64)

	go func() {
		defer close(out)

		if !p.mountReachable(ctx, root) {
			return
		}

		visitedDirs := make(map[string]bool)

		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if err != nil {
				out <- Entry{Path: path, Name: filepath.Base(path), Exists: false}
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			name := d.Name()
			ext := strings.ToLower(filepath.Ext(name))

			if d.IsDir() {
				real, rerr := filepath.EvalSymlinks(path)
				if rerr != nil {
					return nil
				}
				if visitedDirs[real] {
					return filepath.SkipDir
				}
				visitedDirs[real] = true

				entry := Entry{Path: path, Name: name, Ext: ext, IsDir: true, Exists: true}
				if p.shouldIgnore(entry, kind) {
					return filepath.SkipDir
				}
				select {
				case out <- entry:
				case <-ctx.Done():
					return ctx.Err()
				}
				return nil
			}

			info, ierr := d.Info()
			if ierr != nil {
				out <- Entry{Path: path, Name: name, Exists: false}
				return nil
			}

			entry := Entry{
				Path: path, Name: name, Ext: ext,
				Exists: true, Size: info.Size(), ModTime: info.ModTime(),
			}
			if p.shouldIgnore(entry, kind) {
				return nil
			}

			select {
			case out <- entry:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
	}()

	return out
}

// mountReachable stats root with a timeout so a hung NFS/SMB mount can't
// block an entire scan indefinitely (teacher's scanner.go mount-timeout
// guard, generalized to a context-based wait).
func (p *Prober) mountReachable(ctx context.Context, root string) bool {
	ctx, cancel := context.WithTimeout(ctx, p.mountStatTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := os.Stat(root)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return false
	case err := <-done:
		return err == nil
	}
}
