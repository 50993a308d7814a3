// Package scanerr classifies scan-pipeline and playback errors into the
// severity taxonomy the core engines agree on: a benign-skip is logged and
// moved past, a recoverable I/O error is retried with backoff, a scan-fatal
// error aborts the run, and playback-refusal / transcode-failure surface to
// the session layer as typed results rather than propagated errors.
//
// The classifier helpers follow the style of the teacher's
// isTaskConflict(err) check in jobs/queue.go: wrap with a sentinel via
// fmt.Errorf("%w", ...), then classify with errors.Is at the call site that
// needs to branch.
package scanerr

import (
	"errors"
	"fmt"
)

// Sentinel errors identifying each severity class. Wrap a cause with
// fmt.Errorf("%w: %v", scanerr.ErrBenign, cause) (or the constructors below)
// so errors.Is still matches through the chain.
var (
	ErrBenign        = errors.New("benign: skip and continue")
	ErrRecoverableIO = errors.New("recoverable I/O: retry with backoff")
	ErrScanFatal     = errors.New("scan-fatal: abort this scan")
	ErrPlaybackRefusal = errors.New("playback refused")
	ErrTranscodeFailure = errors.New("transcode failed")
)

// Benign wraps a cause as a benign, skip-and-continue condition (e.g. an
// unreadable sidecar file, an ignored extension).
func Benign(cause error) error {
	return fmt.Errorf("%w: %v", ErrBenign, cause)
}

// RecoverableIO wraps a cause as transient I/O (e.g. ENOENT/EBUSY racing a
// concurrent write, NFS mount hiccup) that the caller should retry.
func RecoverableIO(cause error) error {
	return fmt.Errorf("%w: %v", ErrRecoverableIO, cause)
}

// Fatal wraps a cause that must abort the current scan run (e.g. the
// library root itself became unreadable, the checkpoint store rejected a
// write).
func Fatal(cause error) error {
	return fmt.Errorf("%w: %v", ErrScanFatal, cause)
}

// PlaybackRefusal wraps a cause that should be surfaced to the client as a
// structured refusal rather than a 5xx (e.g. no eligible stream plan under
// the declared capability profile).
func PlaybackRefusal(cause error) error {
	return fmt.Errorf("%w: %v", ErrPlaybackRefusal, cause)
}

// TranscodeFailure wraps a cause that should move a TranscodeJob to the
// Failed state (spec.md §4.I).
func TranscodeFailure(cause error) error {
	return fmt.Errorf("%w: %v", ErrTranscodeFailure, cause)
}

// IsBenign reports whether err (or anything it wraps) is a benign skip.
func IsBenign(err error) bool { return errors.Is(err, ErrBenign) }

// IsRecoverableIO reports whether err is a retry-worthy I/O condition.
func IsRecoverableIO(err error) bool { return errors.Is(err, ErrRecoverableIO) }

// IsFatal reports whether err should abort the current scan.
func IsFatal(err error) bool { return errors.Is(err, ErrScanFatal) }

// IsPlaybackRefusal reports whether err is a structured playback refusal.
func IsPlaybackRefusal(err error) bool { return errors.Is(err, ErrPlaybackRefusal) }

// IsTranscodeFailure reports whether err should fail a TranscodeJob.
func IsTranscodeFailure(err error) bool { return errors.Is(err, ErrTranscodeFailure) }
