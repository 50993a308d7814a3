// Package scheduler drives the composition root's periodic maintenance
// sweeps: the composition root registers a transcode-job reap and a
// playback-session expiry sweep (spec.md §4.I heartbeat reaping, §4.M
// expiry); no periodic library rescan is registered. It is built on
// github.com/robfig/cron/v3 directly — the same cron-spec vocabulary
// asynq's own periodic task manager uses internally — rather than a
// hand-rolled time.Ticker loop, so entries can be added at runtime to one
// cron.Cron.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cinevault/core/internal/logging"
)

// Scheduler wraps a robfig/cron instance; every registered job is
// best-effort — a failure is logged and never stops future runs or other
// jobs, matching spec.md §7's "a single ... crash never aborts the
// pipeline for other items" philosophy applied to maintenance sweeps.
type Scheduler struct {
	cron *cron.Cron
}

func New() *Scheduler {
	return &Scheduler{cron: cron.New()}
}

// ScheduleSpec registers fn against a standard 5-field cron spec.
func (s *Scheduler) ScheduleSpec(spec, name string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := fn(context.Background()); err != nil {
			logging.Logger().Warn().Err(err).Str("job", name).Msg("scheduled job failed")
		}
	})
	return err
}

// ScheduleEvery is a convenience wrapper for interval-based sweeps,
// expressed through robfig/cron's own "@every" duration syntax rather than
// a separate ticker mechanism.
func (s *Scheduler) ScheduleEvery(interval time.Duration, name string, fn func(ctx context.Context) error) error {
	return s.ScheduleSpec("@every "+interval.String(), name, fn)
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop blocks until any in-flight job finishes.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }
