package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestScheduleEveryFiresRepeatedly(t *testing.T) {
	is := is.New(t)

	s := New()
	fired := make(chan struct{}, 4)
	err := s.ScheduleEvery(20*time.Millisecond, "test-tick", func(ctx context.Context) error {
		fired <- struct{}{}
		return nil
	})
	is.NoErr(err)

	s.Start()
	defer s.Stop()

	for i := 0; i < 2; i++ {
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatal("expected scheduled job to fire")
		}
	}
}

func TestScheduleSpecRejectsInvalidExpression(t *testing.T) {
	is := is.New(t)

	s := New()
	err := s.ScheduleSpec("not a cron spec", "bad-job", func(ctx context.Context) error { return nil })
	is.True(err != nil)
}

func TestScheduledJobFailureDoesNotPanic(t *testing.T) {
	is := is.New(t)

	s := New()
	done := make(chan struct{})
	var once sync.Once
	err := s.ScheduleEvery(20*time.Millisecond, "failing-job", func(ctx context.Context) error {
		once.Do(func() { close(done) })
		return errors.New("boom")
	})
	is.NoErr(err)

	s.Start()
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected failing job to still run")
	}
}
