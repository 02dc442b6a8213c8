// Package schedule runs named background jobs: a daily trigger, one-shot
// manual triggers and fixed-interval tickers.
//
// Scheduling a name that is already scheduled replaces the previous job.
// Cancel prevents the next invocation, it never interrupts a job body that
// is already executing: the per-job context governs only the wait between
// invocations, the body runs with the context the job was scheduled with.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler owns a set of named jobs.
type Scheduler struct {
	Log *slog.Logger

	mu   sync.Mutex
	jobs map[string]*job
}

type job struct {
	cancel context.CancelFunc
}

// New returns a ready to use Scheduler.
func New(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		Log:  log,
		jobs: make(map[string]*job),
	}
}

// Daily schedules task to run every day at the hour (UTC) reported by hour.
// The hour is re-read before each wait, so configuration changes take effect
// without rescheduling.
func (s *Scheduler) Daily(ctx context.Context, name string, hour func() int, task func(context.Context)) {
	jctx, remove := s.register(ctx, name)
	go func() {
		defer remove()
		for {
			d := untilNextHour(time.Now().UTC(), hour())
			select {
			case <-jctx.Done():
				return
			case <-time.After(d):
				s.Log.Info("running daily job", "name", name)
				task(ctx)
			}
		}
	}()
}

// Once schedules task to run a single time, immediately. The job stays
// registered until its body returns.
func (s *Scheduler) Once(ctx context.Context, name string, task func(context.Context)) {
	jctx, remove := s.register(ctx, name)
	go func() {
		defer remove()
		if jctx.Err() != nil {
			return
		}
		task(ctx)
	}()
}

// Repeating schedules task to run every interval until cancelled.
func (s *Scheduler) Repeating(ctx context.Context, name string, interval time.Duration, task func(context.Context)) {
	jctx, remove := s.register(ctx, name)
	go func() {
		defer remove()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-jctx.Done():
				return
			case <-t.C:
				task(ctx)
			}
		}
	}()
}

// Cancel removes a named job, preventing its next invocation.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[name]; ok {
		j.cancel()
		delete(s.jobs, name)
	}
}

// Scheduled reports whether a job with the given name is registered.
func (s *Scheduler) Scheduled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[name]
	return ok
}

// register creates the job slot, replacing a previous holder of the name.
// The returned context gates only the job's wait loop. The returned cleanup
// unregisters the job unless the name has been taken over by a replacement
// in the meantime.
func (s *Scheduler) register(ctx context.Context, name string) (context.Context, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[name]; ok {
		j.cancel()
	}
	jctx, cancel := context.WithCancel(ctx)
	j := &job{cancel: cancel}
	s.jobs[name] = j
	return jctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.jobs[name] == j {
			j.cancel()
			delete(s.jobs, name)
		}
	}
}

// untilNextHour returns the duration from now until the next occurrence of
// the given wall-clock hour.
func untilNextHour(now time.Time, hour int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
