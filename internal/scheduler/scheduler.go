// Package scheduler implements the periodic job runner (C7): healthcheck
// enqueue, supervisor-notify keepalive, and reconnect polling. Adapted from
// pkg/snmpcollector/scheduler/scheduler.go's sorted-entry timer-loop
// mechanism, repurposed from per-device-group polling to these three job
// kinds. Missed firings coalesce: a late wakeup runs each due job exactly
// once and reschedules from now, rather than catching up on every missed
// interval.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Job is a unit of scheduled work. It must not block for long — healthcheck
// and supervisor-notify jobs only ever submit to the Dispatcher or the
// liveness sink; they never execute SNMP calls directly.
type Job func()

// entry tracks one job's fixed interval and next-fire time.
type entry struct {
	name     string
	interval time.Duration
	nextRun  time.Time
	job      Job
	active   func() bool // optional gate; nil means always active
}

// Scheduler runs entries on a single sorted-timer loop.
type Scheduler struct {
	logger *slog.Logger

	mu      sync.Mutex
	entries []entry

	done chan struct{}
}

// New constructs an empty Scheduler. Add jobs with AddHealthcheck/
// AddSupervisorNotify/AddReconnectPoll before calling Start.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Scheduler{logger: logger, done: make(chan struct{})}
}

// AddHealthcheck registers the healthcheck job: every interval, job is
// invoked once. The caller supplies a closure that submits a high-priority
// GET of each Device's first outlet.
func (s *Scheduler) AddHealthcheck(interval time.Duration, job Job) {
	s.add("healthcheck", interval, job, nil)
}

// AddSupervisorNotify registers the liveness-keepalive job, firing every
// sup_timeout/2 seconds.
func (s *Scheduler) AddSupervisorNotify(interval time.Duration, job Job) {
	s.add("supervisor-notify", interval, job, nil)
}

// AddReconnectPoll registers the reconnect-poll job, which only fires while
// active reports true (i.e. while the serial connection is DOWN).
func (s *Scheduler) AddReconnectPoll(interval time.Duration, job Job, active func() bool) {
	s.add("reconnect", interval, job, active)
}

func (s *Scheduler) add(name string, interval time.Duration, job Job, active func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry{
		name:     name,
		interval: interval,
		nextRun:  time.Now().Add(interval),
		job:      job,
		active:   active,
	})
}

// Start runs the scheduling loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.done)

	for {
		s.mu.Lock()
		if len(s.entries) == 0 {
			s.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
				continue
			}
		}

		sort.Slice(s.entries, func(i, j int) bool {
			return s.entries[i].nextRun.Before(s.entries[j].nextRun)
		})
		next := s.entries[0].nextRun
		s.mu.Unlock()

		delay := time.Until(next)
		if delay < 0 {
			delay = 0
		}
		timer := time.NewTimer(delay)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		now := time.Now()
		s.mu.Lock()
		for i := range s.entries {
			if s.entries[i].nextRun.After(now) {
				break
			}
			e := &s.entries[i]
			// Coalesce missed firings: always reschedule from now, never
			// queue up catch-up runs for a late wakeup.
			e.nextRun = now.Add(e.interval)
			if e.active == nil || e.active() {
				s.fire(e)
			}
		}
		s.mu.Unlock()
	}
}

// Stop waits for the scheduling loop to exit. The caller must cancel the
// context passed to Start before calling Stop.
func (s *Scheduler) Stop() {
	<-s.done
}

func (s *Scheduler) fire(e *entry) {
	s.logger.Debug("scheduler: firing job", "name", e.name)
	e.job()
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
