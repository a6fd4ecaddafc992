// Package poll runs a task now and then on a fixed interval until stopped.
package poll

import (
	"context"
	"sync"
	"time"

	"nelfy/internal/log"
)

// Task is one run of a scheduled job. Returned errors are logged and never
// stop the schedule.
type Task func(ctx context.Context) error

// Scheduler runs a single Task periodically. A scheduler can be started
// once; Stop cancels the loop and waits for it to exit.
type Scheduler struct {
	name     string
	interval time.Duration
	task     Task

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	stopped bool
	runs    int64
}

// New creates a scheduler running task every interval.
func New(name string, interval time.Duration, task Task) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{name: name, interval: interval, task: task}
}

// Start runs the task immediately and then on every tick. It returns at
// once; calling Start again or after Stop has no effect.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()

	if err := s.task(ctx); err != nil && ctx.Err() == nil {
		log.FromContext(ctx).WithComponent(log.ComponentPoll).DebugContext(ctx, "Scheduled task failed",
			log.FieldOperation, s.name,
			log.FieldError, err.Error())
	}
}

// Stop cancels the schedule and blocks until the running task, if any, has
// returned. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped
}

// Runs returns how many times the task has started.
func (s *Scheduler) Runs() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}
