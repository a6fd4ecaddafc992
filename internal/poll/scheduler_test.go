package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduler_RunsImmediatelyThenOnInterval(t *testing.T) {
	var calls atomic.Int32
	first := make(chan struct{}, 1)
	s := New("test", 10*time.Millisecond, func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			first <- struct{}{}
		}
		return nil
	})

	s.Start(context.Background())
	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatal("task did not run immediately")
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	if calls.Load() < 3 {
		t.Fatalf("task ran %d times, want at least 3", calls.Load())
	}
}

func TestScheduler_StopIsDeterministic(t *testing.T) {
	var running atomic.Bool
	started := make(chan struct{})
	s := New("slow", time.Hour, func(ctx context.Context) error {
		running.Store(true)
		close(started)
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		running.Store(false)
		return ctx.Err()
	})

	s.Start(context.Background())
	<-started
	s.Stop()

	if running.Load() {
		t.Fatal("Stop returned while the task was still running")
	}
	if s.Running() {
		t.Error("Running() = true after Stop")
	}
	s.Stop() // second stop is a no-op
	s.Start(context.Background())
	if s.Runs() != 1 {
		t.Errorf("Runs() = %d after restart attempt, want 1", s.Runs())
	}
}

func TestScheduler_ErrorsDoNotStopSchedule(t *testing.T) {
	var calls atomic.Int32
	s := New("failing", 5*time.Millisecond, func(ctx context.Context) error {
		calls.Add(1)
		return errors.New("backend down")
	})
	s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	if calls.Load() < 3 {
		t.Fatalf("task ran %d times after errors, want at least 3", calls.Load())
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	s := New("idle", time.Second, func(context.Context) error { return nil })
	s.Stop()
	if s.Running() {
		t.Error("never-started scheduler reports running")
	}
}

func TestScheduler_ParentContextCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New("parent", time.Millisecond, func(context.Context) error { return nil })
	s.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked after the parent context was cancelled")
	}
}
