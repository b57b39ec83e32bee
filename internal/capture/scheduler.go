package capture

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source used for every delay in a session.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, clock Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return ctx.Err()
	}
}

// Task runs once per tick and returns the delay before the next one.
type Task func(ctx context.Context) time.Duration

// Scheduler runs a Task repeatedly on its own goroutine until stopped.
// Only one tick runs at a time per Start; Stop never blocks.
type Scheduler struct {
	task  Task
	clock Clock

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	loops  sync.WaitGroup
}

func NewScheduler(task Task, clock Clock) *Scheduler {
	if clock == nil {
		clock = realClock{}
	}
	return &Scheduler{task: task, clock: clock}
}

// Start schedules the first tick after initial. It is a no-op if already running.
func (s *Scheduler) Start(parent context.Context, initial time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.loops.Add(1)
	go s.loop(ctx, cancel, initial, done)
	return true
}

func (s *Scheduler) loop(ctx context.Context, cancel context.CancelFunc, delay time.Duration, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		if s.done == done {
			s.cancel = nil
		}
		s.mu.Unlock()
		cancel()
		close(done)
		s.loops.Done()
	}()

	for {
		if err := sleep(ctx, s.clock, delay); err != nil {
			return
		}
		delay = s.task(ctx)
		if ctx.Err() != nil {
			return
		}
	}
}

// Stop cancels the pending tick. A tick already running sees its context cancelled
// and no further tick is scheduled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Wait blocks until every loop started so far has exited, including loops
// that were stopped while a tick was still running.
func (s *Scheduler) Wait() {
	s.loops.Wait()
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}
