package cycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrSchedulerRunning is returned by Start when the scheduler is already active.
var ErrSchedulerRunning = errors.New("scheduler already running")

// Status describes the scheduler handle.
type Status struct {
	Running bool      `json:"isRunning"`
	NextRun time.Time `json:"nextRun,omitzero"`
}

// Scheduler fires the runner once a day at a fixed UTC hour. It holds at
// most one active handle; Stop releases it.
type Scheduler struct {
	runner *Runner
	hour   int
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	nextRun time.Time
}

// NewScheduler builds a scheduler for hourUTC (0-23).
func NewScheduler(runner *Runner, hourUTC int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		runner: runner,
		hour:   hourUTC,
		logger: logger,
		now:    time.Now,
	}
}

// NextRunAfter returns the first occurrence of hour:00 UTC strictly after t.
func NextRunAfter(t time.Time, hour int) time.Time {
	t = t.UTC()
	next := time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start launches the daily loop. It stops when ctx ends or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrSchedulerRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.nextRun = NextRunAfter(s.now(), s.hour)

	s.logger.Info("scheduler started",
		slog.Int("hour_utc", s.hour),
		slog.Time("next_run", s.nextRun),
	)
	go s.loop(loopCtx, s.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight cycle to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.nextRun = time.Time{}
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("scheduler stopped")
}

// Status reports whether the loop is active and when it fires next.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return Status{}
	}
	return Status{Running: true, NextRun: s.nextRun}
}

// RunNow runs a cycle immediately, outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) (*Report, error) {
	return s.runner.Run(ctx)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.release(done)
	for {
		s.mu.Lock()
		next := s.nextRun
		s.mu.Unlock()

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.logger.Info("scheduled cycle triggered")
		if _, err := s.runner.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("scheduled cycle failed", slog.Any("error", err))
		}

		s.mu.Lock()
		if s.done == done {
			s.nextRun = NextRunAfter(s.now(), s.hour)
		}
		s.mu.Unlock()
	}
}

// release clears the handle when the loop exits on its own, e.g. because the
// parent context ended. A handle already taken by Stop is left alone.
func (s *Scheduler) release(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != done {
		return
	}
	s.cancel()
	s.cancel, s.done = nil, nil
	s.nextRun = time.Time{}
	s.logger.Info("scheduler stopped", slog.String("reason", "context done"))
}
