// Package cycle composes acquisition and publish into one guarded,
// retried pass and triggers it on a daily schedule.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-bsr-leaderboard/models"
	"github.com/aluiziolira/go-bsr-leaderboard/pipeline"
	"github.com/aluiziolira/go-bsr-leaderboard/retry"
)

var (
	// ErrCycleInProgress is returned when a cycle is requested while another runs.
	ErrCycleInProgress = errors.New("cycle already in progress")
	// ErrBatchFailed wraps the last error of a step whose retries were exhausted.
	ErrBatchFailed = errors.New("batch failed after all retry attempts")
)

// Steps is the pair of entry operations a cycle composes.
type Steps interface {
	RunAcquisition(ctx context.Context) (*models.AcquisitionResult, error)
	RunPublish(ctx context.Context) (*models.RankedOutput, error)
}

// Report describes a completed cycle.
type Report struct {
	Acquisition *models.AcquisitionResult
	Output      *models.RankedOutput
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Runner executes cycles one at a time.
type Runner struct {
	steps  Steps
	policy retry.Policy
	logger *slog.Logger

	running atomic.Bool

	mu   sync.Mutex
	last *Report
}

// NewRunner builds a runner whose scrape and publish steps each retry under policy.
func NewRunner(steps Steps, policy retry.Policy, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	policy.Retryable = batchRetryable
	return &Runner{steps: steps, policy: policy, logger: logger}
}

func batchRetryable(err error) bool {
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, pipeline.ErrNoRecords)
}

// Run performs the scrape step then the publish step. It returns
// ErrCycleInProgress without waiting if another cycle holds the runner.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer r.running.Store(false)

	report := &Report{StartedAt: time.Now().UTC()}
	r.logger.Info("cycle started")

	err := r.policy.Do(ctx, func(ctx context.Context, _ int) error {
		res, err := r.steps.RunAcquisition(ctx)
		if err != nil {
			return err
		}
		report.Acquisition = res
		return nil
	}, r.notify("scrape"))
	if err != nil {
		return nil, r.fail(ctx, "scrape", err)
	}

	err = r.policy.Do(ctx, func(ctx context.Context, _ int) error {
		out, err := r.steps.RunPublish(ctx)
		if err != nil {
			return err
		}
		report.Output = out
		return nil
	}, r.notify("publish"))
	if err != nil {
		return nil, r.fail(ctx, "publish", err)
	}

	report.FinishedAt = time.Now().UTC()
	r.mu.Lock()
	r.last = report
	r.mu.Unlock()

	r.logger.Info("cycle completed",
		slog.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
		slog.Int("records", report.Output.TotalCount),
	)
	return report, nil
}

// Running reports whether a cycle is in flight.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// LastReport returns the most recent successful cycle, or nil.
func (r *Runner) LastReport() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Runner) notify(step string) retry.Notify {
	return func(err error, attempt int, delay time.Duration) {
		r.logger.Warn("cycle step failed, retrying",
			slog.String("step", step),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
	}
}

func (r *Runner) fail(ctx context.Context, step string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		r.logger.Warn("cycle canceled", slog.String("step", step))
		return ctxErr
	}
	r.logger.Error("cycle failed", slog.String("step", step), slog.Any("error", err))
	if !batchRetryable(err) {
		return fmt.Errorf("%s step: %w", step, err)
	}
	return fmt.Errorf("%w: %s step: %w", ErrBatchFailed, step, err)
}
