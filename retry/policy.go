// Package retry runs operations under a bounded exponential backoff policy.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds how often and how quickly an operation is re-attempted.
// Delay before attempt n+1 is min(BaseDelay * 2^(n-1), MaxDelay).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable reports whether a failure may be retried. Nil retries everything.
	Retryable func(error) bool
}

// Notify observes a failed attempt before the policy sleeps for delay.
type Notify func(err error, attempt int, delay time.Duration)

// Delay returns the wait that follows the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do invokes op until it succeeds, returns a non-retryable error, the
// attempt budget is spent, or ctx ends. The last error is returned on
// exhaustion; ctx.Err() is returned on cancellation.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error, notify Notify) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := 0
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return backoff.Permanent(ctxErr)
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, d time.Duration) {
			notify(err, attempt, d)
		}
	}

	err := backoff.RetryNotify(operation, p.backOff(ctx, attempts), onRetry)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}

func (p Policy) backOff(ctx context.Context, attempts int) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = p.MaxDelay
	if exp.MaxInterval <= 0 {
		exp.MaxInterval = p.BaseDelay
	}
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
}
