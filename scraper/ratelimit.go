package scraper

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Limiter suspends the caller for a uniformly random delay in [Min, Max]
// between consecutive fetches. The first Wait after Reset returns at once.
type Limiter struct {
	Min time.Duration
	Max time.Duration

	metrics *Metrics
	draw    func(n int64) int64
	sleep   func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	primed bool
}

// NewLimiter builds a limiter over the given window.
func NewLimiter(minDelay, maxDelay time.Duration, metrics *Metrics) *Limiter {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Limiter{
		Min:     minDelay,
		Max:     maxDelay,
		metrics: metrics,
		draw:    rand.Int64N,
		sleep:   sleepContext,
	}
}

// Reset marks the start of a new batch.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.primed = false
	l.mu.Unlock()
}

// Delay draws the next inter-item delay.
func (l *Limiter) Delay() time.Duration {
	span := int64(l.Max - l.Min)
	if span <= 0 {
		return l.Min
	}
	return l.Min + time.Duration(l.draw(span+1))
}

// Wait blocks for the next delay unless this is the first call since Reset.
// It returns the delay slept, or ctx.Err() if ctx ends first.
func (l *Limiter) Wait(ctx context.Context) (time.Duration, error) {
	l.mu.Lock()
	first := !l.primed
	l.primed = true
	l.mu.Unlock()

	if first {
		return 0, ctx.Err()
	}

	d := l.Delay()
	if err := l.sleep(ctx, d); err != nil {
		return 0, err
	}
	l.metrics.ObserveRateLimit(d)
	return d, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
