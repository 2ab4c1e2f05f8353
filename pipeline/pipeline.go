// Package pipeline sequences acquisition over a URL list, persists the
// resulting records and publishes the ranked leaderboard.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-bsr-leaderboard/models"
	"github.com/aluiziolira/go-bsr-leaderboard/parser"
	"github.com/aluiziolira/go-bsr-leaderboard/scraper"
)

// ItemScraper validates and scrapes a single URL.
type ItemScraper interface {
	Validate(rawURL string) error
	ScrapeItem(ctx context.Context, rawURL string) (*models.Record, error)
}

// Waiter throttles consecutive items of a batch.
type Waiter interface {
	Reset()
	Wait(ctx context.Context) (time.Duration, error)
}

// Record outcomes tracked per run.
const (
	OutcomeOK        = "ok"
	OutcomePartial   = "partial"
	OutcomeFailed    = "failed"
	OutcomeInvalid   = "invalid"
	OutcomeDuplicate = "duplicate"
)

// Pipeline is the batch orchestrator. It processes one URL at a time and
// yields exactly one record per input position.
type Pipeline struct {
	scraper ItemScraper
	limiter Waiter
	cache   *lru.Cache[string, *models.Record]
	Metrics *scraper.Metrics
	logger  *slog.Logger
	now     func() time.Time

	metrics metrics
}

// NewPipeline builds a pipeline. cacheSize bounds how many records are kept
// for answering duplicate URLs within one run.
func NewPipeline(s ItemScraper, limiter Waiter, cacheSize int, logger *slog.Logger) (*Pipeline, error) {
	if s == nil {
		return nil, fmt.Errorf("item scraper is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("limiter is required")
	}
	if cacheSize <= 0 {
		cacheSize = 1
	}
	cache, err := lru.New[string, *models.Record](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		scraper: s,
		limiter: limiter,
		cache:   cache,
		logger:  logger,
		now:     utcNow,
		metrics: newMetrics(),
	}, nil
}

// Run processes urls in order. Item failures become failure records; only
// cancellation of ctx aborts the run, returning the records built so far.
func (p *Pipeline) Run(ctx context.Context, urls []string) ([]*models.Record, error) {
	p.limiter.Reset()
	p.cache.Purge()
	p.metrics.reset()

	records := make([]*models.Record, 0, len(urls))
	for i, raw := range urls {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		logger := p.logger.With(slog.String("url", raw), slog.Int("position", i+1), slog.Int("total", len(urls)))

		if cached, ok := p.cache.Get(raw); ok {
			dup := *cached
			records = append(records, &dup)
			p.count(OutcomeDuplicate)
			logger.Debug("reusing record for duplicate url")
			continue
		}

		if err := p.scraper.Validate(raw); err != nil {
			rec := models.FailureRecord(raw, parser.ErrInvalidURL.Error(), p.now())
			p.remember(raw, rec)
			records = append(records, rec)
			p.count(OutcomeInvalid)
			logger.Warn("skipping invalid url", slog.Any("error", err))
			continue
		}

		if delay, err := p.limiter.Wait(ctx); err != nil {
			return records, err
		} else if delay > 0 {
			logger.Debug("rate limit delay", slog.Duration("delay", delay))
		}

		rec, err := p.scraper.ScrapeItem(ctx, raw)
		switch {
		case err != nil && ctx.Err() != nil:
			return records, ctx.Err()
		case err != nil:
			rec = models.FailureRecord(raw, err.Error(), p.now())
			p.count(OutcomeFailed)
			logger.Error("product page failed", slog.Any("error", err))
		case rec.Failed():
			p.count(OutcomePartial)
			logger.Warn("product page partially extracted", slog.String("title", rec.Title), slog.String("error", rec.Error))
		default:
			p.count(OutcomeOK)
			logger.Info("product page scraped", slog.String("title", rec.Title), slog.Int("rank", rec.RankValue))
		}
		p.remember(raw, rec)
		records = append(records, rec)
	}
	return records, nil
}

func (p *Pipeline) remember(raw string, rec *models.Record) {
	stored := *rec
	p.cache.Add(raw, &stored)
}

func (p *Pipeline) count(outcome string) {
	p.metrics.add(outcome)
	p.Metrics.IncRecord(outcome)
}

// GetMetrics returns a snapshot of the last run's counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

type metrics struct {
	mu        sync.Mutex
	processed int64
	outcomes  map[string]int
}

func newMetrics() metrics {
	return metrics{
		outcomes: make(map[string]int),
	}
}

func (m *metrics) reset() {
	m.mu.Lock()
	m.processed = 0
	clear(m.outcomes)
	m.mu.Unlock()
}

func (m *metrics) add(outcome string) {
	m.mu.Lock()
	m.processed++
	m.outcomes[outcome]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]interface{}{
		"processed_records": m.processed,
		"outcomes":          maps.Clone(m.outcomes),
	}
}

func utcNow() time.Time {
	return time.Now().UTC()
}
