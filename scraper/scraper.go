// Package scraper fetches product pages and turns each one into a record.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-bsr-leaderboard/config"
	"github.com/aluiziolira/go-bsr-leaderboard/models"
	"github.com/aluiziolira/go-bsr-leaderboard/parser"
	"github.com/aluiziolira/go-bsr-leaderboard/retry"
)

// PartialDataReason is the descriptor carried by records built from partial pages.
const PartialDataReason = "missing critical data"

// Scraper runs fetch and extraction for one URL under the item retry policy.
type Scraper struct {
	validator parser.URLValidator
	extractor *parser.Extractor
	overrides parser.Overrides
	fetcher   *Fetcher
	policy    retry.Policy
	Metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time

	requestCount int64
	retryCount   int64

	mu           sync.Mutex
	errorsByType map[string]int
}

// Stats is a snapshot of the counters accumulated since the last ResetStats.
type Stats struct {
	Requests     int
	Retries      int
	ErrorsByType map[string]int
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config, logger *slog.Logger) (*Scraper, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	overrides := make(map[string]parser.Override, len(cfg.Overrides))
	for id, o := range cfg.Overrides {
		overrides[id] = parser.Override{Title: o.Title, Author: o.Author}
	}

	metrics := NewMetrics()
	s := &Scraper{
		validator: parser.NewURLValidator(cfg.TargetDomain, cfg.ProductPathSegment),
		extractor: parser.NewExtractor(parser.ExtractorConfig{
			FormatKeyword:  cfg.FormatKeyword,
			MediaCDNPrefix: cfg.MediaCDNPrefix,
		}, logger),
		overrides: parser.NewOverrides(overrides),
		fetcher:   NewFetcher(cfg, NewIdentityRotator(cfg.UserAgents), metrics, logger),
		policy: retry.Policy{
			MaxAttempts: cfg.ItemMaxAttempts,
			BaseDelay:   cfg.ItemRetryBase,
			MaxDelay:    cfg.ItemRetryMax,
			Retryable:   retryable,
		},
		Metrics:      metrics,
		logger:       logger,
		now:          utcNow,
		errorsByType: make(map[string]int),
	}
	return s, nil
}

// Fetcher exposes the underlying fetcher, mainly to swap its transport.
func (s *Scraper) Fetcher() *Fetcher {
	return s.fetcher
}

// Validate checks rawURL without issuing any request.
func (s *Scraper) Validate(rawURL string) error {
	return s.validator.Validate(rawURL)
}

// ScrapeItem fetches and extracts rawURL, retrying transport failures and
// empty pages. Invalid URLs fail at once without a request. On exhaustion
// the last observed error is returned.
func (s *Scraper) ScrapeItem(ctx context.Context, rawURL string) (*models.Record, error) {
	if err := s.validator.Validate(rawURL); err != nil {
		s.recordError(err)
		return nil, err
	}
	productID := s.validator.ProductID(rawURL)

	var fields parser.Fields
	op := func(ctx context.Context, attempt int) error {
		atomic.AddInt64(&s.requestCount, 1)
		s.logger.Info("scraping product page", slog.String("url", rawURL), slog.Int("attempt", attempt))

		body, err := s.fetcher.Fetch(ctx, rawURL)
		if err != nil {
			if ctx.Err() == nil {
				s.recordError(err)
			}
			return err
		}

		f := s.extractor.Extract(body)
		if s.overrides.Apply(productID, &f) {
			s.logger.Debug("applied field override", slog.String("url", rawURL), slog.String("product_id", productID))
		}
		if f.Empty() {
			s.recordError(ErrNoUsableData)
			return ErrNoUsableData
		}
		fields = f
		return nil
	}
	notify := func(err error, attempt int, delay time.Duration) {
		atomic.AddInt64(&s.retryCount, 1)
		s.Metrics.IncRetries()
		s.logger.Warn("retrying product page",
			slog.String("url", rawURL),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
	}

	if err := s.policy.Do(ctx, op, notify); err != nil {
		if errors.Is(err, ErrNoUsableData) {
			return nil, fmt.Errorf("%w after retries", ErrNoUsableData)
		}
		return nil, err
	}
	return buildRecord(rawURL, fields, s.now()), nil
}

// buildRecord fills sentinels for missing fields and flags partial records.
func buildRecord(rawURL string, f parser.Fields, capturedAt time.Time) *models.Record {
	rec := &models.Record{
		URL:           rawURL,
		IsValidFormat: f.FormatConfirmed,
		Title:         models.UnknownTitle,
		Author:        models.UnknownAuthor,
		RankValue:     models.NoRank,
		CapturedAt:    capturedAt,
	}
	if f.Title != nil {
		rec.Title = *f.Title
	}
	if f.Author != nil {
		rec.Author = *f.Author
	}
	if f.Rank != nil {
		rec.RankValue = *f.Rank
	}
	if f.CoverURL != nil {
		rec.CoverURL = *f.CoverURL
	}
	if f.Partial() {
		rec.Error = PartialDataReason
	}
	return rec
}

func (s *Scraper) recordError(err error) {
	category := errorTypeLabel(err)
	s.mu.Lock()
	s.errorsByType[category]++
	s.mu.Unlock()
	s.Metrics.IncError(category)
}

// Stats returns a snapshot of the request, retry and error counters.
func (s *Scraper) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Requests:     int(atomic.LoadInt64(&s.requestCount)),
		Retries:      int(atomic.LoadInt64(&s.retryCount)),
		ErrorsByType: maps.Clone(s.errorsByType),
	}
}

// ResetStats clears the counters at the start of a run. Prometheus metrics keep accumulating.
func (s *Scraper) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	atomic.StoreInt64(&s.requestCount, 0)
	atomic.StoreInt64(&s.retryCount, 0)
	clear(s.errorsByType)
}

func utcNow() time.Time {
	return time.Now().UTC()
}
