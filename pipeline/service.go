package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-bsr-leaderboard/config"
	"github.com/aluiziolira/go-bsr-leaderboard/models"
	"github.com/aluiziolira/go-bsr-leaderboard/scraper"
)

// Archive receives a copy of every acquisition's records.
type Archive interface {
	SaveRecords(ctx context.Context, runID string, records []*models.Record) error
}

// Service exposes the two entry operations: acquisition and publish.
type Service struct {
	urls      []string
	exportCSV bool

	scraper  *scraper.Scraper
	pipeline *Pipeline
	store    *Store
	archive  Archive
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires a pipeline around s. archive may be nil.
func NewService(cfg *config.Config, s *scraper.Scraper, store *Store, archive Archive, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	limiter := NewLimiterFromConfig(cfg, s.Metrics)
	p, err := NewPipeline(s, limiter, cfg.DedupeCacheSize, logger)
	if err != nil {
		return nil, err
	}
	p.Metrics = s.Metrics

	return &Service{
		urls:      append([]string(nil), cfg.URLs...),
		exportCSV: cfg.ExportCSV,
		scraper:   s,
		pipeline:  p,
		store:     store,
		archive:   archive,
		logger:    logger,
		now:       utcNow,
	}, nil
}

// NewLimiterFromConfig builds the inter-item rate limiter.
func NewLimiterFromConfig(cfg *config.Config, metrics *scraper.Metrics) *scraper.Limiter {
	return scraper.NewLimiter(cfg.RateLimitMin, cfg.RateLimitMax, metrics)
}

// Store returns the persistence layer.
func (s *Service) Store() *Store {
	return s.store
}

// Pipeline returns the batch orchestrator.
func (s *Service) Pipeline() *Pipeline {
	return s.pipeline
}

// URLs returns the configured input list.
func (s *Service) URLs() []string {
	return append([]string(nil), s.urls...)
}

// RunAcquisition scrapes every configured URL and rewrites the record
// collection. Re-running it replaces the previous collection.
func (s *Service) RunAcquisition(ctx context.Context) (*models.AcquisitionResult, error) {
	runID := uuid.NewString()
	logger := s.logger.With(slog.String("run_id", runID))
	logger.Info("acquisition started", slog.Int("urls", len(s.urls)))

	s.scraper.ResetStats()
	start := s.now()

	records, err := s.pipeline.Run(ctx, s.urls)
	if err != nil {
		logger.Warn("acquisition aborted", slog.Int("completed", len(records)), slog.Any("error", err))
		return nil, fmt.Errorf("acquisition %s: %w", runID, err)
	}

	if err := s.store.WriteRecords(records); err != nil {
		return nil, fmt.Errorf("persist records: %w", err)
	}

	if s.archive != nil {
		if err := s.archive.SaveRecords(ctx, runID, records); err != nil {
			logger.Warn("archive records", slog.Any("error", err))
		}
	}

	result := s.result(runID, records, start)
	logger.Info("acquisition finished",
		slog.Int("records", len(records)),
		slog.Int("errors", result.ErrorCount),
		slog.Int("retries", result.RetryCount),
		slog.Duration("elapsed", result.EndTime.Sub(result.StartTime)),
	)
	return result, nil
}

func (s *Service) result(runID string, records []*models.Record, start time.Time) *models.AcquisitionResult {
	stats := s.scraper.Stats()
	result := &models.AcquisitionResult{
		RunID:        runID,
		Records:      records,
		StartTime:    start,
		EndTime:      s.now(),
		ErrorsByType: stats.ErrorsByType,
		RetryCount:   stats.Retries,
		RequestCount: stats.Requests,
	}
	for _, rec := range records {
		if !rec.Failed() {
			continue
		}
		result.ErrorCount++
		if rec.Error != scraper.PartialDataReason {
			result.FailedURLs = append(result.FailedURLs, rec.URL)
		}
	}
	if outcomes, ok := s.pipeline.GetMetrics()["outcomes"].(map[string]int); ok {
		result.CacheHits = outcomes[OutcomeDuplicate]
	}
	return result
}

// RunPublish ranks the persisted collection and rewrites the published
// output. An empty collection leaves the previous output untouched.
func (s *Service) RunPublish(ctx context.Context) (*models.RankedOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records := s.store.ReadRecords()
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	out := Summarize(records, s.now().UTC())
	if err := s.store.WriteOutput(out); err != nil {
		return nil, fmt.Errorf("persist output: %w", err)
	}
	if s.exportCSV {
		if err := s.store.WriteCSV(out.Records); err != nil {
			return nil, fmt.Errorf("export csv: %w", err)
		}
	}
	s.scraper.Metrics.ObservePublish(out.TotalCount, out.ValidCount, out.FailedCount, out.GeneratedAt)

	s.logger.Info("leaderboard published",
		slog.Int("total", out.TotalCount),
		slog.Int("valid", out.ValidCount),
		slog.Int("failed", out.FailedCount),
	)
	return out, nil
}
