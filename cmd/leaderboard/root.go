package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-bsr-leaderboard/config"
	"github.com/aluiziolira/go-bsr-leaderboard/cycle"
	"github.com/aluiziolira/go-bsr-leaderboard/pgstore"
	"github.com/aluiziolira/go-bsr-leaderboard/pipeline"
	"github.com/aluiziolira/go-bsr-leaderboard/retry"
	"github.com/aluiziolira/go-bsr-leaderboard/scraper"
)

type appKeyType string

const appKey appKeyType = "app"

// app holds the components shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	scraper *scraper.Scraper
	service *pipeline.Service
	runner  *cycle.Runner
	archive *pgstore.Archive
}

func (a *app) Close() {
	if a.archive != nil {
		a.archive.Close()
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Tracks best-seller ranks for a fixed list of product pages.",
		Long: `leaderboard fetches each configured product page, extracts title, author,
format and rank, persists the records and publishes a ranked leaderboard.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if verbose {
				cfg.Verbose = true
			}

			logger, level := newLogger(cfg.Verbose)
			slog.SetDefault(logger)
			slog.SetLogLoggerLevel(level.Level())

			a, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(newScrapeCmd(), newPublishCmd(), newCycleCmd(), newServeCmd())
	return cmd
}

func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	s, err := scraper.NewScraper(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialising scraper: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, scraper: s}

	var archive pipeline.Archive
	if cfg.PostgresDSN != "" {
		pg, err := pgstore.New(ctx, cfg.PostgresDSN, pgstore.DefaultTable)
		if err != nil {
			return nil, fmt.Errorf("connect archive: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("archive schema: %w", err)
		}
		a.archive = pg
		archive = pg
		logger.Info("archive enabled", slog.String("table", pgstore.DefaultTable))
	}

	store := pipeline.NewStore(afero.NewOsFs(), cfg.DataDir, logger)
	a.service, err = pipeline.NewService(cfg, s, store, archive, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialising service: %w", err)
	}

	a.runner = cycle.NewRunner(a.service, retry.Policy{
		MaxAttempts: cfg.BatchMaxAttempts,
		BaseDelay:   cfg.BatchRetryBase,
		MaxDelay:    cfg.BatchRetryMax,
	}, logger)
	return a, nil
}

func appFrom(cmd *cobra.Command) (*app, error) {
	a, ok := cmd.Context().Value(appKey).(*app)
	if !ok || a == nil {
		return nil, errors.New("application not initialised")
	}
	return a, nil
}

// withApp resolves the app for a subcommand and closes it once run returns.
// Cobra skips post-run hooks when RunE fails, so closing happens here.
func withApp(run func(cmd *cobra.Command, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		a, err := appFrom(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd, a)
	}
}

// startMetricsServer exposes the scraper registry on addr until the returned
// shutdown func is called. An empty addr disables it.
func startMetricsServer(a *app) func() {
	addr := a.cfg.MetricsAddr
	if addr == "" || a.scraper.Metrics == nil {
		return func() {}
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(a.scraper.Metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	a.logger.Info("metrics server enabled", slog.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
