package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-bsr-leaderboard/api"
	"github.com/aluiziolira/go-bsr-leaderboard/cycle"
	"github.com/aluiziolira/go-bsr-leaderboard/pipeline"
)

func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Fetch every configured URL and rewrite the record collection",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			defer startMetricsServer(a)()

			result, err := a.service.RunAcquisition(cmd.Context())
			if err != nil {
				return fmt.Errorf("scrape: %w", err)
			}
			printAcquisition(cmd.OutOrStdout(), result, a.service.Store().Path(pipeline.RecordsFile))
			return nil
		}),
	}
}

func newPublishCmd() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Rank the persisted records and rewrite the published leaderboard",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			out, err := a.service.RunPublish(cmd.Context())
			if errors.Is(err, pipeline.ErrNoRecords) {
				a.logger.Warn("nothing to publish, run scrape first")
				return nil
			}
			if err != nil {
				return fmt.Errorf("publish: %w", err)
			}
			printLeaderboard(cmd.OutOrStdout(), out, top)
			return nil
		}),
	}
	cmd.Flags().IntVar(&top, "top", 5, "Number of ranked records to print")
	return cmd
}

func newCycleCmd() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Run one scrape-then-publish pass with batch-level retries",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			defer startMetricsServer(a)()

			report, err := a.runner.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("cycle: %w", err)
			}
			w := cmd.OutOrStdout()
			printAcquisition(w, report.Acquisition, a.service.Store().Path(pipeline.RecordsFile))
			printLeaderboard(w, report.Output, top)
			return nil
		}),
	}
	cmd.Flags().IntVar(&top, "top", 5, "Number of ranked records to print")
	return cmd
}

func newServeCmd() *cobra.Command {
	var noSchedule bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the leaderboard API and run the daily schedule",
		RunE: withApp(func(cmd *cobra.Command, a *app) error {
			ctx := cmd.Context()

			scheduler := cycle.NewScheduler(a.runner, a.cfg.ScheduleHourUTC, a.logger)
			if !noSchedule {
				if err := scheduler.Start(ctx); err != nil {
					return err
				}
				defer scheduler.Stop()
			}

			srv := api.NewServer(a.runner, a.service.Store(), scheduler, a.scraper.Metrics.Registry, a.logger)
			return serveHTTP(ctx, a.cfg.HTTPAddr, srv.Handler(), a.logger)
		}),
	}
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "Serve the API without starting the daily schedule")
	return cmd
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("api server listening", slog.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	logger.Info("api server stopped")
	return nil
}
