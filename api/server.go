// Package api exposes the manual cycle trigger and the published leaderboard over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-bsr-leaderboard/cycle"
	"github.com/aluiziolira/go-bsr-leaderboard/models"
)

// CycleRunner runs one acquisition-then-publish pass.
type CycleRunner interface {
	Run(ctx context.Context) (*cycle.Report, error)
}

// OutputReader returns the currently published leaderboard.
type OutputReader interface {
	ReadOutput() *models.RankedOutput
}

// StatusProvider reports the scheduler state.
type StatusProvider interface {
	Status() cycle.Status
}

// Server wires HTTP handlers to the cycle runner and the store.
type Server struct {
	router    chi.Router
	runner    CycleRunner
	output    OutputReader
	scheduler StatusProvider
	logger    *slog.Logger
}

type cycleResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// NewServer constructs a Server with middleware and routes. scheduler and
// gatherer may be nil.
func NewServer(runner CycleRunner, output OutputReader, scheduler StatusProvider, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		runner:    runner,
		output:    output,
		scheduler: scheduler,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	r.Route("/api", func(r chi.Router) {
		r.Post("/cycle", s.runCycle)
		r.Get("/leaderboard", s.leaderboard)
		r.Get("/scheduler", s.schedulerStatus)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) runCycle(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("manual cycle requested")
	// The cycle outlives the request: a client that gives up must not abort it.
	ctx := context.WithoutCancel(r.Context())
	if _, err := s.runner.Run(ctx); err != nil {
		if errors.Is(err, cycle.ErrCycleInProgress) {
			writeJSON(w, http.StatusConflict, cycleResponse{Message: "Cycle already in progress", Error: err.Error()})
			return
		}
		s.logger.Error("manual cycle failed", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, cycleResponse{Message: "Cycle failed", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, cycleResponse{Success: true, Message: "Cycle completed successfully"})
}

func (s *Server) leaderboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.output.ReadOutput())
}

func (s *Server) schedulerStatus(w http.ResponseWriter, _ *http.Request) {
	if s.scheduler == nil {
		writeJSON(w, http.StatusOK, cycle.Status{})
		return
	}
	writeJSON(w, http.StatusOK, s.scheduler.Status())
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Error("write JSON failed", slog.Any("error", err))
	}
}
