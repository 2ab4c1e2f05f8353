package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-bsr-leaderboard/cycle"
	"github.com/aluiziolira/go-bsr-leaderboard/models"
)

type stubRunner struct {
	err   error
	calls int
}

func (s *stubRunner) Run(context.Context) (*cycle.Report, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &cycle.Report{}, nil
}

type stubOutput struct {
	out *models.RankedOutput
}

func (s stubOutput) ReadOutput() *models.RankedOutput { return s.out }

type stubStatus struct {
	status cycle.Status
}

func (s stubStatus) Status() cycle.Status { return s.status }

func serve(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeCycle(t *testing.T, rec *httptest.ResponseRecorder) cycleResponse {
	t.Helper()
	var body cycleResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestRunCycleSuccess(t *testing.T) {
	runner := &stubRunner{}
	srv := NewServer(runner, stubOutput{}, nil, nil, nil)

	rec := serve(t, srv, http.MethodPost, "/api/cycle")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeCycle(t, rec)
	assert.True(t, body.Success)
	assert.Equal(t, "Cycle completed successfully", body.Message)
	assert.Empty(t, body.Error)
	assert.Equal(t, 1, runner.calls)
}

func TestRunCycleFailure(t *testing.T) {
	srv := NewServer(&stubRunner{err: errors.New("publish step: disk full")}, stubOutput{}, nil, nil, nil)

	rec := serve(t, srv, http.MethodPost, "/api/cycle")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decodeCycle(t, rec)
	assert.False(t, body.Success)
	assert.Equal(t, "Cycle failed", body.Message)
	assert.Equal(t, "publish step: disk full", body.Error)
}

func TestRunCycleInProgress(t *testing.T) {
	srv := NewServer(&stubRunner{err: cycle.ErrCycleInProgress}, stubOutput{}, nil, nil, nil)

	rec := serve(t, srv, http.MethodPost, "/api/cycle")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, decodeCycle(t, rec).Success)
}

func TestLeaderboard(t *testing.T) {
	out := &models.RankedOutput{
		Records:     []*models.Record{{URL: "https://www.amazon.com/dp/B000000001", Title: "Alpha", RankValue: 3}},
		GeneratedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		TotalCount:  1,
		ValidCount:  1,
	}
	srv := NewServer(&stubRunner{}, stubOutput{out: out}, nil, nil, nil)

	rec := serve(t, srv, http.MethodGet, "/api/leaderboard")
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.RankedOutput
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, 1, got.TotalCount)
	require.Len(t, got.Records, 1)
	assert.Equal(t, 3, got.Records[0].RankValue)
}

func TestSchedulerStatusAndHealth(t *testing.T) {
	next := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	srv := NewServer(&stubRunner{}, stubOutput{}, stubStatus{status: cycle.Status{Running: true, NextRun: next}}, nil, nil)

	rec := serve(t, srv, http.MethodGet, "/api/scheduler")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"isRunning":true`)
	assert.Contains(t, rec.Body.String(), "2025-06-02T00:00:00Z")

	rec = serve(t, srv, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "leaderboard_test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	srv := NewServer(&stubRunner{}, stubOutput{}, nil, registry, nil)
	rec := serve(t, srv, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "leaderboard_test_total 1"))
}

func TestCycleRequiresPost(t *testing.T) {
	srv := NewServer(&stubRunner{}, stubOutput{}, nil, nil, nil)
	rec := serve(t, srv, http.MethodGet, "/api/cycle")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type slowRunner struct {
	delay time.Duration
	done  chan error
}

func (s *slowRunner) Run(ctx context.Context) (*cycle.Report, error) {
	select {
	case <-time.After(s.delay):
		s.done <- nil
		return &cycle.Report{}, nil
	case <-ctx.Done():
		s.done <- ctx.Err()
		return nil, ctx.Err()
	}
}

func TestRunCycleSurvivesClientDisconnect(t *testing.T) {
	runner := &slowRunner{delay: 500 * time.Millisecond, done: make(chan error, 1)}
	ts := httptest.NewServer(NewServer(runner, stubOutput{}, nil, nil, nil).Handler())
	defer ts.Close()

	client := &http.Client{Timeout: 50 * time.Millisecond}
	resp, err := client.Post(ts.URL+"/api/cycle", "application/json", nil)
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err, "client should give up before the cycle ends")

	select {
	case runErr := <-runner.done:
		assert.NoError(t, runErr, "cycle must not be canceled by the departing client")
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not finish")
	}
}
