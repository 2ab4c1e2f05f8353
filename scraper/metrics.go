package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for acquisition and publishing.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	RecordsTotal      *prometheus.CounterVec
	RetriesTotal      prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
	RateLimitDelay    prometheus.Histogram
	LeaderboardSize   *prometheus.GaugeVec
	LastPublishedTime prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaderboard_requests_total",
			Help: "Total product page requests by phase.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leaderboard_request_duration_seconds",
			Help:    "Latency of product page requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaderboard_records_total",
			Help: "Records produced by acquisition runs, by outcome.",
		},
		[]string{"outcome"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "leaderboard_retries_total",
			Help: "Total number of item retries scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaderboard_errors_total",
			Help: "Total number of acquisition errors by type.",
		},
		[]string{"error_type"},
	)
	rateLimit := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leaderboard_rate_limit_delay_seconds",
			Help:    "Inter-item delays applied by the rate limiter.",
			Buckets: []float64{0.5, 1, 2, 3, 5, 7.5, 10, 15},
		},
	)
	size := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "leaderboard_published_records",
			Help: "Record counts of the last published leaderboard.",
		},
		[]string{"status"},
	)
	lastPublished := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "leaderboard_last_publish_timestamp_seconds",
			Help: "Unix time of the last successful publish.",
		},
	)

	registry.MustRegister(requests, requestDuration, records, retries, errorsTotal, rateLimit, size, lastPublished)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		RecordsTotal:      records,
		RetriesTotal:      retries,
		ErrorsTotal:       errorsTotal,
		RateLimitDelay:    rateLimit,
		LeaderboardSize:   size,
		LastPublishedTime: lastPublished,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncRecord counts one record by outcome (ok, partial, failed, invalid).
func (m *Metrics) IncRecord(outcome string) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(outcome).Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// ObserveRateLimit records an inter-item delay.
func (m *Metrics) ObserveRateLimit(d time.Duration) {
	if m == nil {
		return
	}
	m.RateLimitDelay.Observe(d.Seconds())
}

// ObservePublish records the counters of a freshly published leaderboard.
func (m *Metrics) ObservePublish(total, valid, failed int, at time.Time) {
	if m == nil {
		return
	}
	m.LeaderboardSize.WithLabelValues("total").Set(float64(total))
	m.LeaderboardSize.WithLabelValues("valid").Set(float64(valid))
	m.LeaderboardSize.WithLabelValues("failed").Set(float64(failed))
	m.LastPublishedTime.Set(float64(at.Unix()))
}
