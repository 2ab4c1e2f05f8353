package scraper

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-bsr-leaderboard/config"
)

// Fetcher issues single GET requests through a colly collector. It never retries.
type Fetcher struct {
	base     *colly.Collector
	identity *IdentityRotator
	metrics  *Metrics
	logger   *slog.Logger
}

// NewFetcher builds a fetcher with a pooled transport configured from cfg.
func NewFetcher(cfg *config.Config, identity *IdentityRotator, metrics *Metrics, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(cfg.MaxBodySize),
	)
	c.SetRequestTimeout(cfg.Timeout)
	c.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	c.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &Fetcher{
		base:     c,
		identity: identity,
		metrics:  metrics,
		logger:   logger,
	}
}

// WithTransport swaps the round tripper shared by every fetch.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.base.WithTransport(rt)
}

// Fetch returns the body of a 2xx response. Other statuses yield HTTPError,
// failures without a response yield TransportError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	var (
		body     string
		fetchErr error
	)
	start := time.Now()

	c := f.base.Clone()
	c.ParseHTTPErrorResponse = true
	// Bind the request to ctx so cancellation also aborts the transfer.
	colly.StdlibContext(ctx)(c)
	headers := f.identity.Headers()

	c.OnRequest(func(r *colly.Request) {
		for key, values := range headers {
			r.Headers.Del(key)
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
		f.metrics.IncRequest("started")
	})
	c.OnResponse(func(r *colly.Response) {
		f.metrics.ObserveDuration(time.Since(start))
		if r.StatusCode < http.StatusOK || r.StatusCode >= http.StatusMultipleChoices {
			fetchErr = classifyError(nil, r.StatusCode)
			return
		}
		body = string(r.Body)
	})
	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil && err == nil {
			status = r.StatusCode
		}
		fetchErr = classifyError(err, status)
	})

	done := make(chan error, 1)
	go func() {
		done <- c.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		f.metrics.IncRequest("canceled")
		return "", ctx.Err()
	case err := <-done:
		if fetchErr == nil && err != nil {
			fetchErr = classifyError(err, 0)
		}
		if fetchErr != nil {
			f.metrics.IncRequest("failed")
			f.logger.Debug("fetch failed",
				slog.String("url", rawURL),
				slog.String("category", errorTypeLabel(fetchErr)),
				slog.Any("error", fetchErr),
			)
			return "", fetchErr
		}
		f.metrics.IncRequest("completed")
		return body, nil
	}
}
