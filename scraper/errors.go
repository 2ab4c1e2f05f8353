package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/aluiziolira/go-bsr-leaderboard/parser"
)

// ErrNoUsableData indicates a page was fetched but no critical field could be extracted.
var ErrNoUsableData = errors.New("no usable data found on page")

// Transport failure kinds.
const (
	KindTimeout    = "timeout"
	KindConnection = "connection"
	KindOther      = "other"
)

// HTTPError is a completed request that returned a non-2xx status.
type HTTPError struct {
	StatusCode int
	Reason     string
}

func (e HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Reason)
}

// TransportError is a request that never produced a response.
type TransportError struct {
	Kind string
	Err  error
}

func (e TransportError) Error() string {
	if e.Err == nil {
		return e.Kind
	}
	return e.Err.Error()
}

func (e TransportError) Unwrap() error {
	return e.Err
}

// classifyError maps a collector failure onto HTTPError or TransportError.
func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}
	if statusCode != 0 {
		return HTTPError{StatusCode: statusCode, Reason: http.StatusText(statusCode)}
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TransportError{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TransportError{Kind: KindTimeout, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return TransportError{Kind: KindConnection, Err: err}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return TransportError{Kind: KindConnection, Err: err}
	}
	return TransportError{Kind: KindOther, Err: err}
}

// retryable reports whether an item-level failure may be attempted again.
func retryable(err error) bool {
	switch {
	case errors.Is(err, parser.ErrInvalidURL):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		var transport TransportError
		return errors.As(err, &transport)
	}
	return true
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, parser.ErrInvalidURL) {
		return "invalid_url"
	}
	if errors.Is(err, ErrNoUsableData) {
		return "no_data"
	}
	var transport TransportError
	if errors.As(err, &transport) {
		switch transport.Kind {
		case KindTimeout:
			return "timeout"
		case KindConnection:
			return "connection"
		}
		return "other"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusForbidden:
			return "forbidden"
		case http.StatusNotFound:
			return "not_found"
		case http.StatusTooManyRequests:
			return "rate_limited"
		}
		return "http"
	}
	return "other"
}

// ErrorTypeLabel exposes the metrics label for err.
func ErrorTypeLabel(err error) string {
	return errorTypeLabel(err)
}
