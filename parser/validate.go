// Package parser validates source URLs and extracts product fields from detail pages.
package parser

import (
	"errors"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned for malformed or out-of-scope source URLs.
var ErrInvalidURL = errors.New("invalid URL")

// URLValidator rejects URLs that are not product-detail pages of the target site.
type URLValidator struct {
	Domain  string
	Segment string
}

// NewURLValidator builds a validator for domain and the product path segment (e.g. "/dp/").
func NewURLValidator(domain, segment string) URLValidator {
	return URLValidator{
		Domain:  strings.ToLower(strings.TrimSpace(domain)),
		Segment: segment,
	}
}

// Validate returns ErrInvalidURL unless raw is an http(s) URL on the target
// domain (or a subdomain of it) whose path contains the product segment.
func (v URLValidator) Validate(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || v.Domain == "" {
		return ErrInvalidURL
	}
	if host != v.Domain && !strings.HasSuffix(host, "."+v.Domain) {
		return ErrInvalidURL
	}
	if v.Segment == "" || !strings.Contains(u.Path, v.Segment) {
		return ErrInvalidURL
	}
	return nil
}

// ProductID returns the path segment following the product segment, or "".
func (v URLValidator) ProductID(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || v.Segment == "" {
		return ""
	}
	idx := strings.Index(u.Path, v.Segment)
	if idx < 0 {
		return ""
	}
	rest := u.Path[idx+len(v.Segment):]
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		rest = rest[:slash]
	}
	return strings.ToUpper(rest)
}
