package scraper

import (
	"math/rand/v2"
	"net/http"
)

// IdentityRotator draws a client identity for each fetch.
type IdentityRotator struct {
	agents []string
	pick   func(n int) int
}

// NewIdentityRotator copies the pool. An empty pool yields an empty identity.
func NewIdentityRotator(agents []string) *IdentityRotator {
	return &IdentityRotator{
		agents: append([]string(nil), agents...),
		pick:   rand.IntN,
	}
}

// UserAgent returns one pool entry chosen uniformly at random.
func (r *IdentityRotator) UserAgent() string {
	if len(r.agents) == 0 {
		return ""
	}
	return r.agents[r.pick(len(r.agents))]
}

// Headers returns the browser-like header set sent with every fetch.
func (r *IdentityRotator) Headers() http.Header {
	h := http.Header{}
	if ua := r.UserAgent(); ua != "" {
		h.Set("User-Agent", ua)
	}
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("Accept-Encoding", "gzip")
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	return h
}
