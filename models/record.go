// Package models defines data structures for the leaderboard.
package models

import "time"

// Fallback values used when a field could not be recovered.
const (
	UnknownTitle  = "Unknown Title"
	UnknownAuthor = "Unknown Author"
	// NoRank marks a record whose rank is unknown. It is never a real rank.
	NoRank = 0
)

// Record is the outcome of processing one source URL. URL is its natural key.
type Record struct {
	URL           string    `json:"url"`
	IsValidFormat bool      `json:"isValidFormat"`
	Title         string    `json:"title"`
	Author        string    `json:"author"`
	RankValue     int       `json:"rankValue"`
	CoverURL      string    `json:"coverUrl"`
	CapturedAt    time.Time `json:"capturedAt"`
	Error         string    `json:"error,omitempty"`
}

// Failed reports whether the record carries an error descriptor.
func (r *Record) Failed() bool {
	return r.Error != ""
}

// Ranked reports whether the record holds a real rank.
func (r *Record) Ranked() bool {
	return r.RankValue != NoRank
}

// FailureRecord builds the placeholder record for a URL that yielded no data.
func FailureRecord(url, reason string, capturedAt time.Time) *Record {
	return &Record{
		URL:        url,
		Title:      UnknownTitle,
		Author:     UnknownAuthor,
		RankValue:  NoRank,
		CapturedAt: capturedAt,
		Error:      reason,
	}
}

// RankedOutput is the published leaderboard, regenerated on every publish.
// A zero GeneratedAt means nothing has been published yet.
type RankedOutput struct {
	Records     []*Record `json:"records"`
	GeneratedAt time.Time `json:"generatedAt"`
	TotalCount  int       `json:"totalCount"`
	ValidCount  int       `json:"validCount"`
	FailedCount int       `json:"failedCount"`
}

// Published reports whether the output came from a publish step.
func (o *RankedOutput) Published() bool {
	return !o.GeneratedAt.IsZero()
}

// AcquisitionResult holds the overall result of one acquisition run.
type AcquisitionResult struct {
	RunID        string
	Records      []*Record
	StartTime    time.Time
	EndTime      time.Time
	ErrorCount   int
	FailedURLs   []string
	ErrorsByType map[string]int
	RetryCount   int
	RequestCount int
	CacheHits    int
}
