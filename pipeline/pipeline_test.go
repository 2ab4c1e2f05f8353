package pipeline

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/aluiziolira/go-bsr-leaderboard/models"
	"github.com/aluiziolira/go-bsr-leaderboard/parser"
)

type fakeScraper struct {
	results map[string]*models.Record
	errs    map[string]error
	calls   map[string]int
	onCall  func(url string)
}

func newFakeScraper() *fakeScraper {
	return &fakeScraper{
		results: make(map[string]*models.Record),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (f *fakeScraper) Validate(rawURL string) error {
	return parser.NewURLValidator("amazon.com", "/dp/").Validate(rawURL)
}

func (f *fakeScraper) ScrapeItem(ctx context.Context, rawURL string) (*models.Record, error) {
	f.calls[rawURL]++
	if f.onCall != nil {
		f.onCall(rawURL)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := f.errs[rawURL]; ok {
		return nil, err
	}
	rec := *f.results[rawURL]
	return &rec, nil
}

type countingWaiter struct {
	waits  int
	resets int
}

func (w *countingWaiter) Reset() { w.resets++ }

func (w *countingWaiter) Wait(ctx context.Context) (time.Duration, error) {
	w.waits++
	return 0, ctx.Err()
}

const (
	urlA = "https://www.amazon.com/A/dp/A000000001"
	urlB = "https://www.amazon.com/B/dp/B000000002"
	urlC = "https://www.amazon.com/C/dp/C000000003"
)

func TestPipelineRunYieldsOneRecordPerURL(t *testing.T) {
	s := newFakeScraper()
	s.results[urlA] = &models.Record{URL: urlA, Title: "Alpha", Author: "Ann", RankValue: 10}
	s.errs[urlB] = errors.New("HTTP 404: Not Found")
	s.results[urlC] = &models.Record{URL: urlC, Title: "Gamma", Author: models.UnknownAuthor, RankValue: 30, Error: "missing critical data"}

	waiter := &countingWaiter{}
	p, err := NewPipeline(s, waiter, 16, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	urls := []string{urlA, "https://evil.test/dp/X", urlB, urlC, urlA}
	records, err := p.Run(context.Background(), urls)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(records) != len(urls) {
		t.Fatalf("records = %d, want %d", len(records), len(urls))
	}
	for i, rec := range records {
		if rec.URL != urls[i] {
			t.Fatalf("record %d url = %q, want %q", i, rec.URL, urls[i])
		}
	}

	invalid := records[1]
	if invalid.Error != "invalid URL" || invalid.Title != models.UnknownTitle || invalid.RankValue != 0 {
		t.Fatalf("unexpected invalid record: %+v", invalid)
	}
	failed := records[2]
	if failed.Error != "HTTP 404: Not Found" || failed.Author != models.UnknownAuthor || failed.CoverURL != "" {
		t.Fatalf("unexpected failure record: %+v", failed)
	}
	if records[4].Title != "Alpha" || records[4] == records[0] {
		t.Fatalf("duplicate should be an independent copy of the first record: %+v", records[4])
	}

	if s.calls[urlA] != 1 {
		t.Fatalf("duplicate url scraped %d times, want 1", s.calls[urlA])
	}
	if waiter.resets != 1 || waiter.waits != 3 {
		t.Fatalf("waiter resets=%d waits=%d, want 1 and 3", waiter.resets, waiter.waits)
	}

	outcomes := p.GetMetrics()["outcomes"].(map[string]int)
	want := map[string]int{OutcomeOK: 1, OutcomeInvalid: 1, OutcomeFailed: 1, OutcomePartial: 1, OutcomeDuplicate: 1}
	for k, v := range want {
		if outcomes[k] != v {
			t.Fatalf("outcome %s = %d, want %d (all: %v)", k, outcomes[k], v, outcomes)
		}
	}
}

func TestPipelineRunAbortsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newFakeScraper()
	s.results[urlA] = &models.Record{URL: urlA, Title: "Alpha", RankValue: 1}
	s.onCall = func(url string) {
		if url == urlB {
			cancel()
		}
	}

	p, err := NewPipeline(s, &countingWaiter{}, 4, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	records, err := p.Run(ctx, []string{urlA, urlB, urlC})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want only the completed item", len(records))
	}
	if s.calls[urlC] != 0 {
		t.Fatal("pipeline resumed after cancellation")
	}
}

func TestRankScenario(t *testing.T) {
	records := []*models.Record{
		{URL: "x", RankValue: 500},
		{URL: "y", RankValue: 0},
		{URL: "z", RankValue: 200},
	}

	ranked := Rank(records)
	got := []string{ranked[0].URL, ranked[1].URL, ranked[2].URL}
	want := []string{"z", "x", "y"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	if records[0].URL != "x" {
		t.Fatal("Rank must not reorder its input")
	}
}

func TestRankPlacesUnrankedLast(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for round := 0; round < 50; round++ {
		n := rng.IntN(30)
		records := make([]*models.Record, n)
		for i := range records {
			rank := 0
			if rng.IntN(3) > 0 {
				rank = rng.IntN(1000) + 1
			}
			records[i] = &models.Record{URL: string(rune('a' + i)), RankValue: rank}
		}

		ranked := Rank(records)
		seenUnranked := false
		last := 0
		for _, rec := range ranked {
			if rec.RankValue == 0 {
				seenUnranked = true
				continue
			}
			if seenUnranked {
				t.Fatalf("ranked record %+v after unranked one", rec)
			}
			if rec.RankValue < last {
				t.Fatalf("ranks not non-decreasing: %d after %d", rec.RankValue, last)
			}
			last = rec.RankValue
		}
	}
}

func TestRankKeepsInputOrderForUnranked(t *testing.T) {
	ranked := Rank([]*models.Record{{URL: "u1"}, {URL: "r", RankValue: 3}, {URL: "u2"}, {URL: "u3"}})
	want := []string{"r", "u1", "u2", "u3"}
	for i, rec := range ranked {
		if rec.URL != want[i] {
			t.Fatalf("position %d = %q, want %q", i, rec.URL, want[i])
		}
	}
}

func TestSummarizeCountsAnyErrorAsFailed(t *testing.T) {
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := Summarize([]*models.Record{
		{URL: "ok", Title: "T", Author: "A", RankValue: 9},
		{URL: "partial", Title: "T", Author: models.UnknownAuthor, RankValue: 4, Error: "missing critical data"},
		{URL: "failed", Title: models.UnknownTitle, Author: models.UnknownAuthor, Error: "HTTP 404: Not Found"},
	}, at)

	if out.TotalCount != 3 || out.ValidCount != 1 || out.FailedCount != 2 {
		t.Fatalf("counts total=%d valid=%d failed=%d", out.TotalCount, out.ValidCount, out.FailedCount)
	}
	if !out.GeneratedAt.Equal(at) {
		t.Fatalf("generatedAt = %s", out.GeneratedAt)
	}
	if out.Records[0].URL != "partial" || out.Records[1].URL != "ok" {
		t.Fatalf("unexpected order: %s, %s", out.Records[0].URL, out.Records[1].URL)
	}

	top := Top(out, 5)
	if len(top) != 2 {
		t.Fatalf("top = %d records, want only ranked ones", len(top))
	}
	if got := Failures(out.Records); len(got) != 2 {
		t.Fatalf("failures = %d, want 2", len(got))
	}
}
