package pipeline

import (
	"cmp"
	"errors"
	"slices"
	"time"

	"github.com/aluiziolira/go-bsr-leaderboard/models"
)

// ErrNoRecords is returned when there is nothing to publish.
var ErrNoRecords = errors.New("no records to publish")

// Rank returns a copy of records ordered by ascending rank. Records without
// a rank go last; ties keep their input order.
func Rank(records []*models.Record) []*models.Record {
	ranked := make([]*models.Record, 0, len(records))
	for _, rec := range records {
		if rec != nil {
			ranked = append(ranked, rec)
		}
	}
	slices.SortStableFunc(ranked, compareRank)
	return ranked
}

func compareRank(a, b *models.Record) int {
	switch {
	case a.Ranked() && b.Ranked():
		return cmp.Compare(a.RankValue, b.RankValue)
	case a.Ranked():
		return -1
	case b.Ranked():
		return 1
	}
	return 0
}

// Summarize ranks records and computes the published counters. A record
// counts as failed whenever it carries an error descriptor.
func Summarize(records []*models.Record, generatedAt time.Time) *models.RankedOutput {
	ranked := Rank(records)
	failed := 0
	for _, rec := range ranked {
		if rec.Failed() {
			failed++
		}
	}
	return &models.RankedOutput{
		Records:     ranked,
		GeneratedAt: generatedAt,
		TotalCount:  len(ranked),
		ValidCount:  len(ranked) - failed,
		FailedCount: failed,
	}
}

// Top returns up to n ranked records in leaderboard order.
func Top(out *models.RankedOutput, n int) []*models.Record {
	top := make([]*models.Record, 0, n)
	for _, rec := range out.Records {
		if len(top) == n {
			break
		}
		if rec.Ranked() {
			top = append(top, rec)
		}
	}
	return top
}

// Failures returns the records carrying an error descriptor.
func Failures(records []*models.Record) []*models.Record {
	var failed []*models.Record
	for _, rec := range records {
		if rec.Failed() {
			failed = append(failed, rec)
		}
	}
	return failed
}
