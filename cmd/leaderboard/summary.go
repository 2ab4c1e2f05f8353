package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/aluiziolira/go-bsr-leaderboard/models"
	"github.com/aluiziolira/go-bsr-leaderboard/pipeline"
)

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	t.SetTitle(title)
	return t
}

func printAcquisition(w io.Writer, result *models.AcquisitionResult, outputFile string) {
	if result == nil {
		return
	}
	duration := result.EndTime.Sub(result.StartTime)
	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(len(result.Records)) / duration.Seconds()
	}
	successRate := 0.0
	if n := len(result.Records); n > 0 {
		successRate = float64(n-result.ErrorCount) / float64(n) * 100
	}

	t := newTable(w, "Scrape complete")
	t.AppendRows([]table.Row{
		{"Run", result.RunID},
		{"Total records", len(result.Records)},
		{"Success rate", fmt.Sprintf("%.2f%%", successRate)},
		{"Errors", result.ErrorCount},
		{"Requests", result.RequestCount},
		{"Retries", result.RetryCount},
		{"Duplicates", result.CacheHits},
		{"Failed URLs", len(result.FailedURLs)},
	})
	if len(result.ErrorsByType) > 0 {
		t.AppendRow(table.Row{"Error types", formatCounts(result.ErrorsByType)})
	}
	t.AppendRows([]table.Row{
		{"Duration", duration.Round(10 * time.Millisecond)},
		{"Items/sec", fmt.Sprintf("%.2f", itemsPerSec)},
		{"Output file", outputFile},
	})
	t.Render()
}

func printLeaderboard(w io.Writer, out *models.RankedOutput, top int) {
	if out == nil {
		return
	}
	if top < 0 {
		top = 0
	}

	t := newTable(w, fmt.Sprintf("Top %d of %d (valid %d, failed %d)", top, out.TotalCount, out.ValidCount, out.FailedCount))
	t.AppendHeader(table.Row{"#", "Rank", "Title", "Author", "Paperback"})
	for i, rec := range pipeline.Top(out, top) {
		t.AppendRow(table.Row{i + 1, fmt.Sprintf("#%d", rec.RankValue), rec.Title, rec.Author, rec.IsValidFormat})
	}
	t.Render()

	failed := pipeline.Failures(out.Records)
	if len(failed) == 0 {
		return
	}
	ft := newTable(w, "Records with errors")
	ft.AppendHeader(table.Row{"URL", "Error"})
	for _, rec := range failed {
		ft.AppendRow(table.Row{rec.URL, rec.Error})
	}
	ft.Render()
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}
