package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// handleReport renders a human-readable run quality report.
func (a *App) handleReport(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.snapshot(w)
	if !ok {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# AadhaarLens Run Report\n\n")
	fmt.Fprintf(&b, "**Run:** `%s`  \n", snap.RunID)
	fmt.Fprintf(&b, "**Generated:** %s\n\n", snap.GeneratedAt.Format("2006-01-02 15:04:05 MST"))

	fmt.Fprintf(&b, "## Sources\n\n")
	fmt.Fprintf(&b, "| Source | Rows Read | Rows Kept | Bad Dates | Dropped States | Blank Keys |\n")
	fmt.Fprintf(&b, "|--------|-----------|-----------|-----------|----------------|------------|\n")
	for _, q := range snap.Quality.Sources {
		fmt.Fprintf(&b, "| %s | %d | %d | %d | %d | %d |\n",
			q.Source, q.RowsRead, q.RowsKept, q.BadDates, q.DroppedStates, q.BlankKeys)
	}
	fmt.Fprintf(&b, "\nMerged records across all three sources: **%d**\n\n", snap.Quality.MergedRows)

	fmt.Fprintf(&b, "## Coverage\n\n")
	fmt.Fprintf(&b, "- Districts summarized: %d\n", len(snap.DistrictSummaries))
	fmt.Fprintf(&b, "- Boundary shapes without data: %d\n", snap.Quality.UnmatchedShapes)
	fmt.Fprintf(&b, "- Source districts without a shape: %d\n", snap.Quality.UnmatchedDistricts)
	fmt.Fprintf(&b, "- Names rescued by fuzzy matching: %d\n\n", snap.Quality.FuzzyMatched)

	fmt.Fprintf(&b, "## Anomalies\n\n")
	fmt.Fprintf(&b, "- Critical: %d\n", snap.AnomalySummary.Critical)
	fmt.Fprintf(&b, "- Warning: %d\n", snap.AnomalySummary.Warning)
	fmt.Fprintf(&b, "- Normal: %d\n\n", snap.AnomalySummary.Normal)

	if len(snap.Quality.DegradedStages) > 0 {
		fmt.Fprintf(&b, "## Degraded Stages\n\n")
		for _, stage := range snap.Quality.DegradedStages {
			fmt.Fprintf(&b, "- %s failed this run; its results are omitted\n", stage)
		}
		fmt.Fprintf(&b, "\n")
	}

	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: "AadhaarLens Run Report",
	})
	out := markdown.Render(p.Parse([]byte(b.String())), renderer)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(out)
}
