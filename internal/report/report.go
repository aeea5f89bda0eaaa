// Package report renders a matching run into a human-reviewable document so
// the operator can decide which failed chunks to re-run.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/joelkehle/recipe-importer/internal/matcher"
)

// RunMeta carries per-run context for the report header.
type RunMeta struct {
	Regions     []string
	CatalogSize int
	Model       string
	StartedAt   time.Time
	CompletedAt time.Time
}

// BuildMarkdown renders the results and summary as a GFM report.
func BuildMarkdown(results []matcher.MatchResult, summary matcher.Summary, meta RunMeta) string {
	var b strings.Builder
	b.WriteString("# Recipe Match Report\n\n")
	if len(meta.Regions) > 0 {
		fmt.Fprintf(&b, "- Regions: %s\n", strings.Join(meta.Regions, ", "))
	}
	if meta.CatalogSize > 0 {
		fmt.Fprintf(&b, "- Catalog size: %d\n", meta.CatalogSize)
	}
	if meta.Model != "" {
		fmt.Fprintf(&b, "- Model: %s\n", meta.Model)
	}
	if !meta.CompletedAt.IsZero() {
		fmt.Fprintf(&b, "- Completed: %s\n", meta.CompletedAt.Format(time.RFC3339))
		if !meta.StartedAt.IsZero() {
			fmt.Fprintf(&b, "- Duration: %s\n", meta.CompletedAt.Sub(meta.StartedAt).Round(time.Second))
		}
	}
	b.WriteString("\n## Summary\n\n")
	b.WriteString("| Total | Matched | Unmatched | Match rate |\n")
	b.WriteString("|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %s |\n\n", summary.Total, summary.Matched, summary.Unmatched, summary.MatchRate)

	b.WriteString("### By confidence\n\n")
	b.WriteString("| High | Medium | Low |\n")
	b.WriteString("|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d |\n\n", summary.ByConfidence.High, summary.ByConfidence.Medium, summary.ByConfidence.Low)

	var failed, unmatched []matcher.MatchResult
	for _, r := range results {
		switch {
		case r.Err != "":
			failed = append(failed, r)
		case !r.Matched():
			unmatched = append(unmatched, r)
		}
	}

	b.WriteString("## Matches\n\n")
	b.WriteString("| # | Scanned title | Matched recipe | Confidence |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, r := range results {
		if !r.Matched() {
			continue
		}
		fmt.Fprintf(&b, "| %d | %s | [%s](%s) | %s |\n",
			r.OriginalIndex, sanitizeCell(r.ScannedTitle), sanitizeCell(r.MatchedName), r.MatchedURL, r.Confidence)
	}
	b.WriteString("\n")

	b.WriteString("## Unmatched\n\n")
	if len(unmatched) == 0 {
		b.WriteString("Every title with catalog candidates resolved to a match.\n\n")
	}
	for _, r := range unmatched {
		fmt.Fprintf(&b, "- #%d %s\n", r.OriginalIndex, sanitizeCell(r.ScannedTitle))
	}
	if len(unmatched) > 0 {
		b.WriteString("\n")
	}

	b.WriteString("## Failed\n\n")
	if len(failed) == 0 {
		b.WriteString("No chunk failures.\n\n")
	}
	for _, r := range failed {
		fmt.Fprintf(&b, "- #%d %s: `%s`\n", r.OriginalIndex, sanitizeCell(r.ScannedTitle), r.Err)
	}
	if len(failed) > 0 {
		b.WriteString("\nFailed titles can be re-run from the saved results file.\n\n")
	}

	b.WriteString("## Appendix\n\n")
	fmt.Fprintf(&b, "### Summary (JSON)\n\n```json\n%s\n```\n", prettyJSON(summary))
	return b.String()
}

func sanitizeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.Join(strings.Fields(s), " ")
}

func prettyJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
