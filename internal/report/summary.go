package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/signalnine/gauntlet/internal/result"
)

// LabelSummary aggregates every stored run that shares a label.
type LabelSummary struct {
	Label        string    `json:"label"`
	Runs         int       `json:"runs"`
	Cases        int       `json:"cases"`
	MeanPassRate float64   `json:"mean_pass_rate"`
	MeanScore    float64   `json:"mean_score"`
	LastPassRate float64   `json:"last_pass_rate"`
	MeanTokens   float64   `json:"mean_tokens"`
	TotalCostUSD float64   `json:"total_cost_usd"`
	LastRun      time.Time `json:"last_run"`
}

func Summaries(runs []*result.RunMeta) []LabelSummary {
	type accum struct {
		LabelSummary
		passRate float64
		score    float64
		tokens   float64
	}
	byLabel := map[string]*accum{}

	for _, m := range runs {
		a, ok := byLabel[m.Label]
		if !ok {
			a = &accum{LabelSummary: LabelSummary{Label: m.Label}}
			byLabel[m.Label] = a
		}
		a.Runs++
		a.Cases += m.Summary.Total
		a.passRate += m.Summary.PassRate
		a.score += m.Summary.AvgScore
		a.tokens += float64(m.TotalTokens)
		a.TotalCostUSD += m.TotalCostUSD
		if !m.CreatedAt.Before(a.LastRun) {
			a.LastRun = m.CreatedAt
			a.LastPassRate = m.Summary.PassRate
		}
	}

	summaries := make([]LabelSummary, 0, len(byLabel))
	for _, a := range byLabel {
		n := float64(a.Runs)
		s := a.LabelSummary
		s.MeanPassRate = a.passRate / n
		s.MeanScore = a.score / n
		s.MeanTokens = a.tokens / n
		summaries = append(summaries, s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Label < summaries[j].Label
	})
	return summaries
}

func WriteSummaries(w io.Writer, format string, summaries []LabelSummary) error {
	switch format {
	case "", "table":
		return writeSummaryTable(w, summaries)
	case "markdown":
		return writeSummaryMarkdown(w, summaries)
	case "json":
		return writeJSON(w, summaries)
	default:
		return fmt.Errorf("unknown format %q (want table, markdown or json)", format)
	}
}

func writeSummaryTable(w io.Writer, summaries []LabelSummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tRUNS\tCASES\tMEAN PASS RATE\tLAST PASS RATE\tMEAN SCORE\tMEAN TOKENS\tCOST\tLAST RUN")
	fmt.Fprintln(tw, strings.Repeat("-", 100))
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.0f%%\t%.0f%%\t%.3f\t%.0f\t$%.2f\t%s\n",
			s.Label, s.Runs, s.Cases, s.MeanPassRate*100, s.LastPassRate*100, s.MeanScore,
			s.MeanTokens, s.TotalCostUSD, s.LastRun.Format(time.RFC3339))
	}
	return tw.Flush()
}

func writeSummaryMarkdown(w io.Writer, summaries []LabelSummary) error {
	fmt.Fprintln(w, "| Label | Runs | Cases | Mean Pass Rate | Last Pass Rate | Mean Score | Mean Tokens | Cost |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|---|")
	for _, s := range summaries {
		fmt.Fprintf(w, "| %s | %d | %d | %.0f%% | %.0f%% | %.3f | %.0f | $%.2f |\n",
			s.Label, s.Runs, s.Cases, s.MeanPassRate*100, s.LastPassRate*100, s.MeanScore, s.MeanTokens, s.TotalCostUSD)
	}
	return nil
}
