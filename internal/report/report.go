package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/signalnine/gauntlet/eval"
	"github.com/signalnine/gauntlet/internal/pricing"
	"github.com/signalnine/gauntlet/internal/result"
)

var Formats = []string{"table", "markdown", "json", "html"}

// Generate reads the result stored in runDir and renders it.
func Generate(runDir, format string, w io.Writer, table *pricing.Table) error {
	res, err := result.ReadResult(runDir)
	if err != nil {
		return err
	}
	meta, err := result.ReadRunMeta(runDir)
	if err != nil {
		meta = result.NewRunMeta("", "", res, 0)
	}
	if table != nil {
		meta.TotalCostUSD = table.ResultCost(res)
	}
	return Write(w, format, meta, res)
}

// Write renders res in format. meta supplies the header of the markdown and
// html renderers and may be nil.
func Write(w io.Writer, format string, meta *result.RunMeta, res *eval.EvalResult) error {
	switch format {
	case "", "table":
		res.WriteTable(w)
		return nil
	case "markdown":
		return writeMarkdown(w, meta, res)
	case "json":
		return writeJSON(w, res)
	case "html":
		return writeHTML(w, meta, res)
	default:
		return fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

func writeMarkdown(w io.Writer, meta *result.RunMeta, res *eval.EvalResult) error {
	if meta != nil && meta.Label != "" {
		fmt.Fprintf(w, "## %s\n\n", meta.Label)
	}
	fmt.Fprintln(w, "| Case | Passed | Score | Scores | Output |")
	fmt.Fprintln(w, "|---|---|---|---|---|")
	for _, cr := range res.Cases {
		passed := "no"
		if cr.Passed() {
			passed = "yes"
		}
		output := eval.Preview(cr.Output)
		if cr.Error != "" {
			output = "error: " + cr.Error
		}
		fmt.Fprintf(w, "| %s | %s | %.3f | %s | %s |\n",
			mdEscape(cr.Key()), passed, cr.MeanScore(), mdEscape(scoreList(cr.Scores)), mdEscape(output))
	}
	s := res.Summary
	fmt.Fprintf(w, "\n**Total:** %d  **Passed:** %d  **Pass rate:** %.1f%%  **Avg score:** %.3f\n",
		s.Total, s.Passed, s.PassRate*100, s.AvgScore)
	if meta != nil && meta.TotalTokens > 0 {
		fmt.Fprintf(w, "\n**Tokens:** %d  **Cost:** $%.4f\n", meta.TotalTokens, meta.TotalCostUSD)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func scoreList(scores []eval.Score) string {
	parts := make([]string, len(scores))
	for i, s := range scores {
		parts[i] = fmt.Sprintf("%s=%.2f", s.Name, s.Value)
	}
	return strings.Join(parts, ", ")
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
