package eval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

const previewWidth = 64

// WriteTable renders one row per case followed by the summary line.
func (res *EvalResult) WriteTable(w io.Writer) {
	tw := tablewriter.NewWriter(w)
	tw.SetAutoWrapText(false)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeader([]string{"ID", "PASSED", "AVG_SCORE", "INPUT", "OUTPUT", "EXPECTED"})
	for _, cr := range res.Cases {
		id := cr.Case.ID
		if id == "" {
			id = "-"
		}
		mark := " "
		if cr.Passed() {
			mark = "✓"
		}
		output := Preview(cr.Output)
		if cr.Error != "" {
			output = truncate("error: "+cr.Error, previewWidth)
		}
		tw.Append([]string{
			id,
			mark,
			fmt.Sprintf("%.3f", cr.MeanScore()),
			Preview(cr.Case.Input),
			output,
			Preview(cr.Case.Expected),
		})
	}
	tw.Render()

	s := res.Summary
	fmt.Fprintf(w, "\nTotal: %d  Passed: %d  Pass rate: %.1f%%  Avg score: %.3f\n",
		s.Total, s.Passed, s.PassRate*100, s.AvgScore)
}

// SummaryTable is WriteTable into a string.
func (res *EvalResult) SummaryTable() string {
	var buf bytes.Buffer
	res.WriteTable(&buf)
	return buf.String()
}

// Preview renders v on one line for display: strings verbatim, anything else
// as compact JSON, truncated to a fixed width.
func Preview(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		s = "null"
	case string:
		s = x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			s = fmt.Sprint(x)
		} else {
			s = string(b)
		}
	}
	return truncate(s, previewWidth)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
