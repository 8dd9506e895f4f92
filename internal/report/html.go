package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"

	"github.com/signalnine/gauntlet/eval"
	"github.com/signalnine/gauntlet/internal/result"
)

var htmlReport = template.Must(template.New("report").Funcs(template.FuncMap{
	"pretty":    pretty,
	"score":     func(v float64) string { return fmt.Sprintf("%.3f", v) },
	"pct":       func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
	"rateClass": rateClass,
	"inc":       func(i int) int { return i + 1 },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>{{if .Label}}{{.Label}} - {{end}}gauntlet report</title>
<style>
body { font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; margin: 0; padding: 20px; background: #f5f5f5; }
.container { max-width: 1400px; margin: 0 auto; background: #fff; padding: 30px; border-radius: 8px; }
.summary { display: flex; gap: 20px; margin: 20px 0 30px; padding: 20px; background: #f8f9fa; border-radius: 6px; }
.summary div { flex: 1; }
.label { font-size: 12px; color: #666; text-transform: uppercase; }
.value { font-size: 28px; font-weight: 600; }
.good { color: #28a745; } .warn { color: #d39e00; } .bad { color: #dc3545; }
table { width: 100%; border-collapse: collapse; font-size: 14px; }
th, td { padding: 8px; border-bottom: 1px solid #e5e5e5; vertical-align: top; text-align: left; }
tr.fail td.icon { color: #dc3545; } tr.pass td.icon { color: #28a745; }
pre { margin: 0; white-space: pre-wrap; word-break: break-word; max-width: 360px; }
.badge { display: inline-block; padding: 2px 8px; margin: 2px; border-radius: 10px; font-size: 12px; }
.badge.pass { background: #d4edda; color: #155724; } .badge.fail { background: #f8d7da; color: #721c24; }
.trace { border-left: 3px solid #6c757d; padding: 6px 12px; margin: 8px 0; background: #fafafa; }
.error { color: #dc3545; }
</style>
</head>
<body>
<div class="container">
<h1>{{if .Label}}{{.Label}}{{else}}Evaluation report{{end}}</h1>
<div class="summary">
  <div><div class="label">Total</div><div class="value">{{.Summary.Total}}</div></div>
  <div><div class="label">Passed</div><div class="value">{{.Summary.Passed}}</div></div>
  <div><div class="label">Pass rate</div><div class="value {{rateClass .Summary.PassRate}}">{{pct .Summary.PassRate}}</div></div>
  <div><div class="label">Avg score</div><div class="value">{{score .Summary.AvgScore}}</div></div>
  {{- if .Tokens}}
  <div><div class="label">Tokens</div><div class="value">{{.Tokens}}</div></div>
  <div><div class="label">Cost</div><div class="value">${{printf "%.4f" .Cost}}</div></div>
  {{- end}}
</div>
<table>
<thead><tr><th>ID</th><th></th><th>Score</th><th>Input</th><th>Output</th><th>Expected</th><th>Scores</th></tr></thead>
<tbody>
{{- range .Cases}}
<tr class="{{if .Passed}}pass{{else}}fail{{end}}">
  <td>{{.Key}}</td>
  <td class="icon">{{if .Passed}}✓{{else}}✗{{end}}</td>
  <td>{{score .MeanScore}}</td>
  <td><pre>{{pretty .Case.Input}}</pre></td>
  <td>{{if .Error}}<pre class="error">{{.Error}}</pre>{{else}}<pre>{{pretty .Output}}</pre>{{end}}</td>
  <td><pre>{{pretty .Case.Expected}}</pre></td>
  <td>{{range .Scores}}<span class="badge {{if .Passed}}pass{{else}}fail{{end}}">{{.Name}}: {{score .Value}}</span>{{end}}</td>
</tr>
{{- if .Traces}}
<tr><td colspan="7"><details><summary>{{len .Traces}} trace(s)</summary>
{{- range $i, $t := .Traces}}
<div class="trace">
  <strong>Trace #{{inc $i}}</strong> {{if $t.Model}}{{$t.Model}}{{else}}unknown{{end}} · {{if $t.DurationMS}}{{$t.DurationMS}}ms{{else}}-{{end}}
  {{- with $t.Usage}} · {{.InputTokens}} in / {{.OutputTokens}} out / {{.TotalTokens}} total{{end}}
  {{- if $t.Error}}<div class="error">{{$t.Error}}</div>{{end}}
  <div><strong>Input:</strong><pre>{{pretty $t.Input}}</pre></div>
  <div><strong>Output:</strong><pre>{{pretty $t.Output}}</pre></div>
</div>
{{- end}}
</details></td></tr>
{{- end}}
{{- end}}
</tbody>
</table>
</div>
</body>
</html>
`))

type htmlData struct {
	Label   string
	Summary eval.EvalSummary
	Cases   []eval.CaseResult
	Tokens  int
	Cost    float64
}

func writeHTML(w io.Writer, meta *result.RunMeta, res *eval.EvalResult) error {
	data := htmlData{Summary: res.Summary, Cases: res.Cases}
	if meta != nil {
		data.Label = meta.Label
		data.Tokens = meta.TotalTokens
		data.Cost = meta.TotalCostUSD
	}
	return htmlReport.Execute(w, data)
}

func pretty(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func rateClass(rate float64) string {
	switch {
	case rate >= 0.8:
		return "good"
	case rate >= 0.5:
		return "warn"
	default:
		return "bad"
	}
}
