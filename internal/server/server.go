// Package server serves stored runs over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/signalnine/gauntlet/internal/pricing"
	"github.com/signalnine/gauntlet/internal/report"
	"github.com/signalnine/gauntlet/internal/result"
)

var errRunNotFound = errors.New("run not found")

type Handler struct {
	resultsDir string
	pricing    *pricing.Table
	gatherer   prometheus.Gatherer
	logger     *zap.Logger
}

// New serves runs stored under resultsDir. gatherer backs /metrics and may
// be nil.
func New(resultsDir string, table *pricing.Table, gatherer prometheus.Gatherer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{resultsDir: resultsDir, pricing: table, gatherer: gatherer, logger: logger}
}

func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/", h.getIndex)
	r.Get("/api/runs", h.getRuns)
	r.Get("/api/labels", h.getLabels)
	r.Get("/runs/{id}", h.getRun)
	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (h *Handler) getRuns(w http.ResponseWriter, _ *http.Request) {
	runs, err := result.ListRuns(h.resultsDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []*result.RunMeta{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) getLabels(w http.ResponseWriter, _ *http.Request) {
	runs, err := result.ListRuns(h.resultsDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report.Summaries(runs))
}

// getRun renders one run. id is a run id or "latest"; ?format= picks the
// renderer and defaults to html.
func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	dir, err := h.findRun(chi.URLParam(r, "id"))
	if errors.Is(err, errRunNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "html"
	}
	switch format {
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	case "json":
		w.Header().Set("Content-Type", "application/json")
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	if err := report.Generate(dir, format, w, h.pricing); err != nil {
		h.logger.Warn("rendering run failed", zap.String("dir", dir), zap.Error(err))
		writeError(w, http.StatusBadRequest, err)
	}
}

func (h *Handler) findRun(id string) (string, error) {
	if id == "latest" {
		dir, err := result.ResolveRunDir(filepath.Join(h.resultsDir, result.LatestLink))
		if err != nil {
			return "", errRunNotFound
		}
		return dir, nil
	}
	runs, err := result.ListRuns(h.resultsDir)
	if err != nil {
		return "", err
	}
	for _, m := range runs {
		if m.ID == id {
			return m.Dir, nil
		}
	}
	return "", errRunNotFound
}

var indexPage = template.Must(template.New("index").Funcs(template.FuncMap{
	"pct": func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>gauntlet runs</title>
<style>
body { font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; margin: 20px; }
table { border-collapse: collapse; } th, td { padding: 6px 12px; border-bottom: 1px solid #e5e5e5; text-align: left; }
</style></head>
<body>
<h1>Runs</h1>
{{- if .}}
<table>
<thead><tr><th>Run</th><th>Label</th><th>Created</th><th>Cases</th><th>Passed</th><th>Pass rate</th><th>Avg score</th></tr></thead>
<tbody>
{{- range .}}
<tr><td><a href="/runs/{{.ID}}">{{.ID}}</a></td><td>{{.Label}}</td><td>{{.CreatedAt.Format "2006-01-02 15:04:05"}}</td>
<td>{{.Summary.Total}}</td><td>{{.Summary.Passed}}</td><td>{{pct .Summary.PassRate}}</td><td>{{printf "%.3f" .Summary.AvgScore}}</td></tr>
{{- end}}
</tbody>
</table>
{{- else}}
<p>No runs stored yet.</p>
{{- end}}
</body>
</html>
`))

func (h *Handler) getIndex(w http.ResponseWriter, _ *http.Request) {
	runs, err := result.ListRuns(h.resultsDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	// newest first
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexPage.Execute(w, runs); err != nil {
		h.logger.Warn("rendering index failed", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
