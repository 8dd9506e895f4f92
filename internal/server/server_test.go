package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/signalnine/gauntlet/eval"
	"github.com/signalnine/gauntlet/internal/report"
	"github.com/signalnine/gauntlet/internal/result"
	"github.com/signalnine/gauntlet/internal/server"
	"github.com/signalnine/gauntlet/internal/telemetry"
)

func seed(t *testing.T) (string, []*result.RunMeta) {
	t.Helper()
	base := t.TempDir()
	sink := result.NewDirSink(base, nil)
	for _, label := range []string{"capitals", "capitals", "math"} {
		cases := []eval.CaseResult{{
			Case:   eval.TestCase{ID: "c1", Input: "q", Expected: "a"},
			Output: "a",
			Scores: []eval.Score{{Name: "exact_match", Value: 1, Passed: true}},
		}}
		require.NoError(t, sink.Save(context.Background(), label, &eval.EvalResult{Cases: cases, Summary: eval.Summarize(cases)}))
	}
	runs, err := result.ListRuns(base)
	require.NoError(t, err)
	return base, runs
}

func get(t *testing.T, srv *httptest.Server, path string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func newServer(t *testing.T, base string) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics(reg)
	m.RunFinished("capitals", eval.EvalSummary{Total: 1, Passed: 1, PassRate: 1, AvgScore: 1})
	srv := httptest.NewServer(server.New(base, nil, reg, zaptest.NewLogger(t)).Router())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	srv := newServer(t, t.TempDir())
	resp, body := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", body)
}

func TestMetrics(t *testing.T) {
	srv := newServer(t, t.TempDir())
	resp, body := get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `gauntlet_pass_rate{label="capitals"} 1`)
}

func TestAPIRuns(t *testing.T) {
	base, runs := seed(t)
	srv := newServer(t, base)

	resp, body := get(t, srv, "/api/runs")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got []result.RunMeta
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	require.Len(t, got, 3)
	assert.Equal(t, runs[0].ID, got[0].ID)

	resp, body = get(t, srv, "/api/labels")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var labels []report.LabelSummary
	require.NoError(t, json.Unmarshal([]byte(body), &labels))
	require.Len(t, labels, 2)
	assert.Equal(t, "capitals", labels[0].Label)
	assert.Equal(t, 2, labels[0].Runs)
}

func TestAPIRunsEmpty(t *testing.T) {
	srv := newServer(t, t.TempDir())
	_, body := get(t, srv, "/api/runs")
	assert.Equal(t, "[]", strings.TrimSpace(body))
}

func TestRunPage(t *testing.T) {
	base, runs := seed(t)
	srv := newServer(t, base)

	resp, body := get(t, srv, "/runs/"+runs[0].ID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "<title>capitals - gauntlet report</title>")

	resp, body = get(t, srv, "/runs/latest?format=json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var res eval.EvalResult
	require.NoError(t, json.Unmarshal([]byte(body), &res))
	assert.Equal(t, 1, res.Summary.Total)

	resp, _ = get(t, srv, "/runs/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = get(t, srv, "/runs/latest?format=pdf")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "unknown format")
}

func TestIndex(t *testing.T) {
	base, runs := seed(t)
	srv := newServer(t, base)
	resp, body := get(t, srv, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `<a href="/runs/`+runs[2].ID+`">`)
	assert.Less(t, strings.Index(body, runs[2].ID), strings.Index(body, runs[0].ID), "newest first")

	_, body = get(t, newServer(t, t.TempDir()), "/")
	assert.Contains(t, body, "No runs stored yet.")
}
