package result_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/signalnine/gauntlet/eval"
	"github.com/signalnine/gauntlet/internal/result"
)

func sampleResult() *eval.EvalResult {
	cases := []eval.CaseResult{
		{
			Case:   eval.TestCase{ID: "a", Input: "q", Expected: "x"},
			Output: "x",
			Scores: []eval.Score{{Name: "exact_match", Value: 1, Passed: true}},
			Traces: []eval.Trace{{Model: "m", Usage: &eval.TokenUsage{InputTokens: 3, OutputTokens: 2, TotalTokens: 5}}},
		},
		{
			Case:   eval.TestCase{ID: "b", Input: "q", Expected: "y"},
			Index:  1,
			Error:  "boom",
			Scores: []eval.Score{},
		},
	}
	return &eval.EvalResult{Cases: cases, Summary: eval.Summarize(cases)}
}

func TestCreateRunDir(t *testing.T) {
	base := t.TempDir()
	runDir, err := result.CreateRunDir(base, result.NewRunID())
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		t.Errorf("run directory not created: %s", runDir)
	}
	latest := filepath.Join(base, "latest")
	target, err := os.Readlink(latest)
	if err != nil {
		t.Fatalf("reading latest symlink: %v", err)
	}
	if target != runDir {
		t.Errorf("latest symlink: got %q, want %q", target, runDir)
	}
}

func TestCreateRunDirTwiceSameSecond(t *testing.T) {
	base := t.TempDir()
	first, err := result.CreateRunDir(base, result.NewRunID())
	if err != nil {
		t.Fatal(err)
	}
	second, err := result.CreateRunDir(base, result.NewRunID())
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatalf("expected distinct run dirs, both %q", first)
	}
	resolved, err := result.ResolveRunDir(filepath.Join(base, "latest"))
	if err != nil {
		t.Fatal(err)
	}
	want, _ := filepath.EvalSymlinks(second)
	if resolved != want {
		t.Errorf("latest resolves to %q, want %q", resolved, want)
	}
}

func TestWriteAndReadResult(t *testing.T) {
	dir := t.TempDir()
	res := sampleResult()
	if err := result.WriteResult(dir, res); err != nil {
		t.Fatalf("WriteResult: %v", err)
	}
	got, err := result.ReadResult(dir)
	if err != nil {
		t.Fatalf("ReadResult: %v", err)
	}
	if got.Summary != res.Summary {
		t.Errorf("summary: got %+v, want %+v", got.Summary, res.Summary)
	}
	if len(got.Cases) != 2 || got.Cases[1].Error != "boom" {
		t.Errorf("cases not round-tripped: %+v", got.Cases)
	}
	if got.Cases[0].Output != "x" {
		t.Errorf("output: got %v, want x", got.Cases[0].Output)
	}
}

func TestReadResultMissing(t *testing.T) {
	if _, err := result.ReadResult(t.TempDir()); err == nil {
		t.Fatal("expected error for missing result.json")
	}
}

func TestNewRunMeta(t *testing.T) {
	meta := result.NewRunMeta("id1", "smoke", sampleResult(), 0.25)
	if meta.Traces != 1 || meta.TotalTokens != 5 {
		t.Errorf("traces/tokens: got %d/%d, want 1/5", meta.Traces, meta.TotalTokens)
	}
	if meta.Errors != 1 {
		t.Errorf("errors: got %d, want 1", meta.Errors)
	}
	if meta.Summary.Total != 2 || meta.Summary.Passed != 1 {
		t.Errorf("summary: got %+v", meta.Summary)
	}
	if meta.TotalCostUSD != 0.25 {
		t.Errorf("cost: got %f", meta.TotalCostUSD)
	}
}

func TestDirSinkAndListRuns(t *testing.T) {
	base := t.TempDir()
	sink := result.NewDirSink(base, nil)

	if err := sink.Save(context.Background(), "first", sampleResult()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	firstDir := sink.LastRunDir()
	if err := sink.Save(context.Background(), "second", sampleResult()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if sink.LastRunDir() == firstDir {
		t.Error("LastRunDir did not advance")
	}

	// A stray directory without run.json is ignored.
	os.MkdirAll(filepath.Join(base, "runs", "junk"), 0o755)

	runs, err := result.ListRuns(base)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].Label != "first" || runs[1].Label != "second" {
		t.Errorf("order: got %q, %q", runs[0].Label, runs[1].Label)
	}
	if runs[0].Dir != firstDir {
		t.Errorf("dir: got %q, want %q", runs[0].Dir, firstDir)
	}
}

func TestListRunsEmpty(t *testing.T) {
	runs, err := result.ListRuns(t.TempDir())
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}
}
