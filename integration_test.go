//go:build integration

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/gauntlet/eval"
	"github.com/signalnine/gauntlet/internal/result"
	"github.com/signalnine/gauntlet/scorer"
	"github.com/signalnine/gauntlet/task"
)

func TestContainerTaskIntegration(t *testing.T) {
	if os.Getenv("GAUNTLET_TEST_DOCKER") == "" {
		t.Skip("set GAUNTLET_TEST_DOCKER=1 to run integration tests")
	}

	ct, err := task.NewContainer(task.ContainerOptions{
		Image:           "alpine:latest",
		Command:         []string{"sh", "-c", `cp "$EVAL_INPUT" "$EVAL_OUTPUT"`},
		Timeout:         2 * time.Minute,
		NetworkDisabled: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	cases := eval.Cases{
		{ID: "greeting", Input: "hello", Expected: "hello"},
		{ID: "number", Input: 42.0, Expected: 42.0},
		{ID: "mismatch", Input: "left", Expected: "right"},
	}

	resultsDir := t.TempDir()
	sink := result.NewDirSink(resultsDir, nil)
	eng, err := eval.New(cases, ct,
		eval.WithScorers(scorer.ExactMatch(scorer.ExactMatchOptions{})),
		eval.WithConcurrency(2),
		eval.WithSink(sink, "container-echo"),
	)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := eng.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if res.Summary.Total != 3 {
		t.Fatalf("total = %d, want 3", res.Summary.Total)
	}
	if res.Summary.Passed != 2 {
		for _, cr := range res.Cases {
			t.Logf("%s: output=%v error=%q scores=%v", cr.Key(), cr.Output, cr.Error, cr.Scores)
		}
		t.Fatalf("passed = %d, want 2", res.Summary.Passed)
	}
	for _, cr := range res.Cases {
		if len(cr.Traces) != 1 {
			t.Errorf("%s: got %d traces, want 1", cr.Key(), len(cr.Traces))
		}
	}

	runDir := sink.LastRunDir()
	if runDir == "" {
		t.Fatal("sink did not record a run directory")
	}
	if _, err := os.Stat(filepath.Join(runDir, result.ResultFile)); err != nil {
		t.Fatalf("result file missing: %v", err)
	}
	meta, err := result.ReadRunMeta(runDir)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Label != "container-echo" {
		t.Errorf("label = %q, want container-echo", meta.Label)
	}
}
