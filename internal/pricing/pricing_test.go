package pricing_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/signalnine/gauntlet/eval"
	"github.com/signalnine/gauntlet/internal/pricing"
)

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

const pricingYAML = `anthropic:
  claude-sonnet:
    input: 0.003
    output: 0.015
openai:
  gpt-4o-mini:
    input: 0.00015
    output: 0.0006
`

func loadTable(t *testing.T) *pricing.Table {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	if err := os.WriteFile(path, []byte(pricingYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	table, err := pricing.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return table
}

func TestLoadPricing(t *testing.T) {
	table := loadTable(t)
	cost := table.Cost("anthropic", "claude-sonnet", 1000, 500)
	want := 0.0105
	if abs(cost-want) > 0.0001 {
		t.Errorf("got %f, want %f", cost, want)
	}
}

func TestCostUnknownModel(t *testing.T) {
	table := &pricing.Table{}
	cost := table.Cost("unknown", "unknown", 1000, 500)
	if cost != 0 {
		t.Errorf("expected 0 for unknown model, got %f", cost)
	}
}

func TestModelCost(t *testing.T) {
	table := loadTable(t)
	got := table.ModelCost("gpt-4o-mini", 2000, 1000)
	want := 0.0009
	if abs(got-want) > 1e-9 {
		t.Errorf("got %f, want %f", got, want)
	}
	if c := table.ModelCost("", 10, 10); c != 0 {
		t.Errorf("empty model: got %f, want 0", c)
	}
}

func TestNilTable(t *testing.T) {
	var table *pricing.Table
	if c := table.ModelCost("gpt-4o-mini", 1000, 1000); c != 0 {
		t.Errorf("nil table: got %f, want 0", c)
	}
	if c := table.ResultCost(&eval.EvalResult{}); c != 0 {
		t.Errorf("nil table result: got %f, want 0", c)
	}
}

func TestResultCost(t *testing.T) {
	table := loadTable(t)
	res := &eval.EvalResult{Cases: []eval.CaseResult{
		{Traces: []eval.Trace{
			{Model: "gpt-4o-mini", Usage: &eval.TokenUsage{InputTokens: 1000, OutputTokens: 1000}},
			{Model: "gpt-4o-mini"},
		}},
		{Traces: []eval.Trace{
			{Model: "claude-sonnet", Usage: &eval.TokenUsage{InputTokens: 1000}},
			{Model: "unpriced", Usage: &eval.TokenUsage{InputTokens: 5000}},
		}},
	}}
	got := table.ResultCost(res)
	want := 0.00015 + 0.0006 + 0.003
	if abs(got-want) > 1e-9 {
		t.Errorf("got %f, want %f", got, want)
	}
}
