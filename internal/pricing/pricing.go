package pricing

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/gauntlet/eval"
)

type ModelPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Table holds per-1K-token prices keyed by provider then model.
type Table struct {
	Providers map[string]map[string]ModelPricing
}

func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pricing file: %w", err)
	}
	var providers map[string]map[string]ModelPricing
	if err := yaml.Unmarshal(data, &providers); err != nil {
		return nil, fmt.Errorf("parsing pricing file: %w", err)
	}
	return &Table{Providers: providers}, nil
}

// Cost calculates total cost for a request. Prices are per 1K tokens.
func (t *Table) Cost(provider, model string, inputTokens, outputTokens int) float64 {
	if t == nil || t.Providers == nil {
		return 0
	}
	models, ok := t.Providers[provider]
	if !ok {
		return 0
	}
	p, ok := models[model]
	if !ok {
		return 0
	}
	return price(p, inputTokens, outputTokens)
}

// ModelCost prices a request when only the model name is known. Providers
// are searched in name order so the result is stable when a model appears
// under more than one.
func (t *Table) ModelCost(model string, inputTokens, outputTokens int) float64 {
	if t == nil || model == "" {
		return 0
	}
	for _, name := range slices.Sorted(maps.Keys(t.Providers)) {
		if p, ok := t.Providers[name][model]; ok {
			return price(p, inputTokens, outputTokens)
		}
	}
	return 0
}

// TraceCost sums the cost of every trace that reports token usage.
func (t *Table) TraceCost(traces []eval.Trace) float64 {
	var total float64
	for _, tr := range traces {
		if tr.Usage == nil {
			continue
		}
		total += t.ModelCost(tr.Model, tr.Usage.InputTokens, tr.Usage.OutputTokens)
	}
	return total
}

// ResultCost sums TraceCost over every case of res.
func (t *Table) ResultCost(res *eval.EvalResult) float64 {
	if t == nil || res == nil {
		return 0
	}
	var total float64
	for _, cr := range res.Cases {
		total += t.TraceCost(cr.Traces)
	}
	return total
}

func price(p ModelPricing, inputTokens, outputTokens int) float64 {
	return (float64(inputTokens)/1000.0)*p.Input + (float64(outputTokens)/1000.0)*p.Output
}
