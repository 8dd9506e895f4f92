package result

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/signalnine/gauntlet/eval"
)

// RunMeta is the small record stored next to a full result. Listing runs
// only reads these.
type RunMeta struct {
	ID           string           `json:"id"`
	Label        string           `json:"label"`
	CreatedAt    time.Time        `json:"created_at"`
	Summary      eval.EvalSummary `json:"summary"`
	Traces       int              `json:"traces"`
	TotalTokens  int              `json:"total_tokens"`
	TotalCostUSD float64          `json:"total_cost_usd"`
	Errors       int              `json:"errors"`

	// Dir is where the run was read from. Not stored.
	Dir string `json:"-"`
}

func NewRunID() string {
	return ulid.Make().String()
}

// NewRunMeta fills a RunMeta from res. cost is the priced token spend, 0 when
// no pricing table is configured.
func NewRunMeta(id, label string, res *eval.EvalResult, cost float64) *RunMeta {
	meta := &RunMeta{
		ID:           id,
		Label:        label,
		CreatedAt:    time.Now().UTC(),
		Summary:      res.Summary,
		TotalCostUSD: cost,
	}
	for _, cr := range res.Cases {
		if cr.Error != "" {
			meta.Errors++
		}
		meta.Traces += len(cr.Traces)
		for _, tr := range cr.Traces {
			if tr.Usage != nil {
				meta.TotalTokens += tr.Usage.TotalTokens
			}
		}
	}
	return meta
}
