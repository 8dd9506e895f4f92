package scorer

import (
	"context"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/signalnine/gauntlet/eval"
)

// Levenshtein scores 1 - distance/maxLen between the expected and output
// text, measured in runes. It passes at or above threshold.
func Levenshtein(threshold float64) eval.Scorer {
	return &levenshteinScorer{threshold: threshold}
}

type levenshteinScorer struct {
	threshold float64
}

func (s *levenshteinScorer) Name() string { return "levenshtein" }

func (s *levenshteinScorer) Score(_ context.Context, expected, output any) (eval.Score, error) {
	e, err := stringify(expected, "")
	if err != nil {
		return eval.Score{}, err
	}
	o, err := stringify(output, "")
	if err != nil {
		return eval.Score{}, err
	}

	dist := levenshtein.ComputeDistance(e, o)
	maxLen := max(utf8.RuneCountInString(e), utf8.RuneCountInString(o), 1)
	sim := 1 - float64(dist)/float64(maxLen)
	return eval.Score{
		Name:   s.Name(),
		Value:  sim,
		Passed: sim >= s.threshold,
		Details: map[string]any{
			"distance":  dist,
			"threshold": s.threshold,
		},
	}, nil
}
