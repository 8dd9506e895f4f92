package eval

import (
	"context"
	"errors"
)

var (
	// ErrNoExpectedValue is returned by scorers that need an expected value
	// when the case has none.
	ErrNoExpectedValue = errors.New("expected value is required for this scorer")
)

// Scorer compares a task's output with the case's expected value. Name must
// be stable; the engine stamps it on every Score the scorer produces.
type Scorer interface {
	Name() string
	Score(ctx context.Context, expected, output any) (Score, error)
}

// ScoreFunc is the signature of an inline scorer.
type ScoreFunc func(ctx context.Context, expected, output any) (Score, error)

// NewScorer wraps fn as a Scorer called name.
func NewScorer(name string, fn ScoreFunc) Scorer {
	return &funcScorer{name: name, fn: fn}
}

type funcScorer struct {
	name string
	fn   ScoreFunc
}

func (s *funcScorer) Name() string { return s.name }

func (s *funcScorer) Score(ctx context.Context, expected, output any) (Score, error) {
	return s.fn(ctx, expected, output)
}

// Verdict builds a binary score: 1.0 and passed, or 0.0 and failed.
func Verdict(name string, ok bool, details any) Score {
	s := Score{Name: name, Passed: ok, Details: details}
	if ok {
		s.Value = 1
	}
	return s
}

// failedScore is substituted for a scorer that returned an error.
func failedScore(name string, err error) Score {
	return Score{
		Name:    name,
		Value:   0,
		Passed:  false,
		Details: map[string]any{"error": err.Error()},
	}
}
