package eval

import (
	"strconv"
	"time"
)

// TestCase is one labeled example. ID is optional; cases without one are
// identified by their position in the loaded list.
type TestCase struct {
	ID       string `json:"id,omitempty" yaml:"id,omitempty"`
	Input    any    `json:"input" yaml:"input"`
	Expected any    `json:"expected" yaml:"expected"`
}

type Score struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Passed  bool    `json:"passed"`
	Details any     `json:"details,omitempty"`
}

type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Trace records one sub-operation performed by a task, typically a model call.
type Trace struct {
	ID         string      `json:"id,omitempty"`
	Start      time.Time   `json:"start"`
	End        time.Time   `json:"end"`
	DurationMS int64       `json:"duration_ms,omitempty"`
	Model      string      `json:"model,omitempty"`
	Input      any         `json:"input"`
	Output     any         `json:"output"`
	Usage      *TokenUsage `json:"usage,omitempty"`
	Metadata   any         `json:"metadata,omitempty"`
	Error      string      `json:"error,omitempty"`
}

func (t Trace) Duration() time.Duration {
	return t.End.Sub(t.Start)
}

// CaseResult is the outcome of one case. Error and Scores are exclusive: a
// case whose task failed is never scored.
type CaseResult struct {
	Case   TestCase `json:"case"`
	Index  int      `json:"index"`
	Output any      `json:"output"`
	Error  string   `json:"error,omitempty"`
	Scores []Score  `json:"scores"`
	Traces []Trace  `json:"traces"`
}

// Key identifies the case: its ID when set, otherwise "#<index>".
func (cr CaseResult) Key() string {
	if cr.Case.ID != "" {
		return cr.Case.ID
	}
	return "#" + strconv.Itoa(cr.Index)
}

// Passed reports whether the case produced at least one score and every
// score passed.
func (cr CaseResult) Passed() bool {
	if len(cr.Scores) == 0 {
		return false
	}
	for _, s := range cr.Scores {
		if !s.Passed {
			return false
		}
	}
	return true
}

// MeanScore is the mean of this case's score values, 0 when unscored.
func (cr CaseResult) MeanScore() float64 {
	if len(cr.Scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range cr.Scores {
		sum += s.Value
	}
	return sum / float64(len(cr.Scores))
}

type EvalSummary struct {
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	PassRate float64 `json:"pass_rate"`
	AvgScore float64 `json:"avg_score"`
}

type EvalResult struct {
	Cases   []CaseResult `json:"cases"`
	Summary EvalSummary  `json:"summary"`
}

// Summarize folds case results into an EvalSummary. AvgScore is the mean of
// every individual score across all cases, so cases without scores do not
// contribute to the denominator.
func Summarize(cases []CaseResult) EvalSummary {
	var (
		passed     int
		scoreSum   float64
		scoreCount int
	)
	for _, cr := range cases {
		if cr.Passed() {
			passed++
		}
		for _, s := range cr.Scores {
			scoreSum += s.Value
			scoreCount++
		}
	}

	sum := EvalSummary{Total: len(cases), Passed: passed}
	if sum.Total > 0 {
		sum.PassRate = float64(passed) / float64(sum.Total)
	}
	if scoreCount > 0 {
		sum.AvgScore = scoreSum / float64(scoreCount)
	}
	return sum
}

func newResult(cases []CaseResult) *EvalResult {
	return &EvalResult{Cases: cases, Summary: Summarize(cases)}
}
