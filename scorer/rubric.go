package scorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/signalnine/gauntlet/eval"
)

// Criterion is one weighted item of a grading rubric.
type Criterion struct {
	Name   string  `yaml:"name" json:"name"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// Judge answers a grading prompt with free text that should contain a JSON
// object mapping criterion names to scores.
type Judge interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type RubricOptions struct {
	Criteria  []Criterion
	Threshold float64
	// Samples is how many times the judge is asked. Per-criterion scores
	// are the median across successful samples. Defaults to 3.
	Samples int
	// MaxOutputChars truncates long outputs before prompting.
	MaxOutputChars int
}

// Rubric asks an LLM judge to grade the output against weighted criteria.
// The score is the weighted average of the median per-criterion grades.
func Rubric(judge Judge, opts RubricOptions) eval.Scorer {
	if opts.Samples < 1 {
		opts.Samples = 3
	}
	if opts.MaxOutputChars <= 0 {
		opts.MaxOutputChars = 100_000
	}
	return &rubricScorer{judge: judge, opts: opts}
}

type rubricScorer struct {
	judge Judge
	opts  RubricOptions
}

func (s *rubricScorer) Name() string { return "rubric" }

func (s *rubricScorer) Score(ctx context.Context, expected, output any) (eval.Score, error) {
	if s.judge == nil {
		return eval.Score{}, errors.New("rubric judge is required")
	}
	if len(s.opts.Criteria) == 0 {
		return eval.Score{}, errors.New("rubric has no criteria")
	}
	prompt, err := s.prompt(expected, output)
	if err != nil {
		return eval.Score{}, err
	}

	samples := make(map[string][]float64)
	var errs []error
	for i := 0; i < s.opts.Samples; i++ {
		content, err := s.judge.Complete(ctx, prompt)
		if err == nil {
			var grades map[string]float64
			grades, err = ParseJudgeResponse(content)
			for k, v := range grades {
				samples[k] = append(samples[k], v)
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("attempt %d: %w", i+1, err))
		}
	}
	if len(errs) == s.opts.Samples {
		return eval.Score{}, fmt.Errorf("rubric judge failed: %w", errors.Join(errs...))
	}

	grades := make(map[string]float64, len(samples))
	for k, v := range samples {
		grades[k] = MedianScore(v)
	}
	value := ComputeRubricScore(s.opts.Criteria, grades)
	return eval.Score{
		Name:   s.Name(),
		Value:  value,
		Passed: value >= s.opts.Threshold,
		Details: map[string]any{
			"criteria":        grades,
			"failed_attempts": len(errs),
		},
	}, nil
}

func (s *rubricScorer) prompt(expected, output any) (string, error) {
	out, err := stringify(output, "")
	if err != nil {
		return "", err
	}
	if len(out) > s.opts.MaxOutputChars {
		out = out[:s.opts.MaxOutputChars] + fmt.Sprintf("\n\n... [output truncated from %d to %d chars] ...", len(out), s.opts.MaxOutputChars)
	}
	want, err := stringify(expected, "(none)")
	if err != nil {
		return "", err
	}

	var criteria strings.Builder
	for _, c := range s.opts.Criteria {
		fmt.Fprintf(&criteria, "- %s (weight: %.0f)\n", c.Name, c.Weight)
	}
	return fmt.Sprintf(`You are a strict grader. Score the output against each criterion on a scale of 0.0 to 1.0.

Reference answer:
%s

Criteria:
%s
Output:
%s

Respond with ONLY a JSON object mapping criterion name to score, e.g.:
{"Correct": 0.9, "Concise": 0.8}`, want, criteria.String(), out), nil
}

// ComputeRubricScore calculates a weighted average from per-criterion
// scores. Criteria without a grade are left out of the denominator.
func ComputeRubricScore(criteria []Criterion, scores map[string]float64) float64 {
	var totalWeight, weightedSum float64
	for _, c := range criteria {
		score, ok := scores[c.Name]
		if !ok {
			continue
		}
		weightedSum += score * c.Weight
		totalWeight += c.Weight
	}
	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight
}

// ParseJudgeResponse extracts the first JSON object from a judge reply,
// tolerating markdown fences and surrounding prose.
func ParseJudgeResponse(content string) (map[string]float64, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("parsing judge response: no json object found")
	}
	var scores map[string]float64
	if err := json.Unmarshal([]byte(content[start:end+1]), &scores); err != nil {
		return nil, fmt.Errorf("parsing judge response: %w", err)
	}
	return scores, nil
}

// MedianScore returns the median of scores, 0 when empty.
func MedianScore(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// OpenAIJudge grades through an OpenAI-compatible chat completions API at
// temperature 0. Point the client's base URL at a gateway or at Gemini's
// OpenAI-compatible endpoint to use other providers.
type OpenAIJudge struct {
	client *openai.Client
	model  string
}

func NewOpenAIJudge(client *openai.Client, model string) *OpenAIJudge {
	return &OpenAIJudge{client: client, model: model}
}

func (j *OpenAIJudge) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := j.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       j.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("judge completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
