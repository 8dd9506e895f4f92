package scorer

import (
	"context"
	"fmt"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/signalnine/gauntlet/eval"
)

const regexMatchTimeout = time.Second

// Regex passes when the output text matches pattern. The pattern uses .NET
// syntax (lookarounds and backreferences are allowed). A pattern that does
// not compile makes every Score call fail, which the engine records as a
// failed score rather than aborting the run.
func Regex(pattern string) eval.Scorer {
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err == nil {
		re.MatchTimeout = regexMatchTimeout
	}
	return &regexScorer{pattern: pattern, re: re, compileErr: err}
}

type regexScorer struct {
	pattern    string
	re         *regexp2.Regexp
	compileErr error
}

func (s *regexScorer) Name() string { return "regex" }

func (s *regexScorer) Score(_ context.Context, _, output any) (eval.Score, error) {
	if s.compileErr != nil {
		return eval.Score{}, fmt.Errorf("compiling pattern %q: %w", s.pattern, s.compileErr)
	}
	text, err := stringify(output, "null")
	if err != nil {
		return eval.Score{}, err
	}

	m, err := s.re.FindStringMatch(text)
	if err != nil {
		return eval.Score{}, fmt.Errorf("matching pattern %q: %w", s.pattern, err)
	}
	details := map[string]any{
		"pattern": s.pattern,
		"matches": m != nil,
	}
	if m != nil {
		var captures []string
		for _, g := range m.Groups() {
			captures = append(captures, g.String())
		}
		details["captures"] = captures
	}
	return eval.Verdict(s.Name(), m != nil, details), nil
}
