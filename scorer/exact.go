package scorer

import (
	"context"
	"strings"

	"github.com/signalnine/gauntlet/eval"
)

type ExactMatchOptions struct {
	// CaseInsensitive and TrimWhitespace only apply when both values are
	// strings.
	CaseInsensitive bool
	TrimWhitespace  bool
}

// ExactMatch passes when output equals expected. Structured values are
// compared after a JSON round trip.
func ExactMatch(opts ExactMatchOptions) eval.Scorer {
	return &exactMatch{opts: opts}
}

type exactMatch struct {
	opts ExactMatchOptions
}

func (s *exactMatch) Name() string { return "exact_match" }

func (s *exactMatch) Score(_ context.Context, expected, output any) (eval.Score, error) {
	es, eok := expected.(string)
	out, ook := output.(string)
	if eok && ook {
		if s.opts.TrimWhitespace {
			es, out = strings.TrimSpace(es), strings.TrimSpace(out)
		}
		if s.opts.CaseInsensitive {
			return eval.Verdict(s.Name(), strings.EqualFold(es, out), nil), nil
		}
		return eval.Verdict(s.Name(), es == out, nil), nil
	}

	ok, err := equalValues(expected, output)
	if err != nil {
		return eval.Score{}, err
	}
	return eval.Verdict(s.Name(), ok, nil), nil
}

// Contains passes when the output text contains substring. Non-string
// outputs are searched in their JSON encoding.
func Contains(substring string, caseSensitive bool) eval.Scorer {
	return &contains{substring: substring, caseSensitive: caseSensitive}
}

type contains struct {
	substring     string
	caseSensitive bool
}

func (s *contains) Name() string { return "contains" }

func (s *contains) Score(_ context.Context, _, output any) (eval.Score, error) {
	text, err := stringify(output, "null")
	if err != nil {
		return eval.Score{}, err
	}
	var found bool
	if s.caseSensitive {
		found = strings.Contains(text, s.substring)
	} else {
		found = strings.Contains(strings.ToLower(text), strings.ToLower(s.substring))
	}
	return eval.Verdict(s.Name(), found, map[string]any{
		"substring":      s.substring,
		"case_sensitive": s.caseSensitive,
		"found":          found,
	}), nil
}
