package scorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/signalnine/gauntlet/eval"
)

type jsonMode int

const (
	jsonValid jsonMode = iota
	jsonStrict
	jsonSchema
)

// JSON passes when the output is valid JSON. String outputs are parsed as
// JSON text; any other value is valid if it encodes.
func JSON() eval.Scorer {
	return &jsonScorer{mode: jsonValid}
}

// JSONStrict passes when the output has the same structure as expected:
// identical object keys, array lengths and value kinds. Leaf values are not
// compared.
func JSONStrict() eval.Scorer {
	return &jsonScorer{mode: jsonStrict}
}

// JSONSchema validates the output against a JSON schema document. It fails
// immediately when the schema itself does not compile.
func JSONSchema(schema string) (eval.Scorer, error) {
	compiled, err := jsonschema.CompileString("schema.json", schema)
	if err != nil {
		return nil, fmt.Errorf("invalid json schema: %w", err)
	}
	return &jsonScorer{mode: jsonSchema, schema: compiled}, nil
}

type jsonScorer struct {
	mode   jsonMode
	schema *jsonschema.Schema
}

func (s *jsonScorer) Name() string { return "json" }

func (s *jsonScorer) Score(_ context.Context, expected, output any) (eval.Score, error) {
	parsed, err := parseOutput(output)
	if err != nil {
		return eval.Verdict(s.Name(), false, map[string]any{
			"valid": false,
			"error": err.Error(),
		}), nil
	}

	switch s.mode {
	case jsonSchema:
		if err := s.schema.Validate(parsed); err != nil {
			var ve *jsonschema.ValidationError
			if !errors.As(err, &ve) {
				return eval.Score{}, fmt.Errorf("validating output: %w", err)
			}
			return eval.Verdict(s.Name(), false, map[string]any{
				"valid":  false,
				"errors": leafErrors(ve, nil),
			}), nil
		}
		return eval.Verdict(s.Name(), true, map[string]any{
			"valid":   true,
			"message": "output matches json schema",
		}), nil

	case jsonStrict:
		want, err := normalize(expected)
		if err != nil {
			return eval.Score{}, err
		}
		match := sameShape(want, parsed)
		return eval.Verdict(s.Name(), match, map[string]any{
			"strict":           true,
			"structures_match": match,
		}), nil

	default:
		return eval.Verdict(s.Name(), true, map[string]any{
			"valid":   true,
			"message": "valid json",
		}), nil
	}
}

func parseOutput(output any) (any, error) {
	switch x := output.(type) {
	case string:
		return decodeJSON([]byte(x))
	case []byte:
		return decodeJSON(x)
	case json.RawMessage:
		return decodeJSON(x)
	}
	return normalize(output)
}

// leafErrors flattens a validation error tree into "location: message"
// strings for its leaves.
func leafErrors(ve *jsonschema.ValidationError, out []string) []string {
	if len(ve.Causes) == 0 {
		return append(out, ve.InstanceLocation+": "+ve.Message)
	}
	for _, c := range ve.Causes {
		out = leafErrors(c, out)
	}
	return out
}

// sameShape compares key sets, array lengths and value kinds recursively.
func sameShape(want, got any) bool {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok || len(w) != len(g) {
			return false
		}
		for k, wv := range w {
			gv, ok := g[k]
			if !ok || !sameShape(wv, gv) {
				return false
			}
		}
		return true
	case []any:
		g, ok := got.([]any)
		if !ok || len(w) != len(g) {
			return false
		}
		for i := range w {
			if !sameShape(w[i], g[i]) {
				return false
			}
		}
		return true
	case string:
		_, ok := got.(string)
		return ok
	case json.Number:
		_, ok := got.(json.Number)
		return ok
	case bool:
		_, ok := got.(bool)
		return ok
	case nil:
		return got == nil
	}
	return false
}
