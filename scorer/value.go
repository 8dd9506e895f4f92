package scorer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/go-cmp/cmp"
)

// stringify renders v as scorer text: strings verbatim, nil as null,
// anything else as compact JSON.
func stringify(v any, null string) (string, error) {
	switch x := v.(type) {
	case nil:
		return null, nil
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding value as json: %w", err)
	}
	return string(b), nil
}

// normalize converts v into the generic JSON value space (map[string]any,
// []any, json.Number, string, bool, nil) so that values decoded from a data
// file compare equal to values produced by Go code.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding value as json: %w", err)
	}
	return decodeJSON(b)
}

func decodeJSON(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after top-level value")
	}
	return out, nil
}

// equalValues compares two values after normalization. Numbers compare by
// numeric value, so 1 and 1.0 are equal.
func equalValues(a, b any) (bool, error) {
	na, err := normalize(a)
	if err != nil {
		return false, err
	}
	nb, err := normalize(b)
	if err != nil {
		return false, err
	}
	return deepEqual(na, nb), nil
}

var numberEqual = cmp.Comparer(func(x, y json.Number) bool {
	if x == y {
		return true
	}
	fx, errx := x.Float64()
	fy, erry := y.Float64()
	return errx == nil && erry == nil && fx == fy
})

func deepEqual(a, b any) bool {
	return cmp.Equal(a, b, numberEqual)
}
