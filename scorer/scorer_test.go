package scorer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/gauntlet/eval"
	"github.com/signalnine/gauntlet/scorer"
)

func score(t *testing.T, s eval.Scorer, expected, output any) eval.Score {
	t.Helper()
	got, err := s.Score(context.Background(), expected, output)
	require.NoError(t, err)
	return got
}

func TestExactMatch(t *testing.T) {
	s := scorer.ExactMatch(scorer.ExactMatchOptions{})
	assert.Equal(t, "exact_match", s.Name())

	tests := []struct {
		name     string
		expected any
		output   any
		want     bool
	}{
		{"equal strings", "Paris", "Paris", true},
		{"different strings", "Paris", "paris", false},
		{"int vs float", 4.0, 4, true},
		{"maps", map[string]any{"a": 1.0, "b": []any{"x"}}, map[string]int{"a": 1, "b": 0}, false},
		{"equal structs and maps", map[string]any{"city": "Paris"}, struct {
			City string `json:"city"`
		}{"Paris"}, true},
		{"nil", nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := score(t, s, tt.expected, tt.output)
			assert.Equal(t, tt.want, got.Passed)
			if tt.want {
				assert.Equal(t, 1.0, got.Value)
			} else {
				assert.Zero(t, got.Value)
			}
		})
	}
}

func TestExactMatchOptions(t *testing.T) {
	s := scorer.ExactMatch(scorer.ExactMatchOptions{CaseInsensitive: true, TrimWhitespace: true})
	assert.True(t, score(t, s, "Paris", "  paris\n").Passed)
}

func TestContains(t *testing.T) {
	out := "The capital of France is Paris"
	assert.True(t, score(t, scorer.Contains("Paris", true), nil, out).Passed)
	assert.False(t, score(t, scorer.Contains("London", true), nil, out).Passed)
	assert.False(t, score(t, scorer.Contains("PARIS", true), nil, out).Passed)
	assert.True(t, score(t, scorer.Contains("PARIS", false), nil, "the capital is paris").Passed)

	got := score(t, scorer.Contains(`"city":"Paris"`, true), nil, map[string]any{"city": "Paris"})
	assert.True(t, got.Passed)
	assert.Equal(t, true, got.Details.(map[string]any)["found"])
}

func TestLevenshtein(t *testing.T) {
	s := scorer.Levenshtein(0.8)
	assert.Equal(t, "levenshtein", s.Name())

	same := score(t, s, "kitten", "kitten")
	assert.Equal(t, 1.0, same.Value)
	assert.True(t, same.Passed)

	// kitten -> sitting is 3 edits over 7 runes.
	got := score(t, s, "kitten", "sitting")
	assert.InDelta(t, 1-3.0/7.0, got.Value, 1e-9)
	assert.False(t, got.Passed)

	empty := score(t, s, nil, "")
	assert.Equal(t, 1.0, empty.Value)

	// Runes, not bytes.
	assert.InDelta(t, 0.75, score(t, s, "café", "cafe").Value, 1e-9)
}

func TestRegex(t *testing.T) {
	s := scorer.Regex(`capital.*Paris`)
	assert.Equal(t, "regex", s.Name())
	assert.True(t, score(t, s, nil, "The capital of France is Paris").Passed)
	assert.False(t, score(t, scorer.Regex(`capital.*London`), nil, "The capital of France is Paris").Passed)

	email := scorer.Regex(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	assert.True(t, score(t, email, nil, "user@example.com").Passed)

	date := score(t, scorer.Regex(`(\d{4})-(\d{2})-(\d{2})`), nil, "Date: 2024-11-12")
	require.True(t, date.Passed)
	assert.Equal(t, []string{"2024-11-12", "2024", "11", "12"}, date.Details.(map[string]any)["captures"])

	lookahead := scorer.Regex(`Paris(?= is)`)
	assert.True(t, score(t, lookahead, nil, "Paris is lovely").Passed)
}

func TestRegexInvalidPatternFailsScoring(t *testing.T) {
	_, err := scorer.Regex(`(unclosed`).Score(context.Background(), nil, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compiling pattern")
}

func TestRegexThroughEngine(t *testing.T) {
	e, err := eval.New(eval.Cases{{Input: "x"}},
		eval.TaskFunc(func(_ context.Context, in any) (any, error) { return in, nil }),
		eval.WithScorers(scorer.Regex(`(unclosed`)))
	require.NoError(t, err)
	res, err := e.Run(context.Background())
	require.NoError(t, err)

	cr := res.Cases[0]
	assert.Empty(t, cr.Error)
	require.Len(t, cr.Scores, 1)
	assert.Equal(t, "regex", cr.Scores[0].Name)
	assert.False(t, cr.Scores[0].Passed)
	assert.Contains(t, cr.Scores[0].Details.(map[string]any)["error"], "compiling pattern")
}

func TestJSON(t *testing.T) {
	s := scorer.JSON()
	assert.Equal(t, "json", s.Name())
	assert.True(t, score(t, s, nil, map[string]any{"name": "John", "age": 30}).Passed)
	assert.True(t, score(t, s, nil, `{"name": "John"}`).Passed)
	assert.False(t, score(t, s, nil, `{"name": `).Passed)
	assert.False(t, score(t, s, nil, `{} trailing`).Passed)
}

func TestJSONStrict(t *testing.T) {
	s := scorer.JSONStrict()
	expected := map[string]any{"name": "John", "age": 30.0}

	assert.True(t, score(t, s, expected, map[string]any{"name": "Jane", "age": 25}).Passed)
	assert.False(t, score(t, s, expected, map[string]any{"name": "Jane"}).Passed)
	assert.False(t, score(t, s, expected, map[string]any{"name": "Jane", "age": "25"}).Passed)
	assert.True(t, score(t, s, []any{1.0, "a"}, `[2, "b"]`).Passed)
	assert.False(t, score(t, s, []any{1.0}, `[2, 3]`).Passed)
}

const personSchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"age": {"type": "number"}
	},
	"required": ["name", "age"]
}`

func TestJSONSchema(t *testing.T) {
	s, err := scorer.JSONSchema(personSchema)
	require.NoError(t, err)

	assert.True(t, score(t, s, nil, map[string]any{"name": "John", "age": 30}).Passed)

	bad := score(t, s, nil, map[string]any{"name": "John"})
	assert.False(t, bad.Passed)
	assert.Zero(t, bad.Value)
	errs := bad.Details.(map[string]any)["errors"].([]string)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "age")
}

func TestJSONSchemaInvalid(t *testing.T) {
	_, err := scorer.JSONSchema(`{"type": 12}`)
	assert.Error(t, err)
}

func TestSQL(t *testing.T) {
	s, err := scorer.SQL("")
	require.NoError(t, err)
	assert.Equal(t, "sql", s.Name())

	sel := score(t, s, nil, "SELECT * FROM users WHERE age > 18")
	require.True(t, sel.Passed)
	assert.Equal(t, []string{"SELECT"}, sel.Details.(map[string]any)["statement_types"])

	assert.True(t, score(t, s, nil, "INSERT INTO users (name, age) VALUES ('John', 30)").Passed)
	assert.True(t, score(t, s, nil, "SELECT * FROM users LIMIT 10 OFFSET 20").Passed)
	assert.True(t, score(t, s, nil, map[string]any{"sql": "SELECT id, name FROM products"}).Passed)

	multi := score(t, s, nil, "UPDATE t SET a = 1; DELETE FROM t WHERE a = 2;")
	require.True(t, multi.Passed)
	assert.Equal(t, 2, multi.Details.(map[string]any)["statement_count"])
	assert.Equal(t, []string{"UPDATE", "DELETE"}, multi.Details.(map[string]any)["statement_types"])

	bad := score(t, s, nil, "SELECT * FROM WHERE")
	assert.False(t, bad.Passed)
	assert.Zero(t, bad.Value)

	assert.False(t, score(t, s, nil, "").Passed)
}

func TestSQLMalformedDDL(t *testing.T) {
	s, err := scorer.SQL(scorer.DialectMySQL)
	require.NoError(t, err)

	ddl := score(t, s, nil, "CREATE TABLE t (id INT PRIMARY KEY, name VARCHAR(32))")
	require.True(t, ddl.Passed)
	assert.Equal(t, []string{"CREATE TABLE"}, ddl.Details.(map[string]any)["statement_types"])

	bad := score(t, s, nil, "CREATE TABLE t ((( not sql at all")
	assert.False(t, bad.Passed)
	assert.Equal(t, false, bad.Details.(map[string]any)["valid"])
}

func TestSQLDialect(t *testing.T) {
	_, err := scorer.SQL("MySQL")
	assert.NoError(t, err)
	for _, d := range []string{"postgresql", "sqlite", "generic"} {
		_, err := scorer.SQL(d)
		assert.ErrorContains(t, err, "not supported", d)
	}
}
