package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/signalnine/gauntlet/eval"
)

func TestNullableJSON(t *testing.T) {
	v, err := nullableJSON(nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = nullableJSON(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), v)

	_, err = nullableJSON(make(chan int))
	assert.Error(t, err)
}

func TestNullString(t *testing.T) {
	assert.False(t, nullString("").Valid)
	ns := nullString("x")
	assert.True(t, ns.Valid)
	assert.Equal(t, "x", ns.String)
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("GAUNTLET_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("GAUNTLET_TEST_POSTGRES_URL not set")
	}
	s, err := Open(context.Background(), url, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadEval(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cases := []eval.CaseResult{
		{
			Case:   eval.TestCase{ID: "capital-fr", Input: map[string]any{"q": "France"}, Expected: "Paris"},
			Output: "Paris",
			Scores: []eval.Score{{Name: "exact_match", Value: 1, Passed: true}},
			Traces: []eval.Trace{{Model: "gpt-4o-mini", Usage: &eval.TokenUsage{InputTokens: 5, OutputTokens: 1, TotalTokens: 6}}},
		},
		{
			Case:   eval.TestCase{Input: "x", Expected: "y"},
			Index:  1,
			Error:  "task failed",
			Scores: []eval.Score{},
		},
	}
	res := &eval.EvalResult{Cases: cases, Summary: eval.Summarize(cases)}

	runID, err := s.CreateRun(ctx, map[string]any{"label": "pg-test"})
	require.NoError(t, err)
	evalID, err := s.SaveEval(ctx, runID, "pg-test", res)
	require.NoError(t, err)

	got, err := s.LoadEval(ctx, evalID)
	require.NoError(t, err)
	assert.Equal(t, res.Summary, got.Summary)
	require.Len(t, got.Cases, 2)
	assert.Equal(t, "capital-fr", got.Cases[0].Case.ID)
	assert.Equal(t, "Paris", got.Cases[0].Output)
	assert.Equal(t, "exact_match", got.Cases[0].Scores[0].Name)
	assert.Equal(t, "task failed", got.Cases[1].Error)
	assert.Empty(t, got.Cases[1].Scores)

	rows, err := s.ListEvals(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, evalID, rows[0].ID)
	sum, err := rows[0].DecodeSummary()
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Total)
}

func TestLoadEvalNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LoadEval(context.Background(), -1)
	assert.ErrorIs(t, err, ErrEvalNotFound)
}
