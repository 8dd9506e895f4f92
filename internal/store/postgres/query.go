package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/signalnine/gauntlet/eval"
)

// EvalRow is one stored eval as listed by ListEvals.
type EvalRow struct {
	ID        int64     `db:"id" json:"id"`
	RunID     int64     `db:"run_id" json:"run_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	Summary   []byte    `db:"summary" json:"-"`
}

func (r EvalRow) DecodeSummary() (eval.EvalSummary, error) {
	var s eval.EvalSummary
	err := json.Unmarshal(r.Summary, &s)
	return s, err
}

type resultRow struct {
	ID       int64          `db:"id"`
	Index    int            `db:"case_index"`
	CaseID   sql.NullString `db:"case_id"`
	Input    []byte         `db:"input"`
	Output   []byte         `db:"output"`
	Expected []byte         `db:"expected"`
	Error    sql.NullString `db:"error"`
}

type scoreRow struct {
	ResultID int64   `db:"result_id"`
	Name     string  `db:"name"`
	Value    float64 `db:"value"`
	Passed   bool    `db:"passed"`
	Details  []byte  `db:"details"`
}

// ListEvals returns the most recent evals, newest first.
func (s *Store) ListEvals(ctx context.Context, limit int) ([]EvalRow, error) {
	var rows []EvalRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT e.id, e.run_id, e.name, r.created_at, e.summary
		FROM evals e JOIN runs r ON r.id = e.run_id
		ORDER BY e.id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing evals: %w", err)
	}
	return rows, nil
}

// LoadEval rebuilds the stored result of one eval, without traces.
func (s *Store) LoadEval(ctx context.Context, evalID int64) (*eval.EvalResult, error) {
	var summary []byte
	err := s.db.GetContext(ctx, &summary, `SELECT summary FROM evals WHERE id = $1`, evalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEvalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading eval: %w", err)
	}

	res := &eval.EvalResult{}
	if err := json.Unmarshal(summary, &res.Summary); err != nil {
		return nil, fmt.Errorf("parsing summary: %w", err)
	}

	var results []resultRow
	if err := s.db.SelectContext(ctx, &results, `
		SELECT id, case_index, case_id, input, output, expected, error
		FROM results WHERE eval_id = $1 ORDER BY case_index`, evalID); err != nil {
		return nil, fmt.Errorf("loading results: %w", err)
	}
	var scores []scoreRow
	if err := s.db.SelectContext(ctx, &scores, `
		SELECT s.result_id, s.name, s.value, s.passed, s.details
		FROM scores s JOIN results r ON r.id = s.result_id
		WHERE r.eval_id = $1 ORDER BY s.id`, evalID); err != nil {
		return nil, fmt.Errorf("loading scores: %w", err)
	}

	byResult := make(map[int64][]eval.Score, len(results))
	for _, sr := range scores {
		sc := eval.Score{Name: sr.Name, Value: sr.Value, Passed: sr.Passed}
		if len(sr.Details) > 0 {
			if err := json.Unmarshal(sr.Details, &sc.Details); err != nil {
				return nil, fmt.Errorf("parsing score details: %w", err)
			}
		}
		byResult[sr.ResultID] = append(byResult[sr.ResultID], sc)
	}

	for _, rr := range results {
		cr := eval.CaseResult{
			Case:   eval.TestCase{ID: rr.CaseID.String},
			Index:  rr.Index,
			Error:  rr.Error.String,
			Scores: byResult[rr.ID],
		}
		if cr.Scores == nil {
			cr.Scores = []eval.Score{}
		}
		for _, f := range []struct {
			raw []byte
			dst *any
		}{{rr.Input, &cr.Case.Input}, {rr.Expected, &cr.Case.Expected}, {rr.Output, &cr.Output}} {
			if err := json.Unmarshal(f.raw, f.dst); err != nil {
				return nil, fmt.Errorf("parsing result %d: %w", rr.ID, err)
			}
		}
		res.Cases = append(res.Cases, cr)
	}
	return res, nil
}
