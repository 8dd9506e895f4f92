// Package postgres stores evaluation results in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/signalnine/gauntlet/eval"
)

var ErrEvalNotFound = errors.New("eval not found")

// Store implements eval.Sink. Every Save creates a run row and one eval
// under it.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open connects to url, checks the connection and applies the schema.
func Open(ctx context.Context, url string, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	s := New(db, logger)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func New(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Save(ctx context.Context, label string, res *eval.EvalResult) error {
	runID, err := s.CreateRun(ctx, map[string]any{"label": label})
	if err != nil {
		return err
	}
	_, err = s.SaveEval(ctx, runID, label, res)
	return err
}

// CreateRun inserts a run row with optional metadata and returns its id.
func (s *Store) CreateRun(ctx context.Context, metadata any) (int64, error) {
	meta, err := nullableJSON(metadata)
	if err != nil {
		return 0, fmt.Errorf("marshaling run metadata: %w", err)
	}
	var id int64
	if err := s.db.QueryRowxContext(ctx,
		`INSERT INTO runs (metadata) VALUES ($1) RETURNING id`, meta,
	).Scan(&id); err != nil {
		s.logger.Error("failed to create run", zap.Error(err))
		return 0, fmt.Errorf("creating run: %w", err)
	}
	return id, nil
}

// SaveEval writes res with all its results, scores and traces in one
// transaction and returns the eval id.
func (s *Store) SaveEval(ctx context.Context, runID int64, name string, res *eval.EvalResult) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	summary, err := json.Marshal(res.Summary)
	if err != nil {
		return 0, fmt.Errorf("marshaling summary: %w", err)
	}
	var evalID int64
	if err := tx.QueryRowxContext(ctx,
		`INSERT INTO evals (run_id, name, summary) VALUES ($1, $2, $3) RETURNING id`,
		runID, name, summary,
	).Scan(&evalID); err != nil {
		return 0, fmt.Errorf("inserting eval: %w", err)
	}

	for _, cr := range res.Cases {
		if err := insertCase(ctx, tx, evalID, cr); err != nil {
			s.logger.Error("failed to save case", zap.String("case", cr.Key()), zap.Error(err))
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing eval: %w", err)
	}
	return evalID, nil
}

func insertCase(ctx context.Context, tx *sqlx.Tx, evalID int64, cr eval.CaseResult) error {
	input, err := json.Marshal(cr.Case.Input)
	if err != nil {
		return fmt.Errorf("marshaling input: %w", err)
	}
	output, err := json.Marshal(cr.Output)
	if err != nil {
		return fmt.Errorf("marshaling output: %w", err)
	}
	expected, err := json.Marshal(cr.Case.Expected)
	if err != nil {
		return fmt.Errorf("marshaling expected: %w", err)
	}

	var resultID int64
	if err := tx.QueryRowxContext(ctx,
		`INSERT INTO results (eval_id, case_index, case_id, input, output, expected, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		evalID, cr.Index, nullString(cr.Case.ID), input, output, expected, nullString(cr.Error),
	).Scan(&resultID); err != nil {
		return fmt.Errorf("inserting result: %w", err)
	}

	for _, sc := range cr.Scores {
		details, err := nullableJSON(sc.Details)
		if err != nil {
			return fmt.Errorf("marshaling score details: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO scores (result_id, name, value, passed, details) VALUES ($1, $2, $3, $4, $5)`,
			resultID, sc.Name, sc.Value, sc.Passed, details,
		); err != nil {
			return fmt.Errorf("inserting score: %w", err)
		}
	}

	for _, tr := range cr.Traces {
		in, err := nullableJSON(tr.Input)
		if err != nil {
			return fmt.Errorf("marshaling trace input: %w", err)
		}
		out, err := nullableJSON(tr.Output)
		if err != nil {
			return fmt.Errorf("marshaling trace output: %w", err)
		}
		var tokensIn, tokensOut sql.NullInt64
		if tr.Usage != nil {
			tokensIn = sql.NullInt64{Int64: int64(tr.Usage.InputTokens), Valid: true}
			tokensOut = sql.NullInt64{Int64: int64(tr.Usage.OutputTokens), Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO traces (result_id, trace_id, model, duration_ms, input, output, tokens_in, tokens_out, error)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			resultID, nullString(tr.ID), nullString(tr.Model), tr.DurationMS, in, out, tokensIn, tokensOut, nullString(tr.Error),
		); err != nil {
			return fmt.Errorf("inserting trace: %w", err)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullableJSON marshals v, mapping nil to SQL NULL.
func nullableJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}
