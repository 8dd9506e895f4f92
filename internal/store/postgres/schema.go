package postgres

// schema is applied by Migrate. Statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id         BIGSERIAL PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		metadata   JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS evals (
		id      BIGSERIAL PRIMARY KEY,
		run_id  BIGINT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		name    TEXT NOT NULL,
		summary JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS results (
		id         BIGSERIAL PRIMARY KEY,
		eval_id    BIGINT NOT NULL REFERENCES evals(id) ON DELETE CASCADE,
		case_index INTEGER NOT NULL,
		case_id    TEXT,
		input      JSONB NOT NULL,
		output     JSONB NOT NULL,
		expected   JSONB NOT NULL,
		error      TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS scores (
		id        BIGSERIAL PRIMARY KEY,
		result_id BIGINT NOT NULL REFERENCES results(id) ON DELETE CASCADE,
		name      TEXT NOT NULL,
		value     DOUBLE PRECISION NOT NULL,
		passed    BOOLEAN NOT NULL,
		details   JSONB
	)`,
	`CREATE TABLE IF NOT EXISTS traces (
		id          BIGSERIAL PRIMARY KEY,
		result_id   BIGINT NOT NULL REFERENCES results(id) ON DELETE CASCADE,
		trace_id    TEXT,
		model       TEXT,
		duration_ms BIGINT,
		input       JSONB,
		output      JSONB,
		tokens_in   INTEGER,
		tokens_out  INTEGER,
		error       TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS results_eval_id_idx ON results (eval_id)`,
}
