package eval

import (
	"context"

	"go.uber.org/zap"

	"github.com/signalnine/gauntlet/internal/runner"
)

// Rescore applies scorers to the outputs recorded in prev without running
// the task again. Cases that failed keep their error and stay unscored.
// Only the concurrency, logger and observer options have an effect.
func Rescore(ctx context.Context, prev *EvalResult, scorers []Scorer, opts ...Option) *EvalResult {
	e := configure(opts)
	e.scorers = scorers

	cases := make([]CaseResult, len(prev.Cases))
	jobs := make([]runner.Job, len(prev.Cases))
	for i, cr := range prev.Cases {
		jobs[i] = func(ctx context.Context) error {
			next := cr
			next.Scores = []Score{}
			if next.Traces == nil {
				next.Traces = []Trace{}
			}
			if cr.Error == "" {
				next.Scores = e.scoreOutput(ctx, cr.Case.Expected, cr.Output)
			}
			cases[i] = next
			return nil
		}
	}
	runner.RunPool(ctx, e.concurrency, jobs)

	res := newResult(cases)
	e.logger.Info("rescore finished",
		zap.Int("total", res.Summary.Total),
		zap.Int("passed", res.Summary.Passed),
		zap.Float64("avg_score", res.Summary.AvgScore),
	)
	return res
}
