package eval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/signalnine/gauntlet/internal/runner"
)

var (
	ErrNoDataSource = errors.New("data source must be set")
	ErrNoTask       = errors.New("task must be set")
)

const (
	DefaultConcurrency = 8
	DefaultLabel       = "eval"

	tracerName = "github.com/signalnine/gauntlet/eval"
)

// Observer receives per-case notifications while a run is in progress.
// Implementations must be safe for concurrent use.
type Observer interface {
	CaseFinished(cr CaseResult, elapsed time.Duration)
	ScorerFailed(scorer string, err error)
}

type Option func(*Engine)

func WithScorers(scorers ...Scorer) Option {
	return func(e *Engine) { e.scorers = append(e.scorers, scorers...) }
}

// WithConcurrency bounds the number of cases in flight. Values below 1 are
// treated as 1.
func WithConcurrency(n int) Option {
	return func(e *Engine) { e.concurrency = max(n, 1) }
}

// WithSink sets where Run forwards a finished result. label names the run in
// the sink.
func WithSink(s Sink, label string) Option {
	return func(e *Engine) {
		e.sink = s
		if label != "" {
			e.label = label
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		if tp != nil {
			e.tracer = tp.Tracer(tracerName)
		}
	}
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithCaseTimeout puts a deadline on the context given to the task and the
// scorers of each case. Zero means no deadline.
func WithCaseTimeout(d time.Duration) Option {
	return func(e *Engine) { e.caseTimeout = d }
}

// Engine runs a task against every case of a data source and scores the
// outputs.
type Engine struct {
	source      DataSource
	task        Task
	scorers     []Scorer
	concurrency int
	caseTimeout time.Duration
	sink        Sink
	label       string
	logger      *zap.Logger
	tracer      trace.Tracer
	observer    Observer
}

// New validates the required collaborators and applies opts. It returns
// ErrNoDataSource or ErrNoTask before anything runs.
func New(source DataSource, task Task, opts ...Option) (*Engine, error) {
	if source == nil {
		return nil, ErrNoDataSource
	}
	if task == nil {
		return nil, ErrNoTask
	}
	e := configure(opts)
	e.source = source
	e.task = task
	return e, nil
}

func configure(opts []Option) *Engine {
	e := &Engine{
		concurrency: DefaultConcurrency,
		label:       DefaultLabel,
		logger:      zap.NewNop(),
		tracer:      otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Concurrency() int { return e.concurrency }

// Run executes and scores every case, then hands the result to the sink if
// one is configured. It fails only when the cases cannot be loaded.
func (e *Engine) Run(ctx context.Context) (*EvalResult, error) {
	res, err := e.run(ctx, true)
	if err != nil {
		return nil, err
	}
	e.persist(ctx, res)
	return res, nil
}

// RunWithoutScoring executes the task for every case and skips scoring. The
// summary is still computed; with no scores every case counts as not passed.
func (e *Engine) RunWithoutScoring(ctx context.Context) (*EvalResult, error) {
	return e.run(ctx, false)
}

func (e *Engine) run(ctx context.Context, score bool) (*EvalResult, error) {
	ctx, span := e.tracer.Start(ctx, "eval.run", trace.WithAttributes(
		attribute.String("eval.label", e.label),
		attribute.Bool("eval.scoring", score),
		attribute.Int("eval.concurrency", e.concurrency),
	))
	defer span.End()

	cases, err := e.source.Load(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "loading cases")
		return nil, fmt.Errorf("loading cases: %w", err)
	}

	results := make([]CaseResult, len(cases))
	jobs := make([]runner.Job, len(cases))
	for i, c := range cases {
		jobs[i] = func(ctx context.Context) error {
			results[i] = e.runCase(ctx, i, c, score)
			return nil
		}
	}
	runner.RunPool(ctx, e.concurrency, jobs)

	res := newResult(results)
	span.SetAttributes(
		attribute.Int("eval.total", res.Summary.Total),
		attribute.Int("eval.passed", res.Summary.Passed),
	)
	e.logger.Info("run finished",
		zap.String("label", e.label),
		zap.Int("total", res.Summary.Total),
		zap.Int("passed", res.Summary.Passed),
		zap.Float64("avg_score", res.Summary.AvgScore),
	)
	return res, nil
}

func (e *Engine) runCase(ctx context.Context, idx int, c TestCase, score bool) CaseResult {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "eval.case", trace.WithAttributes(
		attribute.Int("eval.case.index", idx),
		attribute.String("eval.case.id", c.ID),
	))
	defer span.End()

	if e.caseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.caseTimeout)
		defer cancel()
	}

	cr := CaseResult{Case: c, Index: idx, Scores: []Score{}, Traces: []Trace{}}
	output, err, traces := WithTraceScope(ctx, func(ctx context.Context) (any, error) {
		return runTask(ctx, e.task, c.Input)
	})
	cr.Traces = traces

	if err != nil {
		cr.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "task failed")
	} else {
		cr.Output = output
		if score {
			cr.Scores = e.scoreOutput(ctx, c.Expected, output)
		}
	}

	span.SetAttributes(attribute.Bool("eval.case.passed", cr.Passed()))
	elapsed := time.Since(start)
	if e.observer != nil {
		e.observer.CaseFinished(cr, elapsed)
	}
	e.logger.Debug("case finished",
		zap.String("case", cr.Key()),
		zap.Bool("passed", cr.Passed()),
		zap.Int("traces", len(cr.Traces)),
		zap.Duration("elapsed", elapsed),
	)
	return cr
}

// scoreOutput runs every scorer in order. A scorer error becomes a failed
// zero score under the scorer's name.
func (e *Engine) scoreOutput(ctx context.Context, expected, output any) []Score {
	scores := make([]Score, 0, len(e.scorers))
	for _, sc := range e.scorers {
		s, err := runScorer(ctx, sc, expected, output)
		if err != nil {
			e.logger.Warn("scorer failed", zap.String("scorer", sc.Name()), zap.Error(err))
			if e.observer != nil {
				e.observer.ScorerFailed(sc.Name(), err)
			}
			scores = append(scores, failedScore(sc.Name(), err))
			continue
		}
		s.Name = sc.Name()
		scores = append(scores, s)
	}
	return scores
}

func (e *Engine) persist(ctx context.Context, res *EvalResult) {
	if e.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("sink panicked", zap.String("label", e.label), zap.Any("panic", r))
		}
	}()
	if err := e.sink.Save(ctx, e.label, res); err != nil {
		e.logger.Error("sink save failed", zap.String("label", e.label), zap.Error(err))
	}
}

func runTask(ctx context.Context, t Task, input any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return t.Run(ctx, input)
}

func runScorer(ctx context.Context, sc Scorer, expected, output any) (s Score, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scorer panicked: %v", r)
		}
	}()
	return sc.Score(ctx, expected, output)
}
