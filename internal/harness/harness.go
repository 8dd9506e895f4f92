// Package harness turns a loaded config into a ready-to-run engine.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/signalnine/gauntlet/datasource"
	"github.com/signalnine/gauntlet/eval"
	"github.com/signalnine/gauntlet/internal/config"
	"github.com/signalnine/gauntlet/internal/pricing"
	"github.com/signalnine/gauntlet/internal/result"
	"github.com/signalnine/gauntlet/internal/store/kv"
	"github.com/signalnine/gauntlet/internal/store/postgres"
	"github.com/signalnine/gauntlet/internal/store/redisbus"
	"github.com/signalnine/gauntlet/scorer"
	"github.com/signalnine/gauntlet/task"
)

// Options override or extend what the config file says.
type Options struct {
	// Filter keeps only cases whose id contains this substring.
	Filter string
	// Concurrency overrides the config when positive.
	Concurrency    int
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
	Observer       eval.Observer
}

// Harness owns an engine and the sinks it writes to.
type Harness struct {
	Engine  *eval.Engine
	Label   string
	Dir     *result.DirSink
	Pricing *pricing.Table

	closers []io.Closer
}

func Build(ctx context.Context, cfg *config.Config, opts Options) (*Harness, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.LoadSecrets(); err != nil {
		return nil, err
	}

	source, err := BuildSource(cfg.Data.Path, opts.Filter)
	if err != nil {
		return nil, err
	}
	tk, err := BuildTask(cfg.Task)
	if err != nil {
		return nil, err
	}
	scorers, err := BuildScorers(ctx, cfg.Scorers)
	if err != nil {
		return nil, err
	}

	h := &Harness{Label: cfg.Name}
	if cfg.Pricing != "" {
		h.Pricing, err = pricing.Load(cfg.Pricing)
		if err != nil {
			return nil, err
		}
	}
	sink, err := h.buildSinks(ctx, cfg, logger)
	if err != nil {
		h.Close()
		return nil, err
	}

	concurrency := cfg.Concurrency
	if opts.Concurrency > 0 {
		concurrency = opts.Concurrency
	}
	if concurrency == 0 {
		concurrency = eval.DefaultConcurrency
	}
	engineOpts := []eval.Option{
		eval.WithScorers(scorers...),
		eval.WithConcurrency(concurrency),
		eval.WithSink(sink, cfg.Name),
		eval.WithLogger(logger),
		eval.WithCaseTimeout(cfg.CaseTimeout),
	}
	if opts.TracerProvider != nil {
		engineOpts = append(engineOpts, eval.WithTracerProvider(opts.TracerProvider))
	}
	if opts.Observer != nil {
		engineOpts = append(engineOpts, eval.WithObserver(opts.Observer))
	}
	h.Engine, err = eval.New(source, tk, engineOpts...)
	if err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

func (h *Harness) buildSinks(ctx context.Context, cfg *config.Config, logger *zap.Logger) (eval.MultiSink, error) {
	h.Dir = result.NewDirSink(cfg.Results.Dir, h.Pricing)
	sinks := eval.MultiSink{h.Dir}

	p := cfg.Persistence
	if p.PostgresURL != "" {
		pg, err := postgres.Open(ctx, p.PostgresURL, logger.Named("postgres"))
		if err != nil {
			return nil, err
		}
		h.closers = append(h.closers, pg)
		sinks = append(sinks, pg)
	}
	if p.BadgerPath != "" {
		db, err := kv.Open(kv.Config{Path: p.BadgerPath, SyncWrites: true, Logger: logger})
		if err != nil {
			return nil, err
		}
		h.closers = append(h.closers, db)
		sinks = append(sinks, db)
	}
	if p.RedisURL != "" {
		pub, err := redisbus.Dial(ctx, p.RedisURL, p.RedisChannel, p.RedisTTL)
		if err != nil {
			return nil, err
		}
		h.closers = append(h.closers, pub)
		sinks = append(sinks, pub)
	}
	return sinks, nil
}

func (h *Harness) Close() error {
	var errs []error
	for _, c := range h.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	h.closers = nil
	return errors.Join(errs...)
}

// BuildSource opens the data file and applies the id filter.
func BuildSource(path, filter string) (eval.DataSource, error) {
	src, err := datasource.Open(path)
	if err != nil {
		return nil, err
	}
	if filter == "" {
		return src, nil
	}
	return eval.Filtered(src, func(c eval.TestCase) bool {
		return strings.Contains(c.ID, filter)
	}), nil
}

func BuildTask(t config.Task) (eval.Task, error) {
	switch t.Type {
	case "http":
		return task.NewHTTP(task.HTTPOptions{
			URL:           t.URL,
			Method:        t.Method,
			Headers:       t.Headers,
			Timeout:       t.Timeout,
			RatePerSecond: t.RatePerSecond,
			Burst:         t.Burst,
		})
	case "command":
		return task.NewCommand(task.CommandOptions{
			Argv:    t.Command,
			Dir:     t.Dir,
			Env:     t.Env,
			Timeout: t.Timeout,
		})
	case "container":
		return task.NewContainer(task.ContainerOptions{
			Image:           t.Image,
			Command:         t.Command,
			Env:             t.Env,
			Timeout:         t.Timeout,
			CPULimit:        t.CPULimit,
			MemoryLimit:     t.MemoryLimitMB * 1024 * 1024,
			NetworkDisabled: t.NetworkDisabled,
		})
	case "openai":
		client, err := openAIClient(t.APIKeyEnv, t.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("openai task: %w", err)
		}
		return task.NewChat(client, task.ChatOptions{
			Model:        t.Model,
			SystemPrompt: t.SystemPrompt,
			Temperature:  t.Temperature,
			MaxTokens:    t.MaxTokens,
		})
	}
	return nil, fmt.Errorf("unknown task type %q", t.Type)
}

// BuildScorers constructs scorers in config order.
func BuildScorers(ctx context.Context, specs []config.Scorer) ([]eval.Scorer, error) {
	scorers := make([]eval.Scorer, 0, len(specs))
	for i, s := range specs {
		sc, err := buildScorer(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("scorer %d (%s): %w", i, s.Type, err)
		}
		scorers = append(scorers, sc)
	}
	return scorers, nil
}

func buildScorer(ctx context.Context, s config.Scorer) (eval.Scorer, error) {
	switch s.Type {
	case "exact":
		return scorer.ExactMatch(scorer.ExactMatchOptions{
			CaseInsensitive: s.CaseInsensitive,
			TrimWhitespace:  s.TrimWhitespace,
		}), nil
	case "contains":
		return scorer.Contains(s.Substring, s.CaseSensitive), nil
	case "levenshtein":
		return scorer.Levenshtein(s.Threshold), nil
	case "regex":
		return scorer.Regex(s.Pattern), nil
	case "json":
		switch {
		case s.Schema != "":
			data, err := os.ReadFile(s.Schema)
			if err != nil {
				return nil, fmt.Errorf("reading schema: %w", err)
			}
			return scorer.JSONSchema(string(data))
		case s.Strict:
			return scorer.JSONStrict(), nil
		default:
			return scorer.JSON(), nil
		}
	case "sql":
		return scorer.SQL(s.Dialect)
	case "embedding":
		embedder, err := buildEmbedder(ctx, s)
		if err != nil {
			return nil, err
		}
		return scorer.Embedding(embedder, s.Threshold), nil
	case "rubric":
		client, err := openAIClient(s.APIKeyEnv, s.BaseURL)
		if err != nil {
			return nil, err
		}
		model := s.Model
		if model == "" {
			model = openai.GPT4oMini
		}
		return scorer.Rubric(scorer.NewOpenAIJudge(client, model), scorer.RubricOptions{
			Criteria:  s.Criteria,
			Threshold: s.Threshold,
			Samples:   s.Samples,
		}), nil
	}
	return nil, fmt.Errorf("unknown scorer type %q", s.Type)
}

func buildEmbedder(ctx context.Context, s config.Scorer) (scorer.Embedder, error) {
	switch s.Provider {
	case "gemini":
		key := os.Getenv(s.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("%s is not set", s.APIKeyEnv)
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("creating gemini client: %w", err)
		}
		return scorer.NewGeminiEmbedder(client, s.Model), nil
	default:
		client, err := openAIClient(s.APIKeyEnv, s.BaseURL)
		if err != nil {
			return nil, err
		}
		return scorer.NewOpenAIEmbedder(client, s.Model), nil
	}
}

func openAIClient(keyEnv, baseURL string) (*openai.Client, error) {
	key := os.Getenv(keyEnv)
	if key == "" && baseURL == "" {
		return nil, fmt.Errorf("%s is not set", keyEnv)
	}
	cfg := openai.DefaultConfig(key)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg), nil
}
