package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/signalnine/gauntlet/eval"
	"github.com/signalnine/gauntlet/internal/config"
	"github.com/signalnine/gauntlet/internal/harness"
	"github.com/signalnine/gauntlet/internal/report"
	"github.com/signalnine/gauntlet/internal/result"
	"github.com/signalnine/gauntlet/internal/telemetry"
	"github.com/signalnine/gauntlet/internal/watch"
)

var (
	flagNoScore     bool
	flagWatch       bool
	flagFilter      string
	flagConcurrency int
	flagRunFormat   string
	flagMinPassRate float64
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute an evaluation suite",
		Args:  cobra.NoArgs,
		RunE:  runEval,
	}
	cmd.Flags().BoolVar(&flagNoScore, "no-score", false, "run the task only, skip scoring and persistence")
	cmd.Flags().BoolVar(&flagWatch, "watch", false, "re-run when the config, data or schema files change")
	cmd.Flags().StringVar(&flagFilter, "filter", "", "only run cases whose id contains this substring")
	cmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "override max cases in flight")
	cmd.Flags().StringVar(&flagRunFormat, "format", "table", "output format ("+strings.Join(report.Formats, ", ")+")")
	cmd.Flags().Float64Var(&flagMinPassRate, "min-pass-rate", 0, "fail when the pass rate is below this fraction")
	return cmd
}

// runEnv is what stays fixed across re-runs in watch mode.
type runEnv struct {
	out     io.Writer
	logger  *zap.Logger
	tracer  trace.TracerProvider
	metrics *telemetry.Metrics
}

func runEval(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	tp, shutdown, err := telemetry.InitTracing(telemetry.TracingConfig{
		ServiceName: "gauntlet",
		Stdout:      cfg.Telemetry.TraceStdout,
		Writer:      cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	reg := prometheus.NewRegistry()
	env := &runEnv{
		out:     cmd.OutOrStdout(),
		logger:  logger,
		tracer:  tp,
		metrics: telemetry.NewMetrics(reg),
	}
	if cfg.Telemetry.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.Telemetry.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	if !flagWatch {
		return runOnce(ctx, env, cfg)
	}
	return watchLoop(ctx, env, cfg)
}

func runOnce(ctx context.Context, env *runEnv, cfg *config.Config) error {
	h, err := harness.Build(ctx, cfg, harness.Options{
		Filter:         flagFilter,
		Concurrency:    flagConcurrency,
		Logger:         env.logger,
		TracerProvider: env.tracer,
		Observer:       env.metrics,
	})
	if err != nil {
		return err
	}
	defer h.Close()

	fmt.Fprintf(env.out, "Running %s (concurrency %d)...\n", cfg.Name, h.Engine.Concurrency())
	var res *eval.EvalResult
	if flagNoScore {
		res, err = h.Engine.RunWithoutScoring(ctx)
	} else {
		res, err = h.Engine.Run(ctx)
	}
	if err != nil {
		return err
	}
	env.metrics.RunFinished(cfg.Name, res.Summary)

	meta := result.NewRunMeta("", cfg.Name, res, h.Pricing.ResultCost(res))
	if dir := h.Dir.LastRunDir(); dir != "" && !flagNoScore {
		if stored, err := result.ReadRunMeta(dir); err == nil {
			meta = stored
		}
		fmt.Fprintf(env.out, "Run directory: %s\n", dir)
	}
	fmt.Fprintln(env.out)
	if err := report.Write(env.out, flagRunFormat, meta, res); err != nil {
		return err
	}

	if flagMinPassRate > 0 {
		if err := eval.AssertPassRate(res, flagMinPassRate); err != nil {
			var ae *eval.AssertionError
			if errors.As(err, &ae) {
				return errors.New(ae.Reason)
			}
			return err
		}
	}
	return nil
}

func watchLoop(ctx context.Context, env *runEnv, cfg *config.Config) error {
	if err := runOnce(ctx, env, cfg); err != nil {
		fmt.Fprintf(env.out, "ERROR: %v\n", err)
	}

	w, err := watch.New(cfg.WatchPaths(), watch.DefaultDebounce, env.logger)
	if err != nil {
		return err
	}
	defer w.Close()
	fmt.Fprintf(env.out, "\nWatching %s for changes (Ctrl-C to stop)...\n", strings.Join(cfg.WatchPaths(), ", "))

	err = w.Run(ctx, func(changed []string) {
		fmt.Fprintf(env.out, "\nChanged: %s\n", strings.Join(changed, ", "))
		next, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(env.out, "ERROR: %v (keeping previous config)\n", err)
			next = cfg
		}
		cfg = next
		if err := runOnce(ctx, env, cfg); err != nil {
			fmt.Fprintf(env.out, "ERROR: %v\n", err)
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
