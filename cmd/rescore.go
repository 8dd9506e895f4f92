package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/signalnine/gauntlet/eval"
	"github.com/signalnine/gauntlet/internal/config"
	"github.com/signalnine/gauntlet/internal/harness"
	"github.com/signalnine/gauntlet/internal/pricing"
	"github.com/signalnine/gauntlet/internal/report"
	"github.com/signalnine/gauntlet/internal/result"
)

func newRescoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rescore [run-dir]",
		Short: "Re-score an existing run",
		Long:  "Apply the configured scorers to the outputs stored in a run directory without running the task again. The rescored result is saved as a new run.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := cfg.LoadSecrets(); err != nil {
				return err
			}
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			runDir := filepath.Join(cfg.Results.Dir, result.LatestLink)
			if len(args) > 0 {
				runDir = args[0]
			}
			resolved, err := result.ResolveRunDir(runDir)
			if err != nil {
				return err
			}
			prev, err := result.ReadResult(resolved)
			if err != nil {
				return err
			}
			label := cfg.Name
			if meta, err := result.ReadRunMeta(resolved); err == nil && meta.Label != "" {
				label = meta.Label
			}

			ctx := cmd.Context()
			scorers, err := harness.BuildScorers(ctx, cfg.Scorers)
			if err != nil {
				return err
			}
			concurrency := cfg.Concurrency
			if concurrency == 0 {
				concurrency = eval.DefaultConcurrency
			}
			res := eval.Rescore(ctx, prev, scorers,
				eval.WithConcurrency(concurrency),
				eval.WithLogger(logger),
			)

			var table *pricing.Table
			if cfg.Pricing != "" {
				if table, err = pricing.Load(cfg.Pricing); err != nil {
					return err
				}
			}
			sink := result.NewDirSink(cfg.Results.Dir, table)
			if err := sink.Save(ctx, label, res); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Rescored %s (%d cases)\nRun directory: %s\n\n", resolved, len(res.Cases), sink.LastRunDir())
			fmt.Fprintf(out, "Pass rate: %.1f%% -> %.1f%%  Avg score: %.3f -> %.3f\n\n",
				prev.Summary.PassRate*100, res.Summary.PassRate*100, prev.Summary.AvgScore, res.Summary.AvgScore)
			return report.Write(out, "table", nil, res)
		},
	}
}
