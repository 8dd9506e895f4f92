package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalnine/gauntlet/internal/config"
	"github.com/signalnine/gauntlet/internal/pricing"
	"github.com/signalnine/gauntlet/internal/result"
	"github.com/signalnine/gauntlet/internal/server"
	"github.com/signalnine/gauntlet/internal/telemetry"
)

var flagAddr string

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored runs and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			var table *pricing.Table
			if cfg.Pricing != "" {
				if table, err = pricing.Load(cfg.Pricing); err != nil {
					return err
				}
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())
			metrics := telemetry.NewMetrics(reg)
			runs, err := result.ListRuns(cfg.Results.Dir)
			if err != nil {
				return err
			}
			// ListRuns is oldest first, so the gauges end on each label's latest run.
			for _, m := range runs {
				metrics.RunFinished(m.Label, m.Summary)
			}

			srv := &http.Server{
				Addr:              flagAddr,
				Handler:           server.New(cfg.Results.Dir, table, reg, logger).Router(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", cfg.Results.Dir, flagAddr)
			logger.Info("serving", zap.String("addr", flagAddr), zap.Int("runs", len(runs)))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flagAddr, "addr", "localhost:8089", "listen address")
	return cmd
}
