package cmd

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/signalnine/gauntlet/internal/config"
	"github.com/signalnine/gauntlet/internal/pricing"
	"github.com/signalnine/gauntlet/internal/report"
	"github.com/signalnine/gauntlet/internal/result"
)

var flagFormat string

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Render a stored run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil && len(args) == 0 {
				return err
			}
			var table *pricing.Table
			runDir := ""
			if cfg != nil {
				runDir = filepath.Join(cfg.Results.Dir, result.LatestLink)
				if cfg.Pricing != "" {
					if table, err = pricing.Load(cfg.Pricing); err != nil {
						return err
					}
				}
			}
			if len(args) > 0 {
				runDir = args[0]
			}
			resolved, err := result.ResolveRunDir(runDir)
			if err != nil {
				return err
			}
			return report.Generate(resolved, flagFormat, cmd.OutOrStdout(), table)
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format ("+strings.Join(report.Formats, ", ")+")")
	return cmd
}
