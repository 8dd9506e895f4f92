package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalnine/gauntlet/internal/config"
	"github.com/signalnine/gauntlet/internal/report"
	"github.com/signalnine/gauntlet/internal/result"
)

var flagListFormat string

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs and per-label summaries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			runs, err := result.ListRuns(cfg.Results.Dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintf(out, "No runs in %s\n", cfg.Results.Dir)
				return nil
			}

			fmt.Fprintln(out, "Runs:")
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "  ID\tLABEL\tCREATED\tCASES\tPASSED\tAVG SCORE\tTOKENS")
			for _, m := range runs {
				fmt.Fprintf(tw, "  %s\t%s\t%s\t%d\t%d\t%.3f\t%d\n",
					m.ID, m.Label, m.CreatedAt.Local().Format(time.DateTime),
					m.Summary.Total, m.Summary.Passed, m.Summary.AvgScore, m.TotalTokens)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			fmt.Fprintln(out, "\nLabels:")
			return report.WriteSummaries(out, flagListFormat, report.Summaries(runs))
		},
	}
	cmd.Flags().StringVar(&flagListFormat, "format", "table", "summary format (table, markdown, json)")
	return cmd
}
