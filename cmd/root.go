package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalnine/gauntlet/internal/logging"
)

var (
	cfgFile   string
	flagDebug bool
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gauntlet",
		Short:        "Run evaluation suites against tasks and score the outputs",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "gauntlet.yaml", "config file path")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "verbose development logging")
	root.AddCommand(newRunCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newRescoreCmd())
	root.AddCommand(newServeCmd())
	return root
}

func newLogger() (*zap.Logger, error) {
	return logging.New(flagDebug)
}
