// Command sentinel is the entry point for the automated market-sentiment
// trading platform: a single binary that either serves the HTTP API and
// scheduler (the default `serve` command) or runs one component standalone
// for operational and diagnostic use (`backtest run`, `news collect`,
// `metrics show`, `learn cycle`).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aristath/sentinel/internal/config"
	"github.com/aristath/sentinel/pkg/logger"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var dataDir string

	root := &cobra.Command{
		Use:   "sentinel",
		Short: "Automated market-sentiment trading platform",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dataDir)
		},
	}
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override the base data directory (defaults to TRADER_DATA_DIR or ./data)")

	root.AddCommand(newBacktestCommand(&dataDir))
	root.AddCommand(newNewsCommand(&dataDir))
	root.AddCommand(newMetricsCommand(&dataDir))
	root.AddCommand(newLearnCommand(&dataDir))
	return root
}

// loadAppForCLI loads configuration and wires the full dependency graph.
// It's shared by serve and every subcommand; each caller closes the
// returned App when done.
func loadAppForCLI(dataDir string) (*App, error) {
	cfg, err := config.Load(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	return buildApp(cfg, log)
}
