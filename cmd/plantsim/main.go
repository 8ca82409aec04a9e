package main

import (
	"fmt"
	"os"

	"github.com/nvandessel/plantsim/internal/config"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "plantsim",
		Short: "Refinery process simulator",
		Long: `plantsim simulates a small refinery unit: a fixed set of correlated process
signals that evolve on a tick, a scripted handover from human to automated
control, and an MCP endpoint for reading and writing signals.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.plantsim/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug, trace")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(),
		newSignalsCmd(),
		newHistoryCmd(),
		newConfigCmd(),
	)

	return rootCmd
}

// loadConfig resolves configuration for a command: file, environment, then the
// persistent --log-level flag. The result is validated.
func loadConfig(cmd *cobra.Command) (*config.PlantConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
