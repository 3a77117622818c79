package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/bifrost/internal/config"
	"github.com/aretw0/bifrost/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bifrost",
	Short: "Bifrost keeps a chart widget and its notebook kernel in sync",
	Long: `Bifrost hosts the shared state of chart-authoring widgets and lets you drive
them from a terminal or an AI agent.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "bifrost.yaml", "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level")
	rootCmd.PersistentFlags().String("widget", "", "Override the configured widget ID")
}

// loadConfig reads the configuration and applies command line overrides.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, os.Environ())
	if err != nil {
		return config.Config{}, nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if id, _ := cmd.Flags().GetString("widget"); id != "" {
		cfg.Widget.ID = id
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := logging.NewWithFormat(os.Stderr, level, cfg.Log.Format)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
