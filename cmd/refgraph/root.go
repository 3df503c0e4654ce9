package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"refgraph/internal/config"
	"refgraph/internal/logging"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "refgraph",
	Short: "Reference graphs for scene hierarchies and their C# behaviors",
	Long: `refgraph walks a scene hierarchy, records which objects reference which,
and augments the graph with relationships found in the behaviors' C# source:
dynamic component acquisition, event subscription and event invocation.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and builds the logger, honoring
// --log-level over the file.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return config.Config{}, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $"+config.EnvPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
}
