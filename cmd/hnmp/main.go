// Command hnmp is a terminal client for HackNet multiplayer servers.
//
// It connects to a server, logs in, prints every event the server sends,
// and can run a scripted stub server for local testing.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Zereker/hnmp/internal/config"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// runID tags every log line and packet record of one process.
var runID = uuid.NewString()

type globalFlags struct {
	configPath string
	logJSON    bool
}

func main() {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:   "hnmp",
		Short: "HackNet multiplayer client",
		Long: `hnmp connects to a HackNet multiplayer server and prints the
session as it happens: login result, world nodes, text and kernel
events, and the reason the session ended.

Configuration is read from hnmp.yaml (or --config) and HNMP_*
environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file (default hnmp.yaml in . or config/)")
	rootCmd.PersistentFlags().BoolVar(&flags.logJSON, "log-json", false, "Write logs as JSON")

	rootCmd.AddCommand(
		connectCmd(&flags),
		stubCmd(&flags),
		configCmd(&flags),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and installs the default logger.
func loadConfig(flags *globalFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return config.Config{}, err
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return config.Config{}, err
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if flags.logJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler).With("run_id", runID))
	return cfg, nil
}
