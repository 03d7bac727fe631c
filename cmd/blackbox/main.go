// Package main is the entry point for the blackbox binary. It exposes a
// PII scrubbing command, a wrapper demo, and a monitored HTTP server.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentguard/blackbox/pkg/logging"
)

const defaultLogLevel = "info"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for blackbox
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "blackbox",
		Short: "Privacy-preserving agent monitoring",
		Long: `Wraps opaque agents so every invocation is observed, audited and
persisted without leaking PII or internal execution traces.

Examples:
  blackbox scrub "reach me at jane@example.com"
  blackbox demo --keep-hashes --black-box
  blackbox serve --addr :8080 --policy policy.yaml`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("log-level", "l", defaultLogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("pretty", false, "Enable pretty console logging")

	rootCmd.AddCommand(newScrubCmd(), newDemoCmd(), newServeCmd())
	return rootCmd
}

// newLoggerFromFlags builds the logger shared by all subcommands and installs
// it as the slog default.
func newLoggerFromFlags(cmd *cobra.Command) *slog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	pretty, _ := cmd.Flags().GetBool("pretty")

	logger := logging.NewLogger(logging.Config{
		Level:  level,
		Pretty: pretty,
		Output: cmd.ErrOrStderr(),
	})
	slog.SetDefault(logger)
	return logger
}
