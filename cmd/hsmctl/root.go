package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/comalice/hsm/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "hsmctl",
	Short: "hsmctl drives the service life cycle state machine",
	Long:  `hsmctl describes the life cycle machine, simulates a service going through it, and serves it over HTTP.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		format, _ := cmd.Flags().GetString("log-format")
		logging.SetGlobal(logging.New(level, logging.ParseFormat(format, logging.FormatConsole)))
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Sync()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", envOr(logging.EnvLevel, "info"), "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", envOr(logging.EnvFormat, string(logging.FormatConsole)), "Log format (console, json)")
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
