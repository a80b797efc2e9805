// Package cmd provides the CLI commands for Session Vigil.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Session-Vigil/Sessionvigil/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "session-vigil",
	Short: "Session Vigil - session liveness sidecar",
	Long: `Session Vigil keeps interactive sessions honest: it watches user
activity, polls the session authority for remaining lifetime, warns
presenters in escalating tiers, and redirects to login exactly once
when the session expires.

Quick start:
  1. Create a config file: session-vigil.yaml
  2. Run: session-vigil start

  Or skip the config entirely and run against a simulated session:
     session-vigil start --dev

Configuration:
  Config is loaded from session-vigil.yaml in the current directory,
  $HOME/.session-vigil/, or /etc/session-vigil/.

  Environment variables can override config values with the SESSION_VIGIL_ prefix.
  Example: SESSION_VIGIL_SERVER_HTTP_ADDR=:9750

Commands:
  start       Start the liveness sidecar
  stop        Stop the running sidecar
  hash-key    Generate a stored hash for a presenter API key
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./session-vigil.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
