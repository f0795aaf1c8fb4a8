package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quotamon",
	Short: "Quota monitoring and admission control for metered external APIs",
	Long: `Quotamon tracks calls against rate-limited external APIs, enforces
monthly quotas, and alerts before a limit is hit.

Quick start:
  quotamon serve     # Start the quota monitor server
  quotamon validate  # Validate configuration

Inspection:
  quotamon usage     # Show current usage counters
  quotamon check     # One-shot admission check for a resource`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "quotamon.yaml", "config file path")
}
