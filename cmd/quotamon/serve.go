package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/quotamon/bootstrap"
	"github.com/artpar/quotamon/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the quota monitor server",
	Long: `Start the quotamon HTTP server.

The server will:
  - Load configuration from quotamon.yaml (or --config)
  - Or load configuration from QUOTAMON_* environment variables
  - Connect to the counter store
  - Serve admission checks, call recording, and usage queries
  - Publish quota metrics and send threshold alerts

Environment variables (for Docker deployments):
  QUOTAMON_RESOURCE          - Resource name to monitor (e.g. AdobeAPI)
  QUOTAMON_LIMIT             - Monthly call limit (0 = tracking only)
  QUOTAMON_STORE_BACKEND     - Store: memory, sqlite, dynamodb, redis
  QUOTAMON_SERVER_PORT       - Server port (default: 8080)
  QUOTAMON_LOG_LEVEL         - Log level: debug, info, warn, error

Examples:
  quotamon serve
  quotamon serve --config /etc/quotamon/config.yaml

  # Docker (env vars only):
  QUOTAMON_RESOURCE=AdobeAPI QUOTAMON_LIMIT=5000 quotamon serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	hasEnvConfig := config.HasEnvConfig()

	// No configuration at all
	if !hasConfigFile && !hasEnvConfig {
		fmt.Println("No configuration found.")
		fmt.Println()
		fmt.Printf("Option 1: Create %s\n", cfgFile)
		fmt.Println("Option 2: Set QUOTAMON_RESOURCE and QUOTAMON_LIMIT environment variables")
		fmt.Println()
		fmt.Println("Example (env vars):")
		fmt.Println("  QUOTAMON_RESOURCE=AdobeAPI QUOTAMON_LIMIT=5000 quotamon serve")
		return nil
	}

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if !hasConfigFile {
		fmt.Println("Running with environment variables (no config file)")
	}

	app, err := bootstrap.New(cfg)
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
