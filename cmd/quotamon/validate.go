package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/quotamon/adapters/sqlite"
	"github.com/artpar/quotamon/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the quotamon configuration file.

Checks:
  - YAML syntax is valid
  - Required fields are present
  - Thresholds are ordered and in range
  - Counter store is writable (optional)

Examples:
  quotamon validate
  quotamon validate --config /etc/quotamon/config.yaml`,
	RunE: runValidate,
}

var validateCheckStore bool

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckStore, "check-store", false, "check if the counter store is reachable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	fmt.Printf("Validating %s...\n\n", cfgFile)

	// Check file exists
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Printf("  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Printf("  %s Config file exists\n", checkMark)

	// Load and validate config
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Printf("  %s Config syntax valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Printf("  %s Config syntax valid\n", checkMark)

	// Show config summary
	fmt.Printf("  %s Resources: %d\n", checkMark, len(cfg.Resources))
	for _, r := range cfg.Resources {
		if r.Limit > 0 {
			fmt.Printf("      %s: limit %d (warn %.0f%%, critical %.0f%%)\n",
				r.Name, r.Limit, r.WarningThreshold*100, r.CriticalThreshold*100)
		} else {
			fmt.Printf("      %s: tracking only\n", r.Name)
		}
	}
	fmt.Printf("  %s Store: %s\n", checkMark, cfg.Store.Backend)
	fmt.Printf("  %s Metrics: %s\n", checkMark, cfg.Metrics.Backend)
	fmt.Printf("  %s Notify: %s\n", checkMark, cfg.Notify.Backend)
	fmt.Printf("  %s Admission: fail-open=%t\n", checkMark, cfg.FailOpen())

	// Optional: check store
	if validateCheckStore {
		if err := checkStoreWritable(cfg); err != nil {
			fmt.Printf("  %s Store writable\n", crossMark)
			fmt.Printf("      Error: %v\n", err)
		} else {
			fmt.Printf("  %s Store writable\n", checkMark)
		}
	}

	fmt.Println()
	fmt.Println("Configuration is valid.")
	return nil
}

func checkStoreWritable(cfg *config.Config) error {
	switch cfg.Store.Backend {
	case "sqlite":
		db, err := sqlite.Open(cfg.Store.SQLite.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Migrate()
	case "memory":
		return nil
	default:
		// Remote stores need credentials; the serve command verifies those.
		return nil
	}
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
