package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/artpar/quotamon/adapters/remote"
	"github.com/artpar/quotamon/domain/period"
	"github.com/artpar/quotamon/domain/quota"
)

var checkCmd = &cobra.Command{
	Use:   "check <resource>",
	Short: "One-shot admission check for a resource",
	Long: `Check whether a call to the resource would currently be admitted.

Exits non-zero when the quota is exhausted, so it can gate scripted
API calls:

  quotamon check AdobeAPI && call-adobe-api.sh
  quotamon check AdobeAPI --server http://localhost:8080`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&serverURL, "server", "", "query a running server instead of the store")
	checkCmd.Flags().StringVar(&serverToken, "token", "", "bearer token for --server")
}

func runCheck(cmd *cobra.Command, args []string) error {
	resource := args[0]

	if serverURL != "" {
		return checkViaServer(resource)
	}
	return checkViaStore(resource)
}

func checkViaServer(resource string) error {
	client := remote.NewClient(remote.ClientConfig{BaseURL: serverURL, Token: serverToken})

	result, err := client.Check(context.Background(), resource)
	if err != nil {
		return err
	}

	if !result.Allowed {
		return fmt.Errorf("quota exceeded for %s: %d of %d calls used",
			resource, result.Count, result.Limit)
	}

	if result.Limit > 0 {
		fmt.Printf("allowed: %s has %d of %d calls remaining\n",
			resource, result.Remaining, result.Limit)
	} else {
		fmt.Printf("allowed: %s is tracking-only (%d calls recorded)\n",
			resource, result.Count)
	}
	return nil
}

func checkViaStore(resource string) error {
	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}

	rc, ok := cfg.Resource(resource)
	if !ok {
		return fmt.Errorf("resource not configured: %s", resource)
	}

	store, closeStore, err := openCounterStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	periodKey := period.Key(time.Now().UTC())
	rec, err := store.Read(context.Background(), resource, periodKey)
	if err != nil {
		return fmt.Errorf("failed to read usage: %w", err)
	}

	qc := quota.Config{
		Limit:             rc.Limit,
		WarningThreshold:  rc.WarningThreshold,
		CriticalThreshold: rc.CriticalThreshold,
	}
	d := quota.Check(rec.Count, qc)

	if !d.Allowed {
		return fmt.Errorf("quota exceeded for %s: %d of %d calls used in %s",
			resource, d.Count, d.Limit, periodKey)
	}

	if qc.Enforced() {
		fmt.Printf("allowed: %s has %d of %d calls remaining in %s\n",
			resource, d.Remaining(), d.Limit, periodKey)
	} else {
		fmt.Printf("allowed: %s is tracking-only (%d calls recorded in %s)\n",
			resource, d.Count, periodKey)
	}
	return nil
}
