package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/artpar/quotamon/adapters/remote"
	"github.com/artpar/quotamon/config"
	"github.com/artpar/quotamon/domain/period"
	"github.com/artpar/quotamon/domain/quota"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show current usage counters",
	Long: `Show usage counters for configured resources, read directly from
the counter store or from a running server.

Examples:
  quotamon usage
  quotamon usage --resource AdobeAPI
  quotamon usage --period 2026-07
  quotamon usage --server http://localhost:8080 --token qm_...`,
	RunE: runUsage,
}

var (
	usageResource string
	usagePeriod   string
)

func init() {
	rootCmd.AddCommand(usageCmd)

	usageCmd.Flags().StringVar(&usageResource, "resource", "", "limit output to one resource")
	usageCmd.Flags().StringVar(&usagePeriod, "period", "", "billing period (YYYY-MM, default: current)")
	usageCmd.Flags().StringVar(&serverURL, "server", "", "query a running server instead of the store")
	usageCmd.Flags().StringVar(&serverToken, "token", "", "bearer token for --server")
}

// usageRow is one line of the usage table.
type usageRow struct {
	resource string
	period   string
	count    int64
	limit    int64
	percent  float64
	level    string
	enforced bool
}

func runUsage(cmd *cobra.Command, args []string) error {
	var rows []usageRow
	var err error

	if serverURL != "" {
		if usagePeriod != "" {
			return fmt.Errorf("--period requires direct store access; the server reports the current period")
		}
		rows, err = usageFromServer()
	} else {
		rows, err = usageFromStore()
	}
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		fmt.Println("No resources configured.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RESOURCE\tPERIOD\tCOUNT\tLIMIT\tUSED\tLEVEL")
	fmt.Fprintln(w, "--------\t------\t-----\t-----\t----\t-----")

	for _, row := range rows {
		limitStr := "-"
		usedStr := "-"
		if row.enforced {
			limitStr = fmt.Sprintf("%d", row.limit)
			usedStr = fmt.Sprintf("%.2f%%", row.percent)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			row.resource, row.period, row.count, limitStr, usedStr, row.level)
	}

	w.Flush()
	return nil
}

func usageFromServer() ([]usageRow, error) {
	client := remote.NewClient(remote.ClientConfig{BaseURL: serverURL, Token: serverToken})
	ctx := context.Background()

	var snapshots []remote.UsageSnapshot
	if usageResource != "" {
		snap, err := client.Usage(ctx, usageResource)
		if err != nil {
			return nil, err
		}
		snapshots = []remote.UsageSnapshot{snap}
	} else {
		var err error
		snapshots, err = client.ListUsage(ctx)
		if err != nil {
			return nil, err
		}
	}

	rows := make([]usageRow, 0, len(snapshots))
	for _, s := range snapshots {
		rows = append(rows, usageRow{
			resource: s.Resource,
			period:   s.Period,
			count:    s.Count,
			limit:    s.Limit,
			percent:  s.Percent,
			level:    s.Level,
			enforced: s.Limit > 0,
		})
	}
	return rows, nil
}

func usageFromStore() ([]usageRow, error) {
	cfg, err := loadCLIConfig()
	if err != nil {
		return nil, err
	}

	store, closeStore, err := openCounterStore(cfg)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	periodKey := usagePeriod
	if periodKey == "" {
		periodKey = period.Key(time.Now().UTC())
	}

	resources := cfg.Resources
	if usageResource != "" {
		rc, ok := cfg.Resource(usageResource)
		if !ok {
			return nil, fmt.Errorf("resource not configured: %s", usageResource)
		}
		resources = []config.ResourceConfig{rc}
	}

	ctx := context.Background()
	rows := make([]usageRow, 0, len(resources))
	for _, rc := range resources {
		rec, err := store.Read(ctx, rc.Name, periodKey)
		if err != nil {
			return nil, fmt.Errorf("failed to read usage for %s: %w", rc.Name, err)
		}

		qc := quota.Config{
			Limit:             rc.Limit,
			WarningThreshold:  rc.WarningThreshold,
			CriticalThreshold: rc.CriticalThreshold,
		}
		a := quota.Assess(rec.Count, qc)

		rows = append(rows, usageRow{
			resource: rc.Name,
			period:   periodKey,
			count:    a.Count,
			limit:    a.Limit,
			percent:  a.Percent,
			level:    a.Level.String(),
			enforced: qc.Enforced(),
		})
	}
	return rows, nil
}
