package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/quillbooks/reconcile/internal/cli"
	"github.com/quillbooks/reconcile/internal/service"
	"github.com/spf13/cobra"
)

func matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Run a matching batch",
		Long: `Match unreconciled transactions against open expenses and invoices.

High-confidence candidates are applied automatically; lower-confidence ones
are queued as suggestions for review. The run is safe to interrupt and safe
to repeat: applied decisions are durable and already-matched records are
never proposed again.`,
		RunE: runMatch,
	}

	cmd.Flags().String("tenant", "", "tenant to match (required unless --tenants is set)")
	cmd.Flags().String("tenants", "", "comma-separated tenants to match in parallel")
	cmd.Flags().String("from", "", "only match transactions dated on or after (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "only match transactions dated on or before (YYYY-MM-DD)")
	cmd.Flags().Int("window", 0, "shorthand for --from N days ago")
	return cmd
}

func runMatch(cmd *cobra.Command, _ []string) error {
	tenant, _ := cmd.Flags().GetString("tenant")
	tenantList, _ := cmd.Flags().GetString("tenants")

	var tenants []string
	switch {
	case tenantList != "":
		for _, t := range strings.Split(tenantList, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tenants = append(tenants, t)
			}
		}
	case tenant != "":
		tenants = []string{tenant}
	default:
		return fmt.Errorf("either --tenant or --tenants is required")
	}

	window, err := parseWindow(cmd)
	if err != nil {
		return err
	}

	interrupt := cli.NewInterruptHandler(os.Stdout)
	ctx := interrupt.HandleInterrupts(cmd.Context())

	eng, store, err := initEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	reports, err := eng.SubmitBatches(ctx, tenants, window)
	if err != nil {
		return err
	}

	for _, report := range reports {
		fmt.Println(cli.RenderJobReport(report))
	}
	return nil
}

func parseWindow(cmd *cobra.Command) (service.DateRange, error) {
	var window service.DateRange

	if days, _ := cmd.Flags().GetInt("window"); days > 0 {
		window.Start = time.Now().UTC().AddDate(0, 0, -days)
	}
	if from, _ := cmd.Flags().GetString("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return window, fmt.Errorf("invalid --from date %q: %w", from, err)
		}
		window.Start = t
	}
	if to, _ := cmd.Flags().GetString("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return window, fmt.Errorf("invalid --to date %q: %w", to, err)
		}
		window.End = t
	}
	return window, nil
}
