package main

import (
	"fmt"
	"time"

	"github.com/quillbooks/reconcile/internal/cli"
	"github.com/quillbooks/reconcile/internal/model"
	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show reconciliation progress for a tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			if tenant == "" {
				return fmt.Errorf("--tenant is required")
			}

			eng, store, err := initEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			stats, err := eng.Stats(cmd.Context(), tenant)
			if err != nil {
				return err
			}
			fmt.Println(cli.RenderStats(stats))
			return nil
		},
	}

	cmd.Flags().String("tenant", "", "tenant to report on")
	return cmd
}

func duplicatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "duplicates [expense-id]",
		Short: "Scan stored expenses for probable duplicates",
		Long: `Scan one expense, or a whole tenant, for probable double-bookings.

With an expense id the scan covers that expense against its tenant's recent
entries. With --tenant it sweeps every expense since --from and reports each
suspect pair once.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			if (len(args) == 0) == (tenant == "") {
				return fmt.Errorf("provide either an expense id or --tenant")
			}

			eng, store, err := initEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var hits []model.DuplicateHit
			if len(args) == 1 {
				hits, err = eng.ScanDuplicates(cmd.Context(), args[0])
			} else {
				fromFlag, _ := cmd.Flags().GetString("from")
				since, parseErr := time.Parse("2006-01-02", fromFlag)
				if parseErr != nil {
					return fmt.Errorf("invalid --from date %q: %w", fromFlag, parseErr)
				}
				hits, err = eng.ScanTenantDuplicates(cmd.Context(), tenant, since)
			}
			if err != nil {
				return err
			}
			fmt.Println(cli.RenderDuplicateHits(hits))
			return nil
		},
	}

	cmd.Flags().String("tenant", "", "sweep every expense for this tenant")
	cmd.Flags().String("from", time.Now().UTC().AddDate(0, -1, 0).Format("2006-01-02"),
		"start of the sweep window (YYYY-MM-DD)")
	return cmd
}
