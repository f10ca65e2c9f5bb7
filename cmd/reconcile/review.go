package main

import (
	"fmt"

	"github.com/quillbooks/reconcile/internal/cli"
	"github.com/spf13/cobra"
)

func suggestionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggestions",
		Short: "List pending match suggestions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			if tenant == "" {
				return fmt.Errorf("--tenant is required")
			}
			minConfidence, _ := cmd.Flags().GetFloat64("min-confidence")

			eng, store, err := initEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			suggestions, err := eng.Suggestions(cmd.Context(), tenant, minConfidence)
			if err != nil {
				return err
			}
			fmt.Println(cli.RenderSuggestions(suggestions))
			return nil
		},
	}

	cmd.Flags().String("tenant", "", "tenant to list suggestions for")
	cmd.Flags().Float64("min-confidence", 0, "only show suggestions at or above this confidence")
	return cmd
}

func applyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <suggestion-id>",
		Short: "Accept a pending suggestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, _ := cmd.Flags().GetString("actor")

			eng, store, err := initEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			decision, err := eng.ApplyCandidate(cmd.Context(), args[0], actor)
			if err != nil {
				return err
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf(
				"Applied suggestion %s as decision %s", args[0], decision.GroupID)))
			return nil
		},
	}

	cmd.Flags().String("actor", "cli", "reviewer recorded in the audit trail")
	return cmd
}

func rejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <suggestion-id>",
		Short: "Decline a pending suggestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, _ := cmd.Flags().GetString("actor")
			reason, _ := cmd.Flags().GetString("reason")

			eng, store, err := initEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := eng.RejectCandidate(cmd.Context(), args[0], actor, reason); err != nil {
				return err
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Rejected suggestion %s", args[0])))
			return nil
		},
	}

	cmd.Flags().String("actor", "cli", "reviewer recorded in the audit trail")
	cmd.Flags().String("reason", "", "why the suggestion is wrong")
	return cmd
}

func reverseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reverse <group-id>",
		Short: "Reverse an applied decision",
		Long: `Undo a match decision and reopen the records it held.

The original decision is kept and flagged; the reversal is recorded as a new
linked decision so the audit trail stays complete.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, _ := cmd.Flags().GetString("actor")
			reason, _ := cmd.Flags().GetString("reason")

			eng, store, err := initEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			reversal, err := eng.ReverseDecision(cmd.Context(), args[0], actor, reason)
			if err != nil {
				return err
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf(
				"Reversed decision %s (reversal %s)", args[0], reversal.GroupID)))
			return nil
		},
	}

	cmd.Flags().String("actor", "cli", "reviewer recorded in the audit trail")
	cmd.Flags().String("reason", "", "why the decision was wrong")
	return cmd
}

func excludeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exclude <record-id>",
		Short: "Mark a record as non-reconcilable",
		Long: `Exclude a record from all future matching.

Use this for bank fees, internal transfers, and other movements that have no
counterpart record. The --kind flag selects which ledger the id belongs to.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			actor, _ := cmd.Flags().GetString("actor")
			reason, _ := cmd.Flags().GetString("reason")

			eng, store, err := initEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := eng.MarkNonReconcilable(cmd.Context(), kind, args[0], actor, reason); err != nil {
				return err
			}
			fmt.Println(cli.FormatSuccess(fmt.Sprintf(
				"%s %s excluded from matching", kind, args[0])))
			return nil
		},
	}

	cmd.Flags().String("kind", "transaction", "record kind: transaction, expense, or invoice")
	cmd.Flags().String("actor", "cli", "reviewer recorded in the audit trail")
	cmd.Flags().String("reason", "", "why the record has no counterpart")
	return cmd
}

func auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit <group-id>",
		Short: "Show the audit trail of a decision group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, store, err := initEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			trail, err := eng.AuditTrail(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(cli.RenderAuditTrail(trail))
			return nil
		},
	}
}
