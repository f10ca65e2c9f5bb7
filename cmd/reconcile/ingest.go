package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/quillbooks/reconcile/internal/cli"
	"github.com/quillbooks/reconcile/internal/model"
	"github.com/quillbooks/reconcile/internal/normalize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <records.json>",
		Short: "Ingest collaborator records",
		Long: `Normalize and store a batch of raw records from a collaborator system.

The input file holds a JSON array of records; each record carries a kind
(transaction, expense, or invoice). Malformed records are reported and
skipped, never silently dropped. Newly ingested expenses are scanned for
probable duplicates.`,
		Args: cobra.ExactArgs(1),
		RunE: runIngest,
	}

	cmd.Flags().String("currency", "", "fallback currency for records without one")
	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	var raws []normalize.RawRecord
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("failed to parse %s: %w", args[0], err)
	}
	if len(raws) == 0 {
		fmt.Println(cli.FormatInfo("No records to ingest."))
		return nil
	}

	eng, store, err := initEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	currency, _ := cmd.Flags().GetString("currency")
	if currency == "" {
		currency = viper.GetString("ingest.default_currency")
	}
	normalizer := normalize.New(currency)

	var (
		transactions []model.Transaction
		expenses     []model.Expense
		invoices     []model.Invoice
		rejected     []string
	)

	bar := progressbar.NewOptions(len(raws),
		progressbar.OptionSetDescription("Normalizing records"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)

	for _, raw := range raws {
		_ = bar.Add(1)

		switch raw.Kind {
		case normalize.KindTransaction:
			txn, err := normalizer.Transaction(raw)
			if err != nil {
				rejected = append(rejected, err.Error())
				continue
			}
			transactions = append(transactions, *txn)
		case normalize.KindExpense:
			exp, err := normalizer.Expense(raw)
			if err != nil {
				rejected = append(rejected, err.Error())
				continue
			}
			expenses = append(expenses, *exp)
		case normalize.KindInvoice:
			inv, err := normalizer.Invoice(raw)
			if err != nil {
				rejected = append(rejected, err.Error())
				continue
			}
			invoices = append(invoices, *inv)
		default:
			rejected = append(rejected, fmt.Sprintf("record %s: unknown kind %q", raw.ID, raw.Kind))
		}
	}
	_ = bar.Finish()

	if len(transactions) > 0 {
		if err := eng.IngestTransactions(ctx, transactions); err != nil {
			return fmt.Errorf("failed to store transactions: %w", err)
		}
	}
	if len(invoices) > 0 {
		if err := eng.IngestInvoices(ctx, invoices); err != nil {
			return fmt.Errorf("failed to store invoices: %w", err)
		}
	}

	var hits []model.DuplicateHit
	if len(expenses) > 0 {
		hits, err = eng.IngestExpenses(ctx, expenses)
		if err != nil {
			return fmt.Errorf("failed to store expenses: %w", err)
		}
	}

	slog.Info("Ingest finished",
		"transactions", len(transactions),
		"expenses", len(expenses),
		"invoices", len(invoices),
		"rejected", len(rejected))

	fmt.Println(cli.FormatSuccess(fmt.Sprintf(
		"Ingested %d transactions, %d expenses, %d invoices",
		len(transactions), len(expenses), len(invoices))))

	for _, reason := range rejected {
		fmt.Println(cli.FormatError(reason))
	}
	if len(hits) > 0 {
		fmt.Println(cli.RenderDuplicateHits(hits))
	}
	return nil
}
