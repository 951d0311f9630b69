package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/latticectl/lattice/internal/store"
	"github.com/latticectl/lattice/internal/telemetry"
)

func newReportCommand(log *telemetry.Logger) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "report [transaction-id]",
		Short: "Show a persisted transaction's report, or list recent transactions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := store.NewSQLiteStore(store.Config{Path: dbPath})
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer st.Close()
			if err := st.Init(ctx); err != nil {
				return fmt.Errorf("initializing store: %w", err)
			}
			if err := st.Migrate(ctx); err != nil {
				return fmt.Errorf("migrating store: %w", err)
			}

			if len(args) == 1 {
				return printReport(ctx, st, args[0])
			}
			return listTransactions(ctx, st, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of recent transactions to list")

	return cmd
}

func printReport(ctx context.Context, st *store.SQLiteStore, id string) error {
	tx, err := st.GetTransaction(ctx, id)
	if err != nil {
		return fmt.Errorf("transaction %s: %w", id, err)
	}
	fmt.Printf("transaction %s: status=%s started=%s\n", tx.ID, tx.Status, tx.StartedAt.Format(time.RFC3339))
	if tx.Error != nil {
		fmt.Printf("  error: %s\n", *tx.Error)
	}

	rep, err := st.GetReport(ctx, id)
	if err == nil {
		fmt.Printf("  resources: %s\n", rep.ResourcesJSON)
		fmt.Printf("  time:      %s\n", rep.TimeJSON)
		fmt.Printf("  changes:   %s\n", rep.ChangesJSON)
	}

	changes, err := st.ListChanges(ctx, id)
	if err == nil {
		for _, c := range changes {
			fmt.Printf("  change: %s %s %q -> %q (changed=%v)\n", c.Resource, c.Property, c.From, c.To, c.Changed)
		}
	}

	events, err := st.ListEvents(ctx, id)
	if err == nil {
		for _, e := range events {
			fmt.Printf("  event: %s from %s: %s\n", e.Kind, e.Source, e.Message)
		}
	}

	return nil
}

func listTransactions(ctx context.Context, st *store.SQLiteStore, limit int) error {
	txns, err := st.ListTransactions(ctx, limit, 0)
	if err != nil {
		return fmt.Errorf("listing transactions: %w", err)
	}
	for _, tx := range txns {
		fmt.Printf("%s  %-12s  %s\n", tx.ID, tx.Status, tx.StartedAt.Format(time.RFC3339))
	}
	return nil
}
