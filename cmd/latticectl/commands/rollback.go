package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latticectl/lattice/internal/store"
	"github.com/latticectl/lattice/internal/telemetry"
)

func newRollbackCommand(log *telemetry.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Evaluate the manifest, then immediately roll every applied change back",
		Long: `Runs a full evaluation exactly like apply, then unconditionally walks
whatever was applied in strict reverse order, undoing each change. Only
the transaction's final status is persisted; no report is stored, and the
rollback's replayed changes and re-fired triggers are not recorded. Useful for exercising a manifest's forward and
backward convergence logic without leaving a lasting effect on the managed
system.

A Change's backward closure only exists in memory for the life of the
Transaction that produced it, so this is not a historical "undo this past
apply by ID" command — rollback only ever applies to the evaluation it
just ran.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, log)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			tx, _, err := a.newTransaction(ctx)
			if err != nil {
				return err
			}

			events, evalErr := tx.Evaluate(ctx)
			if evalErr != nil {
				log.WithError(evalErr).Warn("evaluation reported a failure, rolling back whatever was applied")
			}

			if err := tx.Rollback(ctx); err != nil {
				_ = a.store.UpdateTransactionStatus(ctx, tx.ID(), store.StatusFailed, errString(err))
				return fmt.Errorf("rollback failed: %w", err)
			}

			if err := a.store.UpdateTransactionStatus(ctx, tx.ID(), store.StatusRolledBack, errString(evalErr)); err != nil {
				log.WithError(err).Warn("failed to record transaction status")
			}

			fmt.Printf("transaction %s: %d events evaluated, all applied changes rolled back\n", tx.ID(), len(events))
			return nil
		},
	}

	return cmd
}
