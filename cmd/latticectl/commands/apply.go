package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latticectl/lattice/internal/store"
	"github.com/latticectl/lattice/internal/telemetry"
)

func newApplyCommand(log *telemetry.Logger) *cobra.Command {
	var rollbackOnFailure bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Evaluate the manifest and converge resources to their declared state",
		Long: `Loads the manifest, builds its relationship graph, and evaluates every
resource in dependency order: out-of-sync resources are converged, matching
notify/subscribe relations fire their callbacks, and a report is persisted
once evaluation completes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, log)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			tx, sink, err := a.newTransaction(ctx)
			if err != nil {
				return err
			}

			events, err := tx.Evaluate(ctx)
			if err == nil {
				if persistErr := sink.Persist(ctx); persistErr != nil {
					log.WithError(persistErr).Warn("failed to persist report")
				}
			}
			status := store.StatusCompleted
			if err != nil {
				status = store.StatusFailed
				if rollbackOnFailure {
					log.WithError(err).Warn("apply failed, rolling back")
					if rbErr := tx.Rollback(ctx); rbErr != nil {
						log.WithError(rbErr).Error("rollback failed")
					}
					status = store.StatusRolledBack
				}
			}

			errMsg := errString(err)
			if updateErr := a.store.UpdateTransactionStatus(ctx, tx.ID(), status, errMsg); updateErr != nil {
				log.WithError(updateErr).Warn("failed to record transaction status")
			}

			fmt.Printf("transaction %s: %d events, status=%s\n", tx.ID(), len(events), status)
			return err
		},
	}

	cmd.Flags().BoolVar(&rollbackOnFailure, "rollback-on-failure", false, "roll back applied changes if evaluation fails")

	return cmd
}

func errString(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}
