package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latticectl/lattice/internal/telemetry"
)

func newPlanCommand(log *telemetry.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Build the relationship graph and check that it can be ordered",
		Long: `Loads the manifest and runs Prepare without Evaluate: resources are
prefetched, dynamically generated, and topologically ordered, but no change
is ever applied. It prints whether preparation succeeded; the planned
evaluation order itself is not printed.`,
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

			if err := tx.Prepare(ctx); err != nil {
				return fmt.Errorf("prepare failed: %w", err)
			}

			fmt.Printf("transaction %s prepared successfully\n", tx.ID())
			return nil
		},
	}

	return cmd
}
