package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/headline-goat/launch-goat/internal/store"
)

func init() {
	rootCmd.AddCommand(newWinnerCmd())
}

func newWinnerCmd() *cobra.Command {
	var variantIndex int

	cmd := &cobra.Command{
		Use:   "winner <name>",
		Short: "Declare a winner for an experiment",
		Long: `Declare a winning variant for a locally tracked experiment and complete it.
Completed experiments stop recording beacon events.

Example:
  lg winner checkout --variant 1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			return withStore(func(s *store.SQLiteStore) error {
				ctx := cmd.Context()
				exp, err := s.GetExperiment(ctx, name)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("experiment not found: %s", name)
				}
				if err != nil {
					return fmt.Errorf("failed to get experiment: %w", err)
				}

				if exp.State != store.StateRunning {
					return fmt.Errorf("experiment is not running (current state: %s)", exp.State)
				}
				if variantIndex < 0 || variantIndex >= len(exp.Variants) {
					return fmt.Errorf("invalid variant index: %d (experiment has %d variants: 0-%d)", variantIndex, len(exp.Variants), len(exp.Variants)-1)
				}

				if err := s.UpdateExperimentState(ctx, name, store.StateCompleted, &variantIndex); err != nil {
					return fmt.Errorf("failed to set winner: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Declared winner for experiment '%s': variant %d (\"%s\")\n", name, variantIndex, exp.Variants[variantIndex])
				fmt.Fprintln(out, "Experiment has been marked as completed.")
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&variantIndex, "variant", "v", -1, "winning variant index (required)")
	cmd.MarkFlagRequired("variant")

	return cmd
}
