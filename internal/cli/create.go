package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/headline-goat/launch-goat/internal/store"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var (
		variants string
		weights  []float64
		goal     string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a locally tracked experiment",
		Long: `Create an experiment in the local event store. The first variant is the
control. Weights set the expected traffic split used by the SRM check.

Examples:
  lg create checkout --variants "control,treatment"
  lg create pricing --variants "control,variant_a,variant_b" --weights 0.5,0.25,0.25
  lg create hero --variants "control,treatment" --goal "signup clicked"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			variantList := strings.Split(variants, ",")
			for i := range variantList {
				variantList[i] = strings.TrimSpace(variantList[i])
			}
			if len(variantList) < 2 {
				return fmt.Errorf("need at least 2 variants. Example: --variants \"control,treatment\"")
			}
			if len(weights) > 0 && len(weights) != len(variantList) {
				return fmt.Errorf("got %d weights for %d variants", len(weights), len(variantList))
			}

			return withStore(func(s *store.SQLiteStore) error {
				exp, err := s.CreateExperiment(cmd.Context(), name, variantList, weights, goal)
				if err != nil {
					return fmt.Errorf("failed to create experiment: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created experiment '%s' with %d variants:\n", exp.Name, len(exp.Variants))
				for i, v := range exp.Variants {
					role := ""
					if i == 0 {
						role = " (control)"
					}
					if len(exp.Weights) > i {
						fmt.Fprintf(out, "  %d: %s%s, weight %.2f\n", i, v, role, exp.Weights[i])
					} else {
						fmt.Fprintf(out, "  %d: %s%s\n", i, v, role)
					}
				}
				if goal != "" {
					fmt.Fprintf(out, "  Goal: %s\n", goal)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&variants, "variants", "v", "", "comma-separated variant names, control first (required)")
	cmd.Flags().Float64SliceVar(&weights, "weights", nil, "expected traffic split, one weight per variant")
	cmd.Flags().StringVar(&goal, "goal", "", "what counts as a conversion (optional)")
	cmd.MarkFlagRequired("variants")

	return cmd
}
