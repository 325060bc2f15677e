package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/headline-goat/launch-goat/internal/provider"
	"github.com/headline-goat/launch-goat/internal/report"
	"github.com/headline-goat/launch-goat/internal/store"
)

var resultsCmd = &cobra.Command{
	Use:   "results <name>",
	Short: "Show the analysis and decision for a tracked experiment",
	Long: `Analyze a locally tracked experiment and print per-variant rates, lifts
and the launch decision. Use --format to get the full report instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	name := args[0]

	return withStore(func(s *store.SQLiteStore) error {
		ctx := cmd.Context()
		local := provider.NewLocal(s)

		res, err := local.FetchExperiment(ctx, name)
		if errors.Is(err, provider.ErrNotFound) {
			return fmt.Errorf("experiment '%s' not found", name)
		}
		if err != nil {
			return err
		}
		if err := res.Validate(); err != nil {
			return err
		}
		split, err := local.ExpectedSplit(ctx, name)
		if err != nil {
			return err
		}

		rep, err := newAnalyzer().Run(ctx, res.ToTable(), report.Options{Name: name, Split: split, SkipBayesian: true})
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("format") {
			return printResult(cmd, rep)
		}
		return printSummary(cmd.OutOrStdout(), rep)
	})
}

func printSummary(out io.Writer, rep *report.Report) error {
	fmt.Fprintf(out, "EXPERIMENT: %s\n", rep.Name)
	fmt.Fprintf(out, "HEALTH: %s\n", rep.Health.OverallStatus)
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VARIANT\tUSERS\tCONVERSIONS\tRATE\tLIFT\tP-VALUE")
	switch {
	case rep.Primary != nil:
		p := rep.Primary
		fmt.Fprintf(w, "control\t%s\t%s\t%s\t-\t-\n",
			formatNumber(p.Control.Users), formatNumber(p.Control.Conversions), formatPercent(p.Control.Rate))
		fmt.Fprintf(w, "treatment\t%s\t%s\t%s\t%s\t%.4f\n",
			formatNumber(p.Treatment.Users), formatNumber(p.Treatment.Conversions), formatPercent(p.Treatment.Rate),
			formatLift(p.RelativeLift), p.PValue)
	case rep.Multivariant != nil:
		mv := rep.Multivariant
		fmt.Fprintf(w, "control\t%s\t%s\t%s\t-\t-\n",
			formatNumber(mv.ControlStats.Users), formatNumber(mv.ControlStats.Conversions), formatPercent(mv.ControlStats.Rate))
		for _, name := range mv.VariantOrder {
			v := mv.Variants[name]
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.4f (corrected)\n",
				name, formatNumber(v.Users), formatNumber(v.Conversions), formatPercent(v.Rate),
				formatLift(v.RelativeLift), v.PValueCorrected)
		}
	default:
		fmt.Fprintln(w, "-\t-\t-\t-\t-\t-")
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "DECISION: %s\n", strings.ToUpper(string(rep.Decision.Decision)))
	fmt.Fprintf(out, "%s\n", rep.Decision.Reason)
	for _, d := range rep.Decision.Details {
		fmt.Fprintf(out, "  - %s\n", d)
	}
	return nil
}

func formatLift(lift *float64) string {
	if lift == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.2f%%", *lift*100)
}
