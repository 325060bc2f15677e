package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/headline-goat/launch-goat/internal/bayes"
	"github.com/headline-goat/launch-goat/internal/dataset"
	"github.com/headline-goat/launch-goat/internal/health"
	"github.com/headline-goat/launch-goat/internal/report"
	"github.com/headline-goat/launch-goat/internal/sequential"
)

func init() {
	rootCmd.AddCommand(newAnalyzeCmd(), newHealthCmd(), newBayesCmd())
}

// runFlags are the options shared by commands that run a full analysis.
type runFlags struct {
	name       string
	guardrails []string
	split      []float64
	noBayes    bool

	targetSampleSize int64
	look             int
	maxLooks         int
	boundary         string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "experiment name (defaults to the file name)")
	cmd.Flags().StringSliceVarP(&f.guardrails, "guardrails", "g", nil, "guardrail columns (default: auto-detect)")
	cmd.Flags().Float64SliceVar(&f.split, "split", nil, "expected traffic split, e.g. 0.5,0.5 (default: equal)")
	cmd.Flags().BoolVar(&f.noBayes, "no-bayes", false, "skip Bayesian insights")
	cmd.Flags().Int64Var(&f.targetSampleSize, "target-sample-size", 0, "planned total sample for a sequential check")
	cmd.Flags().IntVar(&f.look, "look", 0, "current look number for a sequential check")
	cmd.Flags().IntVar(&f.maxLooks, "max-looks", 0, "planned number of looks for a sequential check")
	cmd.Flags().StringVar(&f.boundary, "boundary", string(sequential.OBrienFleming), "sequential boundary: obrien_fleming or pocock")
}

func (f *runFlags) options(file string) (report.Options, error) {
	opts := report.Options{
		Name:         f.name,
		Guardrails:   f.guardrails,
		Split:        f.split,
		SkipBayesian: f.noBayes,
	}
	if opts.Name == "" && file != "" {
		opts.Name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}
	if f.look > 0 || f.maxLooks > 0 {
		bt, err := sequential.ParseBoundaryType(f.boundary)
		if err != nil {
			return report.Options{}, err
		}
		opts.Sequential = &report.SequentialOptions{
			TargetSampleSize: f.targetSampleSize,
			CurrentLook:      f.look,
			Plan:             sequential.Plan{MaxLooks: f.maxLooks, Alpha: cfg.Thresholds.Alpha, BoundaryType: bt},
		}
	}
	return opts, nil
}

func newAnalyzeCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze an experiment results file",
		Long: `Run the full analysis over a CSV or XLSX file with one row per variant:
health check, primary metric, guardrails, continuous metrics, Bayesian
insights and the launch decision.

Required columns: variant, users, conversions. Other count columns are
guardrails; <metric>_sum and <metric>_sum_sq pairs are continuous metrics.

Examples:
  lg analyze results.csv
  lg analyze results.xlsx --guardrails error_count,crash_count --format yaml
  lg analyze results.csv --split 0.6,0.4
  lg analyze results.csv --look 2 --max-looks 4 --target-sample-size 20000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := loadTable(args[0])
			if err != nil {
				return err
			}
			opts, err := flags.options(args[0])
			if err != nil {
				return err
			}
			rep, err := newAnalyzer().Run(cmd.Context(), t, opts)
			if err != nil {
				return err
			}
			return printResult(cmd, rep)
		},
	}
	flags.register(cmd)
	return cmd
}

func newHealthCmd() *cobra.Command {
	var split []float64

	cmd := &cobra.Command{
		Use:   "health <file>",
		Short: "Check data health (schema and sample ratio mismatch)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := loadTable(args[0])
			if err != nil {
				return err
			}
			res, err := health.RunHealthCheck(t, split, cfg.Thresholds)
			if err != nil {
				return err
			}
			return printResult(cmd, res)
		},
	}
	cmd.Flags().Float64SliceVar(&split, "split", nil, "expected traffic split (default: equal)")
	return cmd
}

func newBayesCmd() *cobra.Command {
	var (
		guardrails []string
		split      []float64
	)

	cmd := &cobra.Command{
		Use:   "bayes <file>",
		Short: "Show Bayesian insights (informational only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := loadTable(args[0])
			if err != nil {
				return err
			}
			hc, err := health.RunHealthCheck(t, split, cfg.Thresholds)
			if err != nil {
				return err
			}
			if hc.OverallStatus == health.Blocked {
				if err := printResult(cmd, hc); err != nil {
					return err
				}
				return fmt.Errorf("%s failed the health check: %s", args[0], blockedReason(hc))
			}

			ds, err := dataset.New(t, guardrails)
			if err != nil {
				return err
			}
			if _, ok := ds.Control(); !ok {
				return fmt.Errorf("%s has no control variant", args[0])
			}
			insights, err := bayes.Analyze(ds, cfg.Thresholds)
			if err != nil {
				return err
			}
			return printResult(cmd, insights)
		},
	}
	cmd.Flags().StringSliceVarP(&guardrails, "guardrails", "g", nil, "guardrail columns (default: auto-detect)")
	cmd.Flags().Float64SliceVar(&split, "split", nil, "expected traffic split (default: equal)")
	return cmd
}

// blockedReason is the first issue behind a Blocked health result.
func blockedReason(hc health.Result) string {
	if hc.Schema.Status == health.Blocked && len(hc.Schema.Issues) > 0 {
		return hc.Schema.Issues[len(hc.Schema.Issues)-1]
	}
	if hc.SRM != nil {
		return hc.SRM.Message
	}
	return "blocked"
}
