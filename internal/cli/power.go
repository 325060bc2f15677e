package cli

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/headline-goat/launch-goat/internal/analysis"
)

func init() {
	rootCmd.AddCommand(newPowerCmd())
}

type powerResult struct {
	MetricType          string `json:"metric_type" yaml:"metric_type"`
	ControlSampleSize   int64  `json:"control_sample_size" yaml:"control_sample_size"`
	TreatmentSampleSize int64  `json:"treatment_sample_size" yaml:"treatment_sample_size"`
	TotalSampleSize     int64  `json:"total_sample_size" yaml:"total_sample_size"`
}

func newPowerCmd() *cobra.Command {
	req := analysis.DefaultPowerRequest()

	cmd := &cobra.Command{
		Use:   "power conversion|continuous",
		Short: "Estimate the sample size needed to detect an effect",
		Long: `Estimate the per-group sample size for a two-sided test.

For conversion metrics --mde is relative to --baseline. For continuous
metrics --mde is absolute and --std-dev is required.

Examples:
  lg power conversion --baseline 0.2 --mde 0.1
  lg power continuous --std-dev 15 --mde 1.5 --power 0.9`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"conversion", "continuous"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var n int64
			var err error
			switch args[0] {
			case "conversion":
				n, err = analysis.SampleSizeConversion(req)
			case "continuous":
				n, err = analysis.SampleSizeContinuous(req)
			default:
				return fmt.Errorf("unknown metric type %q: use conversion or continuous", args[0])
			}
			if err != nil {
				return err
			}

			treatment := int64(math.Ceil(float64(n) * req.Ratio))
			return printResult(cmd, powerResult{
				MetricType:          args[0],
				ControlSampleSize:   n,
				TreatmentSampleSize: treatment,
				TotalSampleSize:     n + treatment,
			})
		},
	}

	f := cmd.Flags()
	f.Float64Var(&req.Baseline, "baseline", 0, "baseline conversion rate")
	f.Float64Var(&req.StdDev, "std-dev", 0, "standard deviation of a continuous metric")
	f.Float64Var(&req.MDE, "mde", 0, "minimum detectable effect")
	f.Float64Var(&req.Alpha, "alpha", req.Alpha, "significance level")
	f.Float64Var(&req.Power, "power", req.Power, "target power")
	f.Float64Var(&req.Ratio, "ratio", req.Ratio, "treatment size over control size")
	return cmd
}
