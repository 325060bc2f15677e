package cli

import (
	"github.com/spf13/cobra"

	"github.com/headline-goat/launch-goat/internal/sequential"
)

func init() {
	rootCmd.AddCommand(newSequentialCmd())
}

func newSequentialCmd() *cobra.Command {
	var (
		in       sequential.Input
		boundary string
		alpha    float64
	)

	cmd := &cobra.Command{
		Use:   "sequential",
		Short: "Check a group-sequential experiment at an interim look",
		Long: `Compare the current z statistic against an alpha-spending boundary.

Example:
  lg sequential --control-users 5000 --control-conversions 500 \
    --treatment-users 5000 --treatment-conversions 600 \
    --target-sample-size 20000 --look 2 --max-looks 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bt, err := sequential.ParseBoundaryType(boundary)
			if err != nil {
				return err
			}
			in.BoundaryType = bt
			in.Alpha = alpha
			if in.Alpha == 0 {
				in.Alpha = cfg.Thresholds.Alpha
			}
			if err := in.Validate(); err != nil {
				return err
			}

			res, err := sequential.AnalyzeSequential(in)
			if err != nil {
				return err
			}
			return printResult(cmd, res)
		},
	}

	f := cmd.Flags()
	f.Int64Var(&in.ControlUsers, "control-users", 0, "users in control")
	f.Int64Var(&in.ControlConversions, "control-conversions", 0, "conversions in control")
	f.Int64Var(&in.TreatmentUsers, "treatment-users", 0, "users in treatment")
	f.Int64Var(&in.TreatmentConversions, "treatment-conversions", 0, "conversions in treatment")
	f.Int64Var(&in.TargetSampleSize, "target-sample-size", 0, "planned total sample across both arms")
	f.IntVar(&in.CurrentLook, "look", 1, "current look number")
	f.IntVar(&in.MaxLooks, "max-looks", 5, "planned number of looks")
	f.Float64Var(&alpha, "alpha", 0, "overall alpha (default: thresholds.alpha)")
	f.StringVar(&boundary, "boundary", string(sequential.OBrienFleming), "boundary: obrien_fleming or pocock")
	return cmd
}
