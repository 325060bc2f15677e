package sequential

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/headline-goat/launch-goat/internal/stats"
)

// Decision is the outcome of a sequential check.
type Decision string

const (
	RejectNull   Decision = "reject_null"
	FailToReject Decision = "fail_to_reject"
	Continue     Decision = "continue"
)

// Plan is the fixed design of a sequential experiment.
type Plan struct {
	MaxLooks      int            `json:"max_looks" yaml:"max_looks" validate:"gte=1"`
	Alpha         float64        `json:"alpha" yaml:"alpha" validate:"gt=0,lt=1"`
	BoundaryType  BoundaryType   `json:"boundary_type" yaml:"boundary_type"`
	PreviousLooks []PreviousLook `json:"previous_looks,omitempty" yaml:"previous_looks,omitempty"`
}

// CheckResult is the verdict at the current look.
type CheckResult struct {
	CanStop              bool     `json:"can_stop" yaml:"can_stop"`
	Decision             Decision `json:"decision" yaml:"decision"`
	ZStat                float64  `json:"z_stat" yaml:"z_stat"`
	ZBoundary            float64  `json:"z_boundary" yaml:"z_boundary"`
	AlphaSpentThisLook   float64  `json:"alpha_spent_this_look" yaml:"alpha_spent_this_look"`
	CumulativeAlphaSpent float64  `json:"cumulative_alpha_spent" yaml:"cumulative_alpha_spent"`
	InfoFraction         float64  `json:"info_fraction" yaml:"info_fraction"`
	CurrentLook          int      `json:"current_look" yaml:"current_look"`
	MaxLooks             int      `json:"max_looks" yaml:"max_looks"`
	Message              string   `json:"message" yaml:"message"`
}

// CheckSequential compares |z| against the boundary at currentLook.
func CheckSequential(z float64, currentLook int, infoFraction float64, plan Plan) (CheckResult, error) {
	if currentLook < 1 || currentLook > plan.MaxLooks {
		return CheckResult{}, fmt.Errorf("%w: current_look must be in [1, %d], got %d", ErrInvalidArgument, plan.MaxLooks, currentLook)
	}

	fractions := BuildInfoFractions(currentLook, plan.MaxLooks, infoFraction, plan.PreviousLooks)
	looks, err := CalculateBoundaries(plan.MaxLooks, fractions, plan.Alpha, plan.BoundaryType)
	if err != nil {
		return CheckResult{}, err
	}
	b := looks[currentLook-1]

	res := CheckResult{
		ZStat:                z,
		ZBoundary:            b.ZBoundary,
		AlphaSpentThisLook:   b.AlphaSpent,
		CumulativeAlphaSpent: b.CumulativeAlpha,
		InfoFraction:         infoFraction,
		CurrentLook:          currentLook,
		MaxLooks:             plan.MaxLooks,
	}

	absZ := math.Abs(z)
	switch {
	case absZ >= b.ZBoundary:
		res.CanStop, res.Decision = true, RejectNull
		res.Message = fmt.Sprintf("Look %d/%d: |z| = %.3f >= boundary %.3f. Significant difference detected; the experiment can stop early.",
			currentLook, plan.MaxLooks, absZ, b.ZBoundary)
	case currentLook == plan.MaxLooks:
		res.CanStop, res.Decision = true, FailToReject
		res.Message = fmt.Sprintf("Look %d/%d (final): |z| = %.3f < boundary %.3f. No significant difference detected.",
			currentLook, plan.MaxLooks, absZ, b.ZBoundary)
	default:
		res.Decision = Continue
		res.Message = fmt.Sprintf("Look %d/%d: |z| = %.3f < boundary %.3f. Not enough evidence yet; keep collecting data.",
			currentLook, plan.MaxLooks, absZ, b.ZBoundary)
	}
	return res, nil
}

// Input is the raw data for one sequential analysis.
type Input struct {
	ControlUsers         int64 `json:"control_users" validate:"gte=0"`
	ControlConversions   int64 `json:"control_conversions" validate:"gte=0,ltefield=ControlUsers"`
	TreatmentUsers       int64 `json:"treatment_users" validate:"gte=0"`
	TreatmentConversions int64 `json:"treatment_conversions" validate:"gte=0,ltefield=TreatmentUsers"`
	// TargetSampleSize is the planned total across both arms.
	TargetSampleSize int64 `json:"target_sample_size" validate:"gte=0"`
	CurrentLook      int   `json:"current_look" validate:"gte=1"`
	Plan
}

var validate = validator.New()

// Validate checks the field ranges of in.
func (in Input) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

// Primary is the fixed-horizon view of the same counts.
type Primary struct {
	ControlRate   float64  `json:"control_rate" yaml:"control_rate"`
	TreatmentRate float64  `json:"treatment_rate" yaml:"treatment_rate"`
	AbsoluteLift  float64  `json:"absolute_lift" yaml:"absolute_lift"`
	RelativeLift  *float64 `json:"relative_lift" yaml:"relative_lift"`
	ZStat         float64  `json:"z_stat" yaml:"z_stat"`
	PValue        float64  `json:"p_value" yaml:"p_value"`
	IsSignificant bool     `json:"is_significant" yaml:"is_significant"`
}

// Progress reports how much of the planned sample has been collected.
type Progress struct {
	CurrentSample int64   `json:"current_sample" yaml:"current_sample"`
	TargetSample  int64   `json:"target_sample" yaml:"target_sample"`
	InfoFraction  float64 `json:"info_fraction" yaml:"info_fraction"`
	Percentage    float64 `json:"percentage" yaml:"percentage"`
}

// Analysis is the full sequential report.
type Analysis struct {
	Result     CheckResult `json:"sequential_result" yaml:"sequential_result"`
	Primary    Primary     `json:"primary_result" yaml:"primary_result"`
	Boundaries []Look      `json:"boundaries" yaml:"boundaries"`
	Progress   Progress    `json:"progress" yaml:"progress"`
}

// InfoFraction is current/target capped at 1. With no data yet it is a tiny
// positive value; with no target it is 1.
func InfoFraction(current, target int64) float64 {
	switch {
	case target > 0 && current > 0:
		return math.Min(float64(current)/float64(target), 1)
	case target > 0:
		return 1e-6
	default:
		return 1
	}
}

// AnalyzeSequential computes the pooled z statistic from raw counts and
// checks it against the boundary at the current look.
func AnalyzeSequential(in Input) (Analysis, error) {
	current := in.ControlUsers + in.TreatmentUsers
	t := InfoFraction(current, in.TargetSampleSize)

	rc := stats.Rate(in.ControlConversions, in.ControlUsers)
	rt := stats.Rate(in.TreatmentConversions, in.TreatmentUsers)
	z, p := stats.TwoProportionZTest(in.ControlConversions, in.ControlUsers, in.TreatmentConversions, in.TreatmentUsers)

	primary := Primary{
		ControlRate:   rc,
		TreatmentRate: rt,
		AbsoluteLift:  rt - rc,
		ZStat:         z,
		PValue:        p,
		IsSignificant: p < in.Alpha,
	}
	if rc > 0 {
		rel := rt/rc - 1
		primary.RelativeLift = &rel
	}

	res, err := CheckSequential(z, in.CurrentLook, t, in.Plan)
	if err != nil {
		return Analysis{}, err
	}

	fractions := BuildInfoFractions(in.CurrentLook, in.MaxLooks, t, in.PreviousLooks)
	looks, err := CalculateBoundaries(in.MaxLooks, fractions, in.Alpha, in.BoundaryType)
	if err != nil {
		return Analysis{}, err
	}

	return Analysis{
		Result:     res,
		Primary:    primary,
		Boundaries: looks,
		Progress: Progress{
			CurrentSample: current,
			TargetSample:  in.TargetSampleSize,
			InfoFraction:  t,
			Percentage:    math.Round(t*1000) / 10,
		},
	}, nil
}
