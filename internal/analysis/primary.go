// Package analysis computes primary-metric, guardrail and continuous-metric
// inference for two-variant and N-variant experiments.
package analysis

import (
	"errors"
	"fmt"

	"github.com/headline-goat/launch-goat/internal/config"
	"github.com/headline-goat/launch-goat/internal/dataset"
	"github.com/headline-goat/launch-goat/internal/stats"
)

// ErrInvalidArgument marks caller contract violations.
var ErrInvalidArgument = errors.New("invalid argument")

// Arm is an arm's conversion counts.
type Arm struct {
	Users       int64 `json:"users" yaml:"users"`
	Conversions int64 `json:"conversions" yaml:"conversions"`
}

// ArmStats is an Arm with its conversion rate and the Wilson interval of
// that rate at confidence 1 − alpha.
type ArmStats struct {
	Users       int64      `json:"users" yaml:"users"`
	Conversions int64      `json:"conversions" yaml:"conversions"`
	Rate        float64    `json:"rate" yaml:"rate"`
	RateCI      [2]float64 `json:"rate_ci" yaml:"rate_ci"`
}

func (a Arm) stats(alpha float64) ArmStats {
	lo, hi := stats.WilsonInterval(a.Conversions, a.Users, 1-alpha)
	return ArmStats{
		Users:       a.Users,
		Conversions: a.Conversions,
		Rate:        stats.Rate(a.Conversions, a.Users),
		RateCI:      [2]float64{lo, hi},
	}
}

func armOf(v dataset.Variant) Arm {
	return Arm{Users: v.Users, Conversions: v.Conversions}
}

// PrimaryResult is the two-variant primary-metric comparison.
type PrimaryResult struct {
	Control       ArmStats   `json:"control" yaml:"control"`
	Treatment     ArmStats   `json:"treatment" yaml:"treatment"`
	AbsoluteLift  float64    `json:"absolute_lift" yaml:"absolute_lift"`
	RelativeLift  *float64   `json:"relative_lift" yaml:"relative_lift"`
	CI95          [2]float64 `json:"ci_95" yaml:"ci_95"`
	ZStat         float64    `json:"z_stat" yaml:"z_stat"`
	PValue        float64    `json:"p_value" yaml:"p_value"`
	IsSignificant bool       `json:"is_significant" yaml:"is_significant"`
}

// relativeLift returns treatment/control − 1, or nil when control is 0.
func relativeLift(control, treatment float64) *float64 {
	if control == 0 {
		return nil
	}
	v := treatment/control - 1
	return &v
}

// ComparePrimary compares a treatment arm against control.
func ComparePrimary(control, treatment Arm, alpha float64) PrimaryResult {
	c, t := control.stats(alpha), treatment.stats(alpha)

	z, p := stats.TwoProportionZTest(control.Conversions, control.Users, treatment.Conversions, treatment.Users)
	lo, hi := stats.AgrestiCaffo(control.Conversions, control.Users, treatment.Conversions, treatment.Users, alpha)

	return PrimaryResult{
		Control:       c,
		Treatment:     t,
		AbsoluteLift:  t.Rate - c.Rate,
		RelativeLift:  relativeLift(c.Rate, t.Rate),
		CI95:          [2]float64{lo, hi},
		ZStat:         z,
		PValue:        p,
		IsSignificant: p < alpha,
	}
}

// AnalyzePrimary runs the two-variant primary analysis. The dataset must
// contain control and treatment rows.
func AnalyzePrimary(ds *dataset.Dataset, th config.Thresholds) (PrimaryResult, error) {
	control, treatment, err := controlAndTreatment(ds)
	if err != nil {
		return PrimaryResult{}, err
	}
	return ComparePrimary(armOf(control), armOf(treatment), th.Alpha), nil
}

func controlAndTreatment(ds *dataset.Dataset) (dataset.Variant, dataset.Variant, error) {
	control, ok := ds.Control()
	if !ok {
		return dataset.Variant{}, dataset.Variant{}, fmt.Errorf("%w: dataset has no control variant", ErrInvalidArgument)
	}
	treatment, ok := ds.Find(dataset.Treatment)
	if !ok {
		return dataset.Variant{}, dataset.Variant{}, fmt.Errorf("%w: dataset has no treatment variant", ErrInvalidArgument)
	}
	return control, treatment, nil
}
