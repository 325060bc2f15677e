package analysis

import (
	"fmt"

	"github.com/headline-goat/launch-goat/internal/config"
	"github.com/headline-goat/launch-goat/internal/dataset"
	"github.com/headline-goat/launch-goat/internal/stats"
)

// Overall is the omnibus chi-square test across every arm.
type Overall struct {
	Chi2          float64 `json:"chi2_stat" yaml:"chi2_stat"`
	PValue        float64 `json:"p_value" yaml:"p_value"`
	DOF           int     `json:"dof" yaml:"dof"`
	IsSignificant bool    `json:"is_significant" yaml:"is_significant"`
}

// VariantComparison is one challenger compared against control.
type VariantComparison struct {
	Users                  int64      `json:"users" yaml:"users"`
	Conversions            int64      `json:"conversions" yaml:"conversions"`
	Rate                   float64    `json:"rate" yaml:"rate"`
	RateCI                 [2]float64 `json:"rate_ci" yaml:"rate_ci"`
	AbsoluteLift           float64    `json:"absolute_lift" yaml:"absolute_lift"`
	RelativeLift           *float64   `json:"relative_lift" yaml:"relative_lift"`
	CI95                   [2]float64 `json:"ci_95" yaml:"ci_95"`
	PValue                 float64    `json:"p_value" yaml:"p_value"`
	PValueCorrected        float64    `json:"p_value_corrected" yaml:"p_value_corrected"`
	IsSignificantCorrected bool       `json:"is_significant_corrected" yaml:"is_significant_corrected"`
}

// PairComparison compares two arms. AbsoluteLift is rate(b) − rate(a).
type PairComparison struct {
	VariantA        string  `json:"variant_a" yaml:"variant_a"`
	VariantB        string  `json:"variant_b" yaml:"variant_b"`
	AbsoluteLift    float64 `json:"absolute_lift" yaml:"absolute_lift"`
	PValue          float64 `json:"p_value" yaml:"p_value"`
	PValueCorrected float64 `json:"p_value_corrected" yaml:"p_value_corrected"`
}

// MultivariantResult is the N-variant primary analysis.
type MultivariantResult struct {
	Overall          Overall                      `json:"overall" yaml:"overall"`
	ControlStats     ArmStats                     `json:"control_stats" yaml:"control_stats"`
	Variants         map[string]VariantComparison `json:"variants" yaml:"variants"`
	VariantOrder     []string                     `json:"variant_order" yaml:"variant_order"`
	AllPairs         []PairComparison             `json:"all_pairs" yaml:"all_pairs"`
	CorrectionMethod string                       `json:"correction_method" yaml:"correction_method"`
	BestVariant      *string                      `json:"best_variant" yaml:"best_variant"`
}

// AnalyzeMultivariant runs the omnibus test, the vs-control family and the
// all-pairs family, each corrected with th.MultipleTesting.
func AnalyzeMultivariant(ds *dataset.Dataset, th config.Thresholds) (MultivariantResult, error) {
	control, ok := ds.Control()
	if !ok {
		return MultivariantResult{}, fmt.Errorf("%w: dataset has no control variant", ErrInvalidArgument)
	}
	challengers := ds.Challengers()
	if len(challengers) == 0 {
		return MultivariantResult{}, fmt.Errorf("%w: dataset has no challenger variants", ErrInvalidArgument)
	}

	res := MultivariantResult{
		ControlStats:     armOf(control).stats(th.Alpha),
		Variants:         make(map[string]VariantComparison, len(challengers)),
		VariantOrder:     make([]string, 0, len(challengers)),
		CorrectionMethod: th.MultipleTesting,
	}

	table := [][]float64{make([]float64, len(ds.Variants)), make([]float64, len(ds.Variants))}
	for i, v := range ds.Variants {
		table[0][i] = float64(v.Conversions)
		table[1][i] = float64(v.Users - v.Conversions)
	}
	chi2, p, dof := stats.ChiSquareIndependence(table)
	res.Overall = Overall{Chi2: chi2, PValue: p, DOF: dof, IsSignificant: p < th.Alpha}

	raw := make([]float64, len(challengers))
	comparisons := make([]PrimaryResult, len(challengers))
	for i, v := range challengers {
		comparisons[i] = ComparePrimary(armOf(control), armOf(v), th.Alpha)
		raw[i] = comparisons[i].PValue
	}
	corrected, err := stats.Correct(raw, th.MultipleTesting)
	if err != nil {
		return MultivariantResult{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	for i, v := range challengers {
		c := comparisons[i]
		res.Variants[v.Name] = VariantComparison{
			Users:                  v.Users,
			Conversions:            v.Conversions,
			Rate:                   c.Treatment.Rate,
			RateCI:                 c.Treatment.RateCI,
			AbsoluteLift:           c.AbsoluteLift,
			RelativeLift:           c.RelativeLift,
			CI95:                   c.CI95,
			PValue:                 c.PValue,
			PValueCorrected:        corrected[i],
			IsSignificantCorrected: corrected[i] < th.Alpha,
		}
		res.VariantOrder = append(res.VariantOrder, v.Name)
	}

	if res.AllPairs, err = allPairs(ds.Variants, th); err != nil {
		return MultivariantResult{}, err
	}
	res.BestVariant = bestVariant(res)
	return res, nil
}

// allPairs compares every K-choose-2 pair in input order.
func allPairs(variants []dataset.Variant, th config.Thresholds) ([]PairComparison, error) {
	var pairs []PairComparison
	var raw []float64
	for i := 0; i < len(variants); i++ {
		for j := i + 1; j < len(variants); j++ {
			a, b := variants[i], variants[j]
			_, p := stats.TwoProportionZTest(a.Conversions, a.Users, b.Conversions, b.Users)
			pairs = append(pairs, PairComparison{
				VariantA:     a.Name,
				VariantB:     b.Name,
				AbsoluteLift: stats.Rate(b.Conversions, b.Users) - stats.Rate(a.Conversions, a.Users),
				PValue:       p,
			})
			raw = append(raw, p)
		}
	}

	corrected, err := stats.Correct(raw, th.MultipleTesting)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	for i := range pairs {
		pairs[i].PValueCorrected = corrected[i]
	}
	return pairs, nil
}

// bestVariant picks the highest absolute lift among challengers that
// survive correction. Ties keep the earlier variant.
func bestVariant(res MultivariantResult) *string {
	if !res.Overall.IsSignificant {
		return nil
	}
	var best *string
	bestLift := 0.0
	for _, name := range res.VariantOrder {
		v := res.Variants[name]
		if !v.IsSignificantCorrected {
			continue
		}
		if best == nil || v.AbsoluteLift > bestLift {
			n := name
			best, bestLift = &n, v.AbsoluteLift
		}
	}
	return best
}
