package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// NormalCDF is Φ(x) for the standard normal.
func NormalCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

// NormalQuantile is Φ⁻¹(p) for the standard normal.
func NormalQuantile(p float64) float64 {
	return distuv.UnitNormal.Quantile(p)
}

// TwoSidedNormalP returns the two-sided p-value of a z statistic.
func TwoSidedNormalP(z float64) float64 {
	if math.IsNaN(z) {
		return 1.0
	}
	return clampProb(2 * distuv.UnitNormal.Survival(math.Abs(z)))
}

// ZCritical returns the two-sided critical value for significance level alpha,
// e.g. 1.96 for 0.05.
func ZCritical(alpha float64) float64 {
	return NormalQuantile(1 - alpha/2)
}

// StudentTTwoSidedP returns the two-sided p-value of t with nu degrees of freedom.
func StudentTTwoSidedP(t, nu float64) float64 {
	if nu <= 0 || math.IsNaN(t) {
		return 1.0
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: nu}
	return clampProb(2 * dist.Survival(math.Abs(t)))
}

// StudentTQuantile is the inverse CDF of Student's t with nu degrees of freedom.
func StudentTQuantile(p, nu float64) float64 {
	return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: nu}.Quantile(p)
}

// ChiSquareSurvival returns P(X ≥ x) for a chi-square with k degrees of freedom.
func ChiSquareSurvival(x float64, k int) float64 {
	if k <= 0 {
		return 1.0
	}
	return clampProb(distuv.ChiSquared{K: float64(k)}.Survival(x))
}

func clampProb(p float64) float64 {
	switch {
	case math.IsNaN(p):
		return 1.0
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
