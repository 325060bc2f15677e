package stats

import "math"

// Sample summarises one arm of a continuous metric.
type Sample struct {
	Mean     float64
	Variance float64
	N        float64
}

// WelchResult is the outcome of Welch's unequal-variance t-test.
type WelchResult struct {
	Diff   float64 // treatment mean − control mean
	SE     float64
	T      float64
	DOF    float64
	P      float64
	Margin float64 // half-width of the (1−alpha) interval
}

// WelchTTest compares treatment against control. Both arms need N ≥ 2.
// Zero variance in both arms gives p = 1 when the means match and 0
// otherwise, with no margin.
func WelchTTest(control, treatment Sample, alpha float64) WelchResult {
	res := WelchResult{Diff: treatment.Mean - control.Mean}

	vc := control.Variance / control.N
	vt := treatment.Variance / treatment.N
	res.SE = math.Sqrt(vc + vt)

	if res.SE == 0 {
		if control.Mean == treatment.Mean {
			res.P = 1.0
		}
		return res
	}

	res.T = res.Diff / res.SE

	den := vc*vc/(control.N-1) + vt*vt/(treatment.N-1)
	if den == 0 {
		res.DOF = control.N + treatment.N - 2
	} else {
		res.DOF = (vc + vt) * (vc + vt) / den
	}

	res.P = StudentTTwoSidedP(res.T, res.DOF)
	res.Margin = StudentTQuantile(1-alpha/2, res.DOF) * res.SE
	return res
}
