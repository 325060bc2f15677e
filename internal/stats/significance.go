package stats

import "math"

// Rate returns conversions/users, or 0 when users is 0.
func Rate(conversions, users int64) float64 {
	if users <= 0 {
		return 0
	}
	return float64(conversions) / float64(users)
}

// TwoProportionZTest runs a pooled two-sided z-test of treatment against
// control. It returns z = (rate_t − rate_c)/SE and its p-value.
// Empty arms and a degenerate pooled rate (0 or 1) yield (0, 1).
func TwoProportionZTest(controlConv, controlUsers, treatmentConv, treatmentUsers int64) (z, p float64) {
	if controlUsers <= 0 || treatmentUsers <= 0 {
		return 0, 1.0
	}

	pC := Rate(controlConv, controlUsers)
	pT := Rate(treatmentConv, treatmentUsers)
	pooled := float64(controlConv+treatmentConv) / float64(controlUsers+treatmentUsers)
	if pooled <= 0 || pooled >= 1 {
		return 0, 1.0
	}

	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(controlUsers) + 1/float64(treatmentUsers)))
	if se <= 0 {
		return 0, 1.0
	}

	z = (pT - pC) / se
	return z, TwoSidedNormalP(z)
}

// AgrestiCaffo returns the (1−alpha) confidence interval for
// rate_t − rate_c, adding one success and one failure to each arm.
// Either arm being empty yields [0, 0].
func AgrestiCaffo(controlConv, controlUsers, treatmentConv, treatmentUsers int64, alpha float64) (lower, upper float64) {
	if controlUsers <= 0 || treatmentUsers <= 0 {
		return 0, 0
	}

	nC := float64(controlUsers) + 2
	nT := float64(treatmentUsers) + 2
	pC := (float64(controlConv) + 1) / nC
	pT := (float64(treatmentConv) + 1) / nT

	diff := pT - pC
	se := math.Sqrt(pC*(1-pC)/nC + pT*(1-pT)/nT)
	margin := ZCritical(alpha) * se

	return diff - margin, diff + margin
}
