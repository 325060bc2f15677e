package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/headline-goat/launch-goat/internal/stats"
)

// PowerRequest describes a sample-size question. For conversion metrics
// MDE is relative to Baseline; for continuous metrics it is absolute and
// StdDev is required. Ratio is treatment size over control size.
type PowerRequest struct {
	Baseline float64 `json:"baseline_rate" validate:"omitempty,gte=0,lte=1"`
	StdDev   float64 `json:"std_dev" validate:"omitempty,gte=0"`
	MDE      float64 `json:"mde"`
	Alpha    float64 `json:"alpha" validate:"gt=0,lt=1"`
	Power    float64 `json:"power" validate:"gt=0,lt=1"`
	Ratio    float64 `json:"ratio" validate:"gt=0"`
}

// DefaultPowerRequest returns alpha 0.05, power 0.8 and an even split.
func DefaultPowerRequest() PowerRequest {
	return PowerRequest{Alpha: 0.05, Power: 0.8, Ratio: 1}
}

func (r PowerRequest) check() error {
	if r.Alpha <= 0 || r.Alpha >= 1 {
		return fmt.Errorf("%w: alpha must be in (0,1), got %g", ErrInvalidArgument, r.Alpha)
	}
	if r.Power <= 0 || r.Power >= 1 {
		return fmt.Errorf("%w: power must be in (0,1), got %g", ErrInvalidArgument, r.Power)
	}
	if r.Ratio <= 0 {
		return fmt.Errorf("%w: ratio must be positive, got %g", ErrInvalidArgument, r.Ratio)
	}
	return nil
}

// SampleSizeConversion returns the control-arm sample size needed to detect
// a relative lift of r.MDE on r.Baseline with a two-sided z-test on Cohen's
// h. A baseline outside (0,1) or a zero effect returns 0.
func SampleSizeConversion(r PowerRequest) (int64, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	if r.Baseline <= 0 || r.Baseline >= 1 || r.MDE == 0 {
		return 0, nil
	}

	p1 := r.Baseline
	p2 := math.Min(1, math.Max(0, p1*(1+r.MDE)))
	h := math.Abs(2*math.Asin(math.Sqrt(p2)) - 2*math.Asin(math.Sqrt(p1)))
	if h == 0 {
		return 0, nil
	}

	zc := stats.ZCritical(r.Alpha)
	power := func(n1 float64) float64 {
		shift := h * math.Sqrt(effectiveN(n1, r.Ratio))
		return stats.NormalCDF(shift-zc) + stats.NormalCDF(-shift-zc)
	}
	return solveN(power, r.Power), nil
}

// SampleSizeContinuous returns the control-arm sample size needed to detect
// an absolute difference of r.MDE given r.StdDev with a two-sided t-test.
func SampleSizeContinuous(r PowerRequest) (int64, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	if r.MDE == 0 {
		return 0, nil
	}
	if r.StdDev <= 0 {
		return 0, fmt.Errorf("%w: std_dev must be positive, got %g", ErrInvalidArgument, r.StdDev)
	}

	d := math.Abs(r.MDE) / r.StdDev
	power := func(n1 float64) float64 {
		df := n1 + n1*r.Ratio - 2
		if df <= 0 {
			return 0
		}
		t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
		tc := t.Quantile(1 - r.Alpha/2)
		nc := d * math.Sqrt(effectiveN(n1, r.Ratio))
		return t.Survival(tc-nc) + t.CDF(-tc-nc)
	}
	return solveN(power, r.Power), nil
}

func effectiveN(n1, ratio float64) float64 {
	return 1 / (1/n1 + 1/(n1*ratio))
}

// solveN bisects for the smallest n with power(n) ≥ target. power must be
// non-decreasing in n.
func solveN(power func(float64) float64, target float64) int64 {
	lo, hi := 2.0, 4.0
	for power(hi) < target {
		lo, hi = hi, hi*2
		if hi > 1e13 {
			return int64(math.Ceil(hi))
		}
	}
	for hi-lo > 1e-6 {
		mid := (lo + hi) / 2
		if power(mid) < target {
			lo = mid
		} else {
			hi = mid
		}
	}
	return int64(math.Ceil(hi))
}
