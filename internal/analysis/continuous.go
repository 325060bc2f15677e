package analysis

import (
	"fmt"
	"math"

	"github.com/headline-goat/launch-goat/internal/config"
	"github.com/headline-goat/launch-goat/internal/dataset"
	"github.com/headline-goat/launch-goat/internal/stats"
)

// Invalid-result reasons.
const (
	ReasonInsufficientData = "Insufficient data (n < 2)"
	ReasonInvalidVariance  = "Invalid variance (checksum failed)"
)

// Sufficient is an arm's sufficient statistics for a continuous metric.
type Sufficient struct {
	N     float64 `json:"n" yaml:"n"`
	Sum   float64 `json:"sum" yaml:"sum"`
	SumSq float64 `json:"sum_sq" yaml:"sum_sq"`
}

// Mean returns Sum/N, or 0 when N is 0.
func (s Sufficient) Mean() float64 {
	if s.N <= 0 {
		return 0
	}
	return s.Sum / s.N
}

// Variance returns the sample variance. Small negative artifacts down to
// −tolerance clamp to 0; anything below that is reported as not ok.
func (s Sufficient) Variance(tolerance float64) (float64, bool) {
	if s.N < 2 {
		return 0, false
	}
	ss := s.SumSq - s.Sum*s.Sum/s.N
	if ss < -tolerance {
		return 0, false
	}
	return math.Max(0, ss) / (s.N - 1), true
}

// StdErr returns the standard error of the mean, or 0 when undefined.
func (s Sufficient) StdErr(tolerance float64) float64 {
	v, ok := s.Variance(tolerance)
	if !ok {
		return 0
	}
	return math.Sqrt(v / s.N)
}

// ContinuousResult is a continuous metric compared between two arms.
type ContinuousResult struct {
	MetricName    string     `json:"metric_name" yaml:"metric_name"`
	Variant       string     `json:"variant,omitempty" yaml:"variant,omitempty"`
	IsValid       bool       `json:"is_valid" yaml:"is_valid"`
	Reason        string     `json:"reason,omitempty" yaml:"reason,omitempty"`
	ControlMean   float64    `json:"control_mean" yaml:"control_mean"`
	TreatmentMean float64    `json:"treatment_mean" yaml:"treatment_mean"`
	AbsoluteLift  float64    `json:"absolute_lift" yaml:"absolute_lift"`
	RelativeLift  *float64   `json:"relative_lift" yaml:"relative_lift"`
	PValue        float64    `json:"p_value" yaml:"p_value"`
	CI95          [2]float64 `json:"ci_95" yaml:"ci_95"`
	IsSignificant bool       `json:"is_significant" yaml:"is_significant"`
}

func invalidContinuous(name, reason string) ContinuousResult {
	return ContinuousResult{MetricName: name, Reason: reason, PValue: 1.0}
}

// CompareContinuous runs Welch's t-test from sufficient statistics.
func CompareContinuous(name string, control, treatment Sufficient, th config.Thresholds) ContinuousResult {
	if control.N < 2 || treatment.N < 2 {
		return invalidContinuous(name, ReasonInsufficientData)
	}
	vc, okC := control.Variance(th.VarianceTolerance)
	vt, okT := treatment.Variance(th.VarianceTolerance)
	if !okC || !okT {
		return invalidContinuous(name, ReasonInvalidVariance)
	}

	mc, mt := control.Mean(), treatment.Mean()
	w := stats.WelchTTest(
		stats.Sample{Mean: mc, Variance: vc, N: control.N},
		stats.Sample{Mean: mt, Variance: vt, N: treatment.N},
		th.Alpha,
	)

	return ContinuousResult{
		MetricName:    name,
		IsValid:       true,
		ControlMean:   mc,
		TreatmentMean: mt,
		AbsoluteLift:  w.Diff,
		RelativeLift:  relativeLift(mc, mt),
		PValue:        w.P,
		CI95:          [2]float64{w.Diff - w.Margin, w.Diff + w.Margin},
		IsSignificant: w.P < th.Alpha,
	}
}

// SufficientFor reads metric m's sufficient statistics from a variant.
// N is the arm's users.
func SufficientFor(v dataset.Variant, m dataset.ContinuousMetric) (Sufficient, error) {
	sum, err := v.Float(m.SumColumn)
	if err != nil {
		return Sufficient{}, err
	}
	sq, err := v.Float(m.SumSqColumn)
	if err != nil {
		return Sufficient{}, err
	}
	return Sufficient{N: float64(v.Users), Sum: sum, SumSq: sq}, nil
}

// AnalyzeContinuous compares every continuous metric in the dataset. In a
// two-variant dataset treatment is compared against control; otherwise
// every challenger is, with Variant set.
func AnalyzeContinuous(ds *dataset.Dataset, th config.Thresholds) ([]ContinuousResult, error) {
	control, ok := ds.Control()
	if !ok {
		return nil, fmt.Errorf("%w: dataset has no control variant", ErrInvalidArgument)
	}
	multi := ds.IsMultivariant()

	var out []ContinuousResult
	for _, m := range ds.Schema.Continuous {
		for _, v := range ds.Challengers() {
			res := compareMetric(m, control, v, th)
			if multi {
				res.Variant = v.Name
			}
			out = append(out, res)
		}
	}
	return out, nil
}

func compareMetric(m dataset.ContinuousMetric, control, treatment dataset.Variant, th config.Thresholds) ContinuousResult {
	c, err := SufficientFor(control, m)
	if err != nil {
		return invalidContinuous(m.Name, err.Error())
	}
	t, err := SufficientFor(treatment, m)
	if err != nil {
		return invalidContinuous(m.Name, err.Error())
	}
	return CompareContinuous(m.Name, c, t, th)
}
