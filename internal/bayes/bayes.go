// Package bayes estimates posterior win probabilities by Monte-Carlo
// simulation. Its output is informational only.
package bayes

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/headline-goat/launch-goat/internal/analysis"
	"github.com/headline-goat/launch-goat/internal/config"
)

// Posterior is a Beta(Alpha, Beta) posterior.
type Posterior struct {
	Alpha float64 `json:"alpha" yaml:"alpha"`
	Beta  float64 `json:"beta" yaml:"beta"`
}

// ErrInvalidArm is returned for counts that give a non-positive Beta
// shape: negative counts or conversions above users.
var ErrInvalidArm = errors.New("invalid arm counts")

// PosteriorOf returns Beta(1+conversions, 1+users−conversions).
func PosteriorOf(a analysis.Arm) (Posterior, error) {
	if a.Users < 0 || a.Conversions < 0 || a.Conversions > a.Users {
		return Posterior{}, fmt.Errorf("%w: %d conversions over %d users", ErrInvalidArm, a.Conversions, a.Users)
	}
	return Posterior{Alpha: float64(1 + a.Conversions), Beta: float64(1 + a.Users - a.Conversions)}, nil
}

// Comparison is P(treatment > control) and the expected loss of shipping
// treatment.
type Comparison struct {
	ProbTreatmentBeatsControl float64    `json:"prob_treatment_beats_control" yaml:"prob_treatment_beats_control"`
	ExpectedLoss              float64    `json:"expected_loss" yaml:"expected_loss"`
	ControlPosterior          *Posterior `json:"control_posterior,omitempty" yaml:"control_posterior,omitempty"`
	TreatmentPosterior        *Posterior `json:"treatment_posterior,omitempty" yaml:"treatment_posterior,omitempty"`
}

// newRand returns a generator private to one call.
func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

func draw(d interface{ Rand() float64 }, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = d.Rand()
	}
	return out
}

// compare returns the win fraction of t over c and mean(max(c−t, 0)).
func compare(c, t []float64) (float64, float64) {
	wins := 0
	loss := make([]float64, len(c))
	for i := range c {
		if t[i] > c[i] {
			wins++
		}
		loss[i] = math.Max(c[i]-t[i], 0)
	}
	mean, err := stats.Mean(loss)
	if err != nil {
		mean = 0
	}
	return float64(wins) / float64(len(c)), mean
}

func samples(th config.Thresholds) int {
	if th.BayesSamples <= 0 {
		return config.Default().BayesSamples
	}
	return th.BayesSamples
}

// BetaBinomial compares two conversion arms under uniform Beta(1,1)
// priors.
func BetaBinomial(control, treatment analysis.Arm, th config.Thresholds) (Comparison, error) {
	pc, err := PosteriorOf(control)
	if err != nil {
		return Comparison{}, fmt.Errorf("control: %w", err)
	}
	pt, err := PosteriorOf(treatment)
	if err != nil {
		return Comparison{}, fmt.Errorf("treatment: %w", err)
	}

	n := samples(th)

	rng := newRand(th.BayesSeed)
	sc := draw(distuv.Beta{Alpha: pc.Alpha, Beta: pc.Beta, Src: rng}, n)
	st := draw(distuv.Beta{Alpha: pt.Alpha, Beta: pt.Beta, Src: rng}, n)

	prob, loss := compare(sc, st)
	return Comparison{
		ProbTreatmentBeatsControl: prob,
		ExpectedLoss:              loss,
		ControlPosterior:          &pc,
		TreatmentPosterior:        &pt,
	}, nil
}

// Continuous compares two arms' means, each approximated as
// Normal(mean, standard error). When both standard errors are 0 the
// result is decided by the means alone.
func Continuous(control, treatment analysis.Sufficient, th config.Thresholds) Comparison {
	mc, mt := control.Mean(), treatment.Mean()
	sec := control.StdErr(math.Inf(1))
	set := treatment.StdErr(math.Inf(1))

	if sec == 0 && set == 0 {
		prob := 0.0
		if mt > mc {
			prob = 1.0
		}
		return Comparison{ProbTreatmentBeatsControl: prob}
	}

	n := samples(th)
	rng := newRand(th.BayesSeed)
	sc := draw(distuv.Normal{Mu: mc, Sigma: sec, Src: rng}, n)
	st := draw(distuv.Normal{Mu: mt, Sigma: set, Src: rng}, n)

	prob, loss := compare(sc, st)
	return Comparison{ProbTreatmentBeatsControl: prob, ExpectedLoss: loss}
}
