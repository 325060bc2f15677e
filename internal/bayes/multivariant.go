package bayes

import (
	"fmt"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/headline-goat/launch-goat/internal/analysis"
	"github.com/headline-goat/launch-goat/internal/config"
	"github.com/headline-goat/launch-goat/internal/dataset"
)

// NamedArm is an arm with its variant name.
type NamedArm struct {
	Name string
	analysis.Arm
}

// VariantInsight is one challenger against control.
type VariantInsight struct {
	ProbBeatsControl float64   `json:"prob_beats_control" yaml:"prob_beats_control"`
	ExpectedLoss     float64   `json:"expected_loss" yaml:"expected_loss"`
	Posterior        Posterior `json:"posterior" yaml:"posterior"`
}

// MultiResult is the N-variant Bayesian view. ProbBeingBest includes
// control and sums to 1.
type MultiResult struct {
	VsControl        map[string]VariantInsight `json:"vs_control" yaml:"vs_control"`
	ProbBeingBest    map[string]float64        `json:"prob_being_best" yaml:"prob_being_best"`
	ControlPosterior Posterior                 `json:"control_posterior" yaml:"control_posterior"`
}

// BetaBinomialMulti draws every posterior once, in input order after
// control, and estimates each arm's probability of being the best.
func BetaBinomialMulti(control analysis.Arm, challengers []NamedArm, th config.Thresholds) (MultiResult, error) {
	pc, err := PosteriorOf(control)
	if err != nil {
		return MultiResult{}, fmt.Errorf("control: %w", err)
	}
	posteriors := make([]Posterior, len(challengers))
	for i, c := range challengers {
		if posteriors[i], err = PosteriorOf(c.Arm); err != nil {
			return MultiResult{}, fmt.Errorf("%s: %w", c.Name, err)
		}
	}

	n := samples(th)
	rng := newRand(th.BayesSeed)
	draws := [][]float64{draw(distuv.Beta{Alpha: pc.Alpha, Beta: pc.Beta, Src: rng}, n)}
	names := []string{dataset.Control}

	res := MultiResult{
		VsControl:        make(map[string]VariantInsight, len(challengers)),
		ProbBeingBest:    make(map[string]float64, len(challengers)+1),
		ControlPosterior: pc,
	}

	for i, c := range challengers {
		p := posteriors[i]
		s := draw(distuv.Beta{Alpha: p.Alpha, Beta: p.Beta, Src: rng}, n)
		prob, loss := compare(draws[0], s)
		res.VsControl[c.Name] = VariantInsight{ProbBeatsControl: prob, ExpectedLoss: loss, Posterior: p}
		draws = append(draws, s)
		names = append(names, c.Name)
	}

	wins := make([]float64, len(draws))
	for i := 0; i < n; i++ {
		best := 0
		for k := 1; k < len(draws); k++ {
			if draws[k][i] > draws[best][i] {
				best = k
			}
		}
		wins[best]++
	}
	total, _ := stats.Sum(wins)
	for k, name := range names {
		res.ProbBeingBest[name] = wins[k] / total
	}
	return res, nil
}

// Insights bundles the Bayesian view of a dataset.
type Insights struct {
	Conversion   *Comparison           `json:"conversion,omitempty" yaml:"conversion,omitempty"`
	Multivariant *MultiResult          `json:"multivariant,omitempty" yaml:"multivariant,omitempty"`
	Continuous   map[string]Comparison `json:"continuous,omitempty" yaml:"continuous,omitempty"`
}

// Analyze runs the conversion model and every continuous metric whose
// statistics parse. Continuous keys are the metric name, suffixed with
// ":variant" for N-variant datasets.
func Analyze(ds *dataset.Dataset, th config.Thresholds) (Insights, error) {
	var out Insights
	control, ok := ds.Control()
	if !ok {
		return out, nil
	}
	ctrl := analysis.Arm{Users: control.Users, Conversions: control.Conversions}
	multi := ds.IsMultivariant()

	if multi {
		var arms []NamedArm
		for _, v := range ds.Challengers() {
			arms = append(arms, NamedArm{Name: v.Name, Arm: analysis.Arm{Users: v.Users, Conversions: v.Conversions}})
		}
		m, err := BetaBinomialMulti(ctrl, arms, th)
		if err != nil {
			return Insights{}, err
		}
		out.Multivariant = &m
	} else if t, ok := ds.Find(dataset.Treatment); ok {
		c, err := BetaBinomial(ctrl, analysis.Arm{Users: t.Users, Conversions: t.Conversions}, th)
		if err != nil {
			return Insights{}, err
		}
		out.Conversion = &c
	}

	for _, m := range ds.Schema.Continuous {
		cs, err := analysis.SufficientFor(control, m)
		if err != nil || cs.N <= 0 {
			continue
		}
		for _, v := range ds.Challengers() {
			ts, err := analysis.SufficientFor(v, m)
			if err != nil || ts.N <= 0 {
				continue
			}
			key := m.Name
			if multi {
				key = m.Name + ":" + v.Name
			}
			if out.Continuous == nil {
				out.Continuous = make(map[string]Comparison)
			}
			out.Continuous[key] = Continuous(cs, ts, th)
		}
	}
	return out, nil
}
