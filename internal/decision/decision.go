// Package decision turns health, primary and guardrail results into a
// Launch, Hold or Rollback recommendation.
package decision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/headline-goat/launch-goat/internal/analysis"
	"github.com/headline-goat/launch-goat/internal/health"
)

// Verdict is the recommendation.
type Verdict string

const (
	Launch   Verdict = "Launch"
	Hold     Verdict = "Hold"
	Rollback Verdict = "Rollback"
)

// Result is the verdict with its rationale. Rule names the rule that
// fired.
type Result struct {
	Decision    Verdict  `json:"decision" yaml:"decision"`
	Reason      string   `json:"reason" yaml:"reason"`
	Details     []string `json:"details" yaml:"details"`
	BestVariant *string  `json:"best_variant" yaml:"best_variant"`
	Rule        string   `json:"rule" yaml:"rule"`
}

// MarshalJSON keeps Details an array when empty.
func (r Result) MarshalJSON() ([]byte, error) {
	type alias Result
	if r.Details == nil {
		r.Details = []string{}
	}
	return json.Marshal(alias(r))
}

// Input is everything the engine reads. Exactly one of Primary or
// Multivariant is expected; Guardrails pairs with Primary and
// GuardrailsByVariant with Multivariant.
type Input struct {
	Health              health.Result
	Primary             *analysis.PrimaryResult
	Guardrails          []analysis.GuardrailResult
	Multivariant        *analysis.MultivariantResult
	GuardrailsByVariant *analysis.GuardrailsByVariant
}

// evidence is the comparison the guardrail rules judge: treatment in the
// two-variant path, the best variant in the N-variant path.
type evidence struct {
	variant     string
	significant bool
	pValue      float64
	absLift     float64
	relLift     *float64
	ci          [2]float64
	guardrails  []analysis.GuardrailResult
}

func (e evidence) severe() []analysis.GuardrailResult {
	var out []analysis.GuardrailResult
	for _, g := range e.guardrails {
		if g.Severe {
			out = append(out, g)
		}
	}
	return out
}

func (e evidence) worsened() []analysis.GuardrailResult {
	var out []analysis.GuardrailResult
	for _, g := range e.guardrails {
		if g.Worsened {
			out = append(out, g)
		}
	}
	return out
}

// rule is one predicate→outcome pair. Rules are evaluated in order and the
// first match wins.
type rule struct {
	name    string
	matches func(in Input, ev *evidence) bool
	outcome func(in Input, ev *evidence) Result
}

var gateRules = []rule{
	{
		name:    "data_quality_blocked",
		matches: func(in Input, _ *evidence) bool { return in.Health.OverallStatus == health.Blocked },
		outcome: func(in Input, _ *evidence) Result {
			return Result{Decision: Hold, Reason: "data quality issue (Blocked)", Details: append([]string(nil), in.Health.Schema.Issues...)}
		},
	},
	{
		name: "srm",
		matches: func(in Input, _ *evidence) bool {
			return in.Health.SRM != nil && in.Health.SRM.Status >= health.Warning
		},
		outcome: func(in Input, _ *evidence) Result {
			return Result{Decision: Hold, Reason: fmt.Sprintf("SRM detected (p=%s)", formatP(in.Health.SRM.PValue)), Details: []string{in.Health.SRM.Message}}
		},
	},
}

var multivariantRules = []rule{
	{
		name:    "no_overall_difference",
		matches: func(in Input, _ *evidence) bool { return !in.Multivariant.Overall.IsSignificant },
		outcome: func(in Input, _ *evidence) Result {
			return Result{
				Decision: Hold,
				Reason:   fmt.Sprintf("no overall difference (omnibus p=%.4f)", in.Multivariant.Overall.PValue),
				Details:  []string{fmt.Sprintf("chi2=%.3f, dof=%d", in.Multivariant.Overall.Chi2, in.Multivariant.Overall.DOF)},
			}
		},
	},
	{
		name:    "no_variant_survives_correction",
		matches: func(in Input, _ *evidence) bool { return in.Multivariant.BestVariant == nil },
		outcome: func(in Input, _ *evidence) Result {
			return Result{
				Decision: Hold,
				Reason:   "significant overall, but no individual variant survives correction",
				Details:  []string{fmt.Sprintf("correction method: %s", in.Multivariant.CorrectionMethod)},
			}
		},
	},
}

var guardrailRules = []rule{
	{
		name:    "severe_guardrail",
		matches: func(_ Input, ev *evidence) bool { return ev.significant && len(ev.severe()) > 0 },
		outcome: func(_ Input, ev *evidence) Result {
			gs := ev.severe()
			details := make([]string, len(gs))
			for i, g := range gs {
				details[i] = fmt.Sprintf("%s: %+.2f%%p (severe threshold exceeded)", g.Name, g.Delta*100)
			}
			return Result{Decision: Rollback, Reason: "severe guardrail degradation: " + names(gs), Details: details}
		},
	},
	{
		name:    "worsened_guardrail",
		matches: func(_ Input, ev *evidence) bool { return ev.significant && len(ev.worsened()) > 0 },
		outcome: func(_ Input, ev *evidence) Result {
			gs := ev.worsened()
			details := make([]string, len(gs))
			for i, g := range gs {
				details[i] = fmt.Sprintf("%s: %+.2f%%p (worsened)", g.Name, g.Delta*100)
			}
			return Result{Decision: Hold, Reason: "guardrail degradation: " + names(gs), Details: details}
		},
	},
	{
		name:    "launch",
		matches: func(_ Input, ev *evidence) bool { return ev.significant },
		outcome: func(_ Input, ev *evidence) Result {
			reason := fmt.Sprintf("primary significant (p=%.4f), guardrails OK", ev.pValue)
			if ev.variant != "" {
				reason = fmt.Sprintf("%s: %s", ev.variant, reason)
			}
			rel := "n/a"
			if ev.relLift != nil {
				rel = fmt.Sprintf("%+.1f%%", *ev.relLift*100)
			}
			return Result{Decision: Launch, Reason: reason, Details: []string{
				fmt.Sprintf("Absolute Lift: %+.2f%%p", ev.absLift*100),
				"Relative Lift: " + rel,
				fmt.Sprintf("95%% CI: [%.4f, %.4f]", ev.ci[0], ev.ci[1]),
			}}
		},
	},
	{
		name:    "not_significant",
		matches: func(Input, *evidence) bool { return true },
		outcome: func(_ Input, ev *evidence) Result {
			return Result{Decision: Hold, Reason: fmt.Sprintf("primary not significant (p=%.4f)", ev.pValue), Details: []string{
				"No statistically significant difference.",
				"Collecting more samples is recommended.",
			}}
		},
	},
}

func names(gs []analysis.GuardrailResult) string {
	out := make([]string, len(gs))
	for i, g := range gs {
		out[i] = g.Name
	}
	return strings.Join(out, ", ")
}

func formatP(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", *p)
}

func apply(rules []rule, in Input, ev *evidence) (Result, bool) {
	for _, r := range rules {
		if r.matches(in, ev) {
			res := r.outcome(in, ev)
			res.Rule = r.name
			return res, true
		}
	}
	return Result{}, false
}

// Decide evaluates the rule table. It never fails; an input with neither a
// primary nor a multivariant result is held.
func Decide(in Input) Result {
	if res, ok := apply(gateRules, in, nil); ok {
		return res
	}

	switch {
	case in.Multivariant != nil:
		return decideMultivariant(in)
	case in.Primary != nil:
		p := in.Primary
		ev := &evidence{
			significant: p.IsSignificant,
			pValue:      p.PValue,
			absLift:     p.AbsoluteLift,
			relLift:     p.RelativeLift,
			ci:          p.CI95,
			guardrails:  in.Guardrails,
		}
		res, _ := apply(guardrailRules, in, ev)
		return res
	}
	return Result{Decision: Hold, Reason: "primary analysis unavailable", Rule: "missing_primary"}
}

func decideMultivariant(in Input) Result {
	mv := in.Multivariant
	ev := &evidence{}
	if mv.BestVariant != nil {
		name := *mv.BestVariant
		v := mv.Variants[name]
		ev = &evidence{
			variant:     name,
			significant: v.IsSignificantCorrected,
			pValue:      v.PValueCorrected,
			absLift:     v.AbsoluteLift,
			relLift:     v.RelativeLift,
			ci:          v.CI95,
		}
		if in.GuardrailsByVariant != nil {
			ev.guardrails = in.GuardrailsByVariant.ByVariant[name]
		}
	}

	res, ok := apply(multivariantRules, in, ev)
	if !ok {
		res, _ = apply(guardrailRules, in, ev)
	}
	if ev.variant != "" {
		best := ev.variant
		res.BestVariant = &best
	}
	return res
}
