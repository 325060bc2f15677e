// Package memo renders a one-page decision memo from an analysis report.
package memo

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/headline-goat/launch-goat/internal/analysis"
	"github.com/headline-goat/launch-goat/internal/config"
	"github.com/headline-goat/launch-goat/internal/decision"
	"github.com/headline-goat/launch-goat/internal/health"
	"github.com/headline-goat/launch-goat/internal/report"
)

const rule = "\n---\n\n"

// Markdown renders the memo for rep dated on date.
func Markdown(rep *report.Report, date time.Time) string {
	name := rep.Name
	if name == "" {
		name = "Experiment"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Decision Memo: %s\n\n", name)
	fmt.Fprintf(&b, "**Date**: %s  \n", date.Format("2006-01-02"))
	fmt.Fprintf(&b, "**Decision**: %s\n", badge(rep.Decision.Decision))
	if rep.Decision.BestVariant != nil {
		fmt.Fprintf(&b, "\n**Best Variant**: %s\n", *rep.Decision.BestVariant)
	}

	b.WriteString(rule)
	fmt.Fprintf(&b, "## Summary\n\n**%s**\n", rep.Decision.Reason)

	switch {
	case rep.Multivariant != nil:
		writeMultivariant(&b, rep.Multivariant)
	case rep.Primary != nil:
		writePrimary(&b, rep.Primary)
	}

	b.WriteString(rule)
	b.WriteString("## Guardrails\n\n")
	switch {
	case rep.GuardrailsByVariant != nil && rep.Multivariant != nil:
		writeGuardrailsByVariant(&b, rep.GuardrailsByVariant, rep.Multivariant.VariantOrder)
	default:
		writeGuardrailTable(&b, rep.Guardrails)
	}

	if len(rep.Continuous) > 0 {
		writeContinuous(&b, rep.Continuous)
	}

	writeHealth(&b, rep.Health)

	b.WriteString(rule)
	b.WriteString("## Decision Details\n\n")
	for _, d := range rep.Decision.Details {
		fmt.Fprintf(&b, "- %s\n", d)
	}

	if rep.Bayesian != nil {
		writeBayesian(&b, rep)
	}
	if rep.Sequential != nil {
		writeSequential(&b, rep)
	}

	writeNextActions(&b, rep.Decision.Decision)
	writeAssumptions(&b, rep.Thresholds)
	return b.String()
}

func badge(v decision.Verdict) string {
	switch v {
	case decision.Launch:
		return "🚀 **Launch**"
	case decision.Rollback:
		return "🔙 **Rollback**"
	}
	return "⏸️ **Hold**"
}

func writePrimary(b *strings.Builder, p *analysis.PrimaryResult) {
	b.WriteString(rule)
	b.WriteString("## Primary Result (Conversion Rate)\n\n")
	fmt.Fprintf(b, "- **Control**: %s\n", armLine(p.Control))
	fmt.Fprintf(b, "- **Treatment**: %s\n", armLine(p.Treatment))
	fmt.Fprintf(b, "- **Absolute Lift**: %s\n", pp(p.AbsoluteLift))
	fmt.Fprintf(b, "- **Relative Lift**: %s\n", rel(p.RelativeLift))
	fmt.Fprintf(b, "- **95%% CI**: [%.4f, %.4f]\n", p.CI95[0], p.CI95[1])
	fmt.Fprintf(b, "- **P-value**: %.6f\n", p.PValue)
	fmt.Fprintf(b, "- **Statistical Significance**: %s\n", yesNo(p.IsSignificant))
}

func writeMultivariant(b *strings.Builder, mv *analysis.MultivariantResult) {
	b.WriteString(rule)
	b.WriteString("## Primary Result (Multi-Variant)\n\n")
	b.WriteString("### Overall Test\n\n")
	fmt.Fprintf(b, "- **Chi-square**: %.4f (dof %d)\n", mv.Overall.Chi2, mv.Overall.DOF)
	fmt.Fprintf(b, "- **P-value**: %.6f\n", mv.Overall.PValue)
	fmt.Fprintf(b, "- **Any Difference**: %s\n", yesNo(mv.Overall.IsSignificant))
	fmt.Fprintf(b, "- **Control**: %s\n", armLine(mv.ControlStats))

	b.WriteString("\n### Per-Variant Comparisons\n\n")
	fmt.Fprintf(b, "Correction: %s\n\n", mv.CorrectionMethod)
	b.WriteString("| Variant | Rate | Rate CI | Δ | Relative | p | p (corrected) | Significant |\n")
	b.WriteString("|---------|------|---------|---|----------|---|---------------|-------------|\n")
	for _, name := range mv.VariantOrder {
		v := mv.Variants[name]
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s | %.4f | %.4f | %s |\n",
			name, pct(v.Rate), interval(v.RateCI), pp(v.AbsoluteLift), rel(v.RelativeLift), v.PValue, v.PValueCorrected, yesNo(v.IsSignificantCorrected))
	}
}

// armLine renders an arm's rate, counts and rate interval.
func armLine(a analysis.ArmStats) string {
	return fmt.Sprintf("%s (%s / %s), CI %s", pct(a.Rate), count(a.Conversions), count(a.Users), interval(a.RateCI))
}

func interval(ci [2]float64) string {
	return fmt.Sprintf("[%s, %s]", pct(ci[0]), pct(ci[1]))
}

func writeGuardrailTable(b *strings.Builder, gs []analysis.GuardrailResult) {
	if len(gs) == 0 {
		b.WriteString("No guardrails specified.\n")
		return
	}
	b.WriteString("| Metric | Control | Treatment | Δ | Status |\n")
	b.WriteString("|--------|---------|-----------|---|--------|\n")
	for _, g := range gs {
		if g.Error != "" {
			fmt.Fprintf(b, "| %s | - | - | - | ❔ %s |\n", g.Name, g.Error)
			continue
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s |\n", g.Name, pct(g.ControlRate), pct(g.TreatmentRate), pp(g.Delta), guardrailStatus(g))
	}
}

func writeGuardrailsByVariant(b *strings.Builder, gv *analysis.GuardrailsByVariant, order []string) {
	wrote := false
	for _, name := range order {
		gs := gv.ByVariant[name]
		if len(gs) == 0 {
			continue
		}
		wrote = true
		fmt.Fprintf(b, "### %s\n\n", name)
		writeGuardrailTable(b, gs)
		b.WriteString("\n")
	}
	if !wrote {
		b.WriteString("No guardrails specified.\n")
	}
}

func guardrailStatus(g analysis.GuardrailResult) string {
	switch {
	case g.Severe:
		return "🚫 Severe"
	case g.Worsened:
		return "⚠️ Worsened"
	}
	return "✅ OK"
}

func writeContinuous(b *strings.Builder, cs []analysis.ContinuousResult) {
	b.WriteString(rule)
	b.WriteString("## Continuous Metrics\n\n")
	b.WriteString("| Metric | Control Mean | Treatment Mean | Δ | Relative | p | Significant |\n")
	b.WriteString("|--------|--------------|----------------|---|----------|---|-------------|\n")
	for _, c := range cs {
		name := c.MetricName
		if c.Variant != "" {
			name += " (" + c.Variant + ")"
		}
		if !c.IsValid {
			fmt.Fprintf(b, "| %s | - | - | - | - | - | %s |\n", name, c.Reason)
			continue
		}
		fmt.Fprintf(b, "| %s | %.4f | %.4f | %+.4f | %s | %.4f | %s |\n",
			name, c.ControlMean, c.TreatmentMean, c.AbsoluteLift, rel(c.RelativeLift), c.PValue, yesNo(c.IsSignificant))
	}
}

func writeHealth(b *strings.Builder, h health.Result) {
	b.WriteString(rule)
	b.WriteString("## Health Check\n\n")
	fmt.Fprintf(b, "- **Overall Status**: %s\n", h.OverallStatus)
	if h.SRM != nil {
		p := "n/a"
		if h.SRM.PValue != nil {
			p = fmt.Sprintf("%.4f", *h.SRM.PValue)
		}
		fmt.Fprintf(b, "- **SRM Status**: %s (p=%s)\n", h.SRM.Status, p)
	}
	for _, issue := range h.Schema.Issues {
		fmt.Fprintf(b, "- %s\n", issue)
	}
}

func writeBayesian(b *strings.Builder, rep *report.Report) {
	in := rep.Bayesian
	b.WriteString(rule)
	b.WriteString("## Bayesian Insights (informational)\n\n")
	if in.Conversion != nil {
		fmt.Fprintf(b, "- **P(Treatment > Control)**: %s\n", pct(in.Conversion.ProbTreatmentBeatsControl))
		fmt.Fprintf(b, "- **Expected Loss**: %.6f\n", in.Conversion.ExpectedLoss)
	}
	if in.Multivariant != nil {
		names := make([]string, 0, len(in.Multivariant.ProbBeingBest))
		for name := range in.Multivariant.ProbBeingBest {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("| Variant | P(Best) | P(Beats Control) | Expected Loss |\n")
		b.WriteString("|---------|---------|------------------|---------------|\n")
		for _, name := range names {
			vs, ok := in.Multivariant.VsControl[name]
			if !ok {
				fmt.Fprintf(b, "| %s | %s | - | - |\n", name, pct(in.Multivariant.ProbBeingBest[name]))
				continue
			}
			fmt.Fprintf(b, "| %s | %s | %s | %.6f |\n", name, pct(in.Multivariant.ProbBeingBest[name]), pct(vs.ProbBeatsControl), vs.ExpectedLoss)
		}
	}
	if len(in.Continuous) > 0 {
		keys := make([]string, 0, len(in.Continuous))
		for k := range in.Continuous {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n")
		for _, k := range keys {
			fmt.Fprintf(b, "- **%s**: P(Treatment > Control) = %s\n", k, pct(in.Continuous[k].ProbTreatmentBeatsControl))
		}
	}
}

func writeSequential(b *strings.Builder, rep *report.Report) {
	s := rep.Sequential
	b.WriteString(rule)
	b.WriteString("## Sequential Test\n\n")
	fmt.Fprintf(b, "- **Look**: %d / %d\n", s.Result.CurrentLook, s.Result.MaxLooks)
	fmt.Fprintf(b, "- **Progress**: %.1f%% (%s / %s users)\n", s.Progress.Percentage, count(s.Progress.CurrentSample), count(s.Progress.TargetSample))
	fmt.Fprintf(b, "- **Z**: %.4f vs boundary %.4f\n", s.Result.ZStat, s.Result.ZBoundary)
	fmt.Fprintf(b, "- **Decision**: %s\n", s.Result.Decision)
	fmt.Fprintf(b, "- %s\n", s.Result.Message)
}

func writeNextActions(b *strings.Builder, v decision.Verdict) {
	b.WriteString(rule)
	b.WriteString("## Next Actions\n\n")
	switch v {
	case decision.Launch:
		b.WriteString("- Proceed with full rollout\n- Monitor key metrics post-launch\n- Document learnings\n")
	case decision.Rollback:
		b.WriteString("- Halt experiment immediately\n- Investigate root cause of guardrail degradation\n- Revisit experiment design\n")
	default:
		b.WriteString("- Do not launch at this time\n- Review data quality or wait for more data\n- Re-evaluate when conditions improve\n")
	}
}

func writeAssumptions(b *strings.Builder, th config.Thresholds) {
	b.WriteString(rule)
	b.WriteString("## Assumptions & Thresholds\n\n")
	b.WriteString("**Statistical Settings:**\n")
	fmt.Fprintf(b, "- Significance Level: α = %g (%.0f%% Confidence Interval)\n", th.Alpha, (1-th.Alpha)*100)
	fmt.Fprintf(b, "- Multiple Testing Correction: %s\n\n", th.MultipleTesting)
	b.WriteString("**SRM (Sample Ratio Mismatch) Detection:**\n")
	fmt.Fprintf(b, "- ⚠️ Warning: p < %g\n", th.SRMWarning)
	fmt.Fprintf(b, "- 🚫 Blocked: p < %g\n\n", th.SRMBlocked)
	b.WriteString("**Guardrail Degradation:**\n")
	fmt.Fprintf(b, "- ⚠️ Worsened: Δ ≥ %.1f%%p (%g)\n", th.GuardrailWorsened*100, th.GuardrailWorsened)
	fmt.Fprintf(b, "- 🚫 Severe: Δ ≥ %.1f%%p (%g)\n\n", th.GuardrailSevere*100, th.GuardrailSevere)
	b.WriteString("**Quality Checks:**\n")
	fmt.Fprintf(b, "- Small Sample Warning: users < %d\n", th.MinSampleSize)
}

func pct(x float64) string { return fmt.Sprintf("%.2f%%", x*100) }

func pp(x float64) string { return fmt.Sprintf("%+.2f%%p", x*100) }

func rel(x *float64) string {
	if x == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.1f%%", *x*100)
}

func yesNo(ok bool) string {
	if ok {
		return "✅ Yes"
	}
	return "❌ No"
}

// count formats n with thousands separators.
func count(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
