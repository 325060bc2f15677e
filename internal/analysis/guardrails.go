package analysis

import (
	"fmt"

	"github.com/headline-goat/launch-goat/internal/config"
	"github.com/headline-goat/launch-goat/internal/dataset"
	"github.com/headline-goat/launch-goat/internal/stats"
)

// GuardrailResult is one guardrail metric compared between two arms. Delta
// is treatment − control; larger means worse.
type GuardrailResult struct {
	Name           string   `json:"name" yaml:"name"`
	ControlCount   int64    `json:"control_count" yaml:"control_count"`
	TreatmentCount int64    `json:"treatment_count" yaml:"treatment_count"`
	ControlRate    float64  `json:"control_rate" yaml:"control_rate"`
	TreatmentRate  float64  `json:"treatment_rate" yaml:"treatment_rate"`
	Delta          float64  `json:"delta" yaml:"delta"`
	RelativeLift   *float64 `json:"relative_lift" yaml:"relative_lift"`
	Worsened       bool     `json:"worsened" yaml:"worsened"`
	Severe         bool     `json:"severe" yaml:"severe"`
	PValue         float64  `json:"p_value" yaml:"p_value"`
	Error          string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// CompareGuardrail classifies one guardrail column. A column that is
// missing or not a whole number yields an entry with Error set and
// neutral values.
func CompareGuardrail(name string, control, treatment dataset.Variant, th config.Thresholds) GuardrailResult {
	res := GuardrailResult{Name: name, PValue: 1.0}

	cc, err := control.Count(name)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	tc, err := treatment.Count(name)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.ControlCount, res.TreatmentCount = cc, tc
	res.ControlRate = stats.Rate(cc, control.Users)
	res.TreatmentRate = stats.Rate(tc, treatment.Users)
	res.Delta = res.TreatmentRate - res.ControlRate
	res.RelativeLift = relativeLift(res.ControlRate, res.TreatmentRate)
	res.Worsened = res.Delta >= th.GuardrailWorsened
	res.Severe = res.Delta >= th.GuardrailSevere
	_, res.PValue = stats.TwoProportionZTest(cc, control.Users, tc, treatment.Users)
	return res
}

// CompareGuardrails runs CompareGuardrail for each column.
func CompareGuardrails(columns []string, control, treatment dataset.Variant, th config.Thresholds) []GuardrailResult {
	out := make([]GuardrailResult, 0, len(columns))
	for _, col := range columns {
		out = append(out, CompareGuardrail(col, control, treatment, th))
	}
	return out
}

// AnalyzeGuardrails compares every guardrail in the dataset schema between
// control and treatment.
func AnalyzeGuardrails(ds *dataset.Dataset, th config.Thresholds) ([]GuardrailResult, error) {
	control, treatment, err := controlAndTreatment(ds)
	if err != nil {
		return nil, err
	}
	return CompareGuardrails(ds.Schema.Guardrails, control, treatment, th), nil
}

// GuardrailsByVariant holds per-challenger guardrail results.
type GuardrailsByVariant struct {
	ByVariant   map[string][]GuardrailResult `json:"by_variant" yaml:"by_variant"`
	AnySevere   bool                         `json:"any_severe" yaml:"any_severe"`
	AnyWorsened bool                         `json:"any_worsened" yaml:"any_worsened"`
}

// AnalyzeGuardrailsByVariant compares every challenger against control.
func AnalyzeGuardrailsByVariant(ds *dataset.Dataset, th config.Thresholds) (GuardrailsByVariant, error) {
	control, ok := ds.Control()
	if !ok {
		return GuardrailsByVariant{}, fmt.Errorf("%w: dataset has no control variant", ErrInvalidArgument)
	}

	out := GuardrailsByVariant{ByVariant: make(map[string][]GuardrailResult)}
	for _, v := range ds.Challengers() {
		results := CompareGuardrails(ds.Schema.Guardrails, control, v, th)
		for _, g := range results {
			out.AnySevere = out.AnySevere || g.Severe
			out.AnyWorsened = out.AnyWorsened || g.Worsened
		}
		out.ByVariant[v.Name] = results
	}
	return out, nil
}
