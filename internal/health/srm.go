package health

import (
	"errors"
	"fmt"
	"sort"

	"github.com/headline-goat/launch-goat/internal/config"
	"github.com/headline-goat/launch-goat/internal/dataset"
	"github.com/headline-goat/launch-goat/internal/stats"
)

// ErrInvalidSplit is returned when an expected split does not line up
// with the observed variants.
var ErrInvalidSplit = errors.New("invalid expected split")

// VariantCount is an arm's observed sample size.
type VariantCount struct {
	Name  string
	Users int64
}

// DetectSRM runs a chi-square goodness-of-fit test of observed user
// counts against split (relative weights, one per variant, in the same
// order). A nil split means equal allocation.
func DetectSRM(counts []VariantCount, split []float64, th config.Thresholds) (SRMResult, error) {
	k := len(counts)
	if k < 2 {
		return SRMResult{}, fmt.Errorf("%w: need at least 2 variants, got %d", ErrInvalidSplit, k)
	}
	weights, err := normalizeSplit(split, k)
	if err != nil {
		return SRMResult{}, err
	}

	res := SRMResult{
		Observed: make(map[string]Share, k),
		Expected: make(map[string]Share, k),
	}

	var total int64
	for _, c := range counts {
		total += c.Users
	}

	if total <= 0 {
		for i, c := range counts {
			res.Observed[c.Name] = Share{}
			res.Expected[c.Name] = Share{Pct: weights[i] * 100}
		}
		res.Status = Blocked
		res.Message = "total users is 0; SRM cannot be evaluated"
		return res, nil
	}

	observed := make([]float64, k)
	expected := make([]float64, k)
	for i, c := range counts {
		observed[i] = float64(c.Users)
		expected[i] = float64(total) * weights[i]
		res.Observed[c.Name] = Share{Count: observed[i], Pct: observed[i] / float64(total) * 100}
		res.Expected[c.Name] = Share{Count: expected[i], Pct: weights[i] * 100}
	}

	chi2, p := stats.ChiSquareGOF(observed, expected)
	res.Chi2 = &chi2
	res.PValue = &p

	switch {
	case p < th.SRMBlocked:
		res.Status = Blocked
		res.Message = fmt.Sprintf("severe SRM detected (p=%.2e); review experiment data", p)
	case p < th.SRMWarning:
		res.Status = Warning
		res.Message = fmt.Sprintf("SRM warning (p=%.4f); check traffic allocation", p)
	default:
		res.Status = Healthy
		res.Message = fmt.Sprintf("no SRM detected (p=%.4f)", p)
	}
	return res, nil
}

func normalizeSplit(split []float64, k int) ([]float64, error) {
	weights := make([]float64, k)
	if len(split) == 0 {
		for i := range weights {
			weights[i] = 1 / float64(k)
		}
		return weights, nil
	}
	if len(split) != k {
		return nil, fmt.Errorf("%w: %d weights for %d variants", ErrInvalidSplit, len(split), k)
	}

	var sum float64
	for _, w := range split {
		if w <= 0 {
			return nil, fmt.Errorf("%w: weights must be positive", ErrInvalidSplit)
		}
		sum += w
	}
	for i, w := range split {
		weights[i] = w / sum
	}
	return weights, nil
}

// RunHealthCheck validates the schema and, unless it is Blocked, runs SRM
// detection over every row.
func RunHealthCheck(t *dataset.Table, split []float64, th config.Thresholds) (Result, error) {
	schema := ValidateSchema(t, th)
	res := Result{Schema: schema, OverallStatus: schema.Status}
	if schema.Status == Blocked {
		return res, nil
	}

	counts := make([]VariantCount, len(t.Rows))
	for i := range t.Rows {
		name, _ := t.Value(i, dataset.ColVariant)
		raw, _ := t.Value(i, dataset.ColUsers)
		users, err := dataset.ParseCount(raw)
		if err != nil {
			return Result{}, fmt.Errorf("failed to read users for %s: %w", name, err)
		}
		counts[i] = VariantCount{Name: dataset.NormalizeName(name), Users: users}
	}

	srm, err := DetectSRM(counts, split, th)
	if err != nil {
		return Result{}, err
	}
	res.SRM = &srm
	res.OverallStatus = Worst(schema.Status, srm.Status)
	return res, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
