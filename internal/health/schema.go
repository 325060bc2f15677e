package health

import (
	"fmt"
	"strings"

	"github.com/headline-goat/launch-goat/internal/config"
	"github.com/headline-goat/launch-goat/internal/dataset"
)

type row struct {
	name        string
	users       int64
	conversions int64
	hasName     bool
	hasUsers    bool
	hasConv     bool
}

func blocked(issues []string, msg string) SchemaResult {
	return SchemaResult{Status: Blocked, Issues: append(issues, msg)}
}

// ValidateSchema checks structural and logical integrity of a dataset.
// Blocking checks short-circuit in a fixed order; the small-sample and
// continuous-metric checks run only once those pass.
func ValidateSchema(t *dataset.Table, th config.Thresholds) SchemaResult {
	issues := []string{}

	schema := dataset.Classify(t.Columns, nil)
	if len(schema.Missing) > 0 {
		return blocked(issues, fmt.Sprintf("missing required columns: %s", strings.Join(schema.Missing, ", ")))
	}

	rows := make([]row, len(t.Rows))
	distinct := make(map[string]int)
	for i := range t.Rows {
		if name, ok := t.Value(i, dataset.ColVariant); ok {
			rows[i].name = dataset.NormalizeName(name)
			rows[i].hasName = true
			distinct[rows[i].name]++
		}
	}

	if len(rows) < 2 || len(distinct) < 2 {
		return blocked(issues, fmt.Sprintf("need at least 2 rows with 2 distinct variants (got %d rows, %d variants)", len(rows), len(distinct)))
	}

	if distinct[dataset.Control] == 0 {
		return blocked(issues, fmt.Sprintf("no %q variant found (variants: %s)", dataset.Control, strings.Join(sortedKeys(distinct), ", ")))
	}

	for i := range t.Rows {
		if raw, ok := t.Value(i, dataset.ColUsers); ok {
			n, err := dataset.ParseCount(raw)
			if err != nil {
				return blocked(issues, fmt.Sprintf("users is not numeric: %v", err))
			}
			rows[i].users, rows[i].hasUsers = n, true
		}
		if raw, ok := t.Value(i, dataset.ColConversions); ok {
			n, err := dataset.ParseCount(raw)
			if err != nil {
				return blocked(issues, fmt.Sprintf("conversions is not numeric: %v", err))
			}
			rows[i].conversions, rows[i].hasConv = n, true
		}
	}

	var dups []string
	for _, name := range sortedKeys(distinct) {
		if distinct[name] > 1 {
			dups = append(dups, name)
		}
	}
	if len(dups) > 0 {
		return blocked(issues, fmt.Sprintf("duplicate variant names: %s", strings.Join(dups, ", ")))
	}

	for _, r := range rows {
		if r.hasUsers && r.users < 0 {
			return blocked(issues, "users has negative values")
		}
		if r.hasConv && r.conversions < 0 {
			return blocked(issues, "conversions has negative values")
		}
	}

	for _, r := range rows {
		if r.hasUsers && r.users == 0 {
			return blocked(issues, fmt.Sprintf("variant %q has zero users", r.name))
		}
	}

	var over []string
	for _, r := range rows {
		if r.hasUsers && r.hasConv && r.conversions > r.users {
			over = append(over, r.name)
		}
	}
	if len(over) > 0 {
		return blocked(issues, fmt.Sprintf("conversions exceed users (variant: %s)", strings.Join(over, ", ")))
	}

	for _, r := range rows {
		if !r.hasName || !r.hasUsers || !r.hasConv {
			return blocked(issues, "required columns contain null values")
		}
	}

	status := Healthy
	for _, r := range rows {
		if r.users < th.MinSampleSize {
			issues = append(issues, fmt.Sprintf("Warning: variant %q has fewer than %d users; results may be unreliable", r.name, th.MinSampleSize))
			status = Warning
			break
		}
	}

	cs := validateContinuous(t, schema, rows, th.VarianceTolerance)
	issues = append(issues, cs.Issues...)
	return SchemaResult{Status: Worst(status, cs.Status), Issues: issues}
}

// validateContinuous checks {metric}_sum / {metric}_sum_sq pairs.
func validateContinuous(t *dataset.Table, schema dataset.Schema, rows []row, tolerance float64) SchemaResult {
	res := SchemaResult{Status: Healthy}
	flag := func(s Status, msg string) {
		res.Issues = append(res.Issues, msg)
		res.Status = Worst(res.Status, s)
	}

	for _, col := range schema.OrphanSums {
		base := strings.TrimSuffix(col, "_sum")
		flag(Blocked, fmt.Sprintf("continuous schema error: %q exists but %q is missing", col, base+"_sum_sq"))
	}

	for _, m := range schema.Continuous {
		sums := make([]float64, len(rows))
		sqs := make([]float64, len(rows))
		valid := true
		for i := range rows {
			s, okS := t.Value(i, m.SumColumn)
			sq, okSq := t.Value(i, m.SumSqColumn)
			if !okS || !okSq {
				flag(Blocked, fmt.Sprintf("continuous metric %q contains null values", m.Name))
				valid = false
				break
			}
			var errS, errSq error
			sums[i], errS = dataset.ParseFloat(s)
			sqs[i], errSq = dataset.ParseFloat(sq)
			if errS != nil || errSq != nil {
				flag(Blocked, fmt.Sprintf("continuous metric %q has non-numeric values", m.Name))
				valid = false
				break
			}
		}
		if !valid {
			continue
		}

		for i, r := range rows {
			if r.users < 2 {
				flag(Warning, fmt.Sprintf("Warning: continuous metric %q in %s has n < 2; variance is undefined", m.Name, r.name))
				continue
			}
			n := float64(r.users)
			implied := sqs[i] - sums[i]*sums[i]/n
			if implied < -tolerance {
				flag(Blocked, fmt.Sprintf("invalid variance for %q in %s: sum_sq < sum^2/n (diff=%.2e)", m.Name, r.name, implied))
			}
		}
	}
	return res
}
