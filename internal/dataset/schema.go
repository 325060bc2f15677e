package dataset

import "strings"

const (
	sumSuffix   = "_sum"
	sumSqSuffix = "_sum_sq"

	// reservedSum is a generic column name some exports emit that is
	// never treated as a continuous metric.
	reservedSum = "metric_sum"
)

// ContinuousMetric names a metric and its sufficient-statistic columns.
type ContinuousMetric struct {
	Name        string `json:"name"`
	SumColumn   string `json:"sum_column"`
	SumSqColumn string `json:"sum_sq_column"`
}

// Schema is the result of classifying a header once. Downstream
// components read it instead of inspecting column suffixes.
type Schema struct {
	Missing    []string           `json:"missing,omitempty"`
	Guardrails []string           `json:"guardrails"`
	Continuous []ContinuousMetric `json:"continuous"`
	// OrphanSums are {metric}_sum columns without a matching _sum_sq.
	OrphanSums []string `json:"orphan_sums,omitempty"`
	Unknown    []string `json:"unknown,omitempty"`
}

// Classify partitions columns into required, guardrail, continuous and
// unknown. When explicitGuardrails is non-empty it replaces
// auto-detection; names absent from the header are kept so analysis can
// report them per column.
func Classify(columns []string, explicitGuardrails []string) Schema {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c] = true
	}

	var s Schema
	for _, req := range RequiredColumns {
		if !present[req] {
			s.Missing = append(s.Missing, req)
		}
	}

	var autoGuardrails []string
	for _, c := range columns {
		switch {
		case isRequired(c):
		case strings.HasSuffix(c, sumSqSuffix):
			base := strings.TrimSuffix(c, sumSqSuffix)
			if !present[base+sumSuffix] || base+sumSuffix == reservedSum {
				s.Unknown = append(s.Unknown, c)
			}
		case strings.HasSuffix(c, sumSuffix):
			if c == reservedSum {
				s.Unknown = append(s.Unknown, c)
				continue
			}
			base := strings.TrimSuffix(c, sumSuffix)
			if present[base+sumSqSuffix] {
				s.Continuous = append(s.Continuous, ContinuousMetric{
					Name:        base,
					SumColumn:   c,
					SumSqColumn: base + sumSqSuffix,
				})
			} else {
				s.OrphanSums = append(s.OrphanSums, c)
			}
		case c == "":
			s.Unknown = append(s.Unknown, c)
		default:
			autoGuardrails = append(autoGuardrails, c)
		}
	}

	if len(explicitGuardrails) > 0 {
		s.Guardrails = append([]string(nil), explicitGuardrails...)
	} else {
		s.Guardrails = autoGuardrails
	}
	return s
}

func isRequired(column string) bool {
	for _, req := range RequiredColumns {
		if column == req {
			return true
		}
	}
	return false
}
