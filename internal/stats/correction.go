package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var ErrUnknownMethod = errors.New("unknown correction method")

// Correct adjusts a family of p-values for multiple comparisons.
// Supported methods are bonferroni, holm, fdr_bh and none. The result
// keeps the input order.
func Correct(pvalues []float64, method string) ([]float64, error) {
	n := len(pvalues)
	out := make([]float64, n)
	if n == 0 {
		return out, nil
	}

	switch method {
	case "none":
		copy(out, pvalues)

	case "bonferroni":
		for i, p := range pvalues {
			out[i] = math.Min(1, p*float64(n))
		}

	case "holm":
		order := ascending(pvalues)
		running := 0.0
		for rank, idx := range order {
			adj := math.Min(1, pvalues[idx]*float64(n-rank))
			running = math.Max(running, adj)
			out[idx] = running
		}

	case "fdr_bh":
		order := ascending(pvalues)
		running := 1.0
		for rank := n - 1; rank >= 0; rank-- {
			idx := order[rank]
			adj := math.Min(1, pvalues[idx]*float64(n)/float64(rank+1))
			running = math.Min(running, adj)
			out[idx] = running
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}

	return out, nil
}

func ascending(values []float64) []int {
	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return values[order[a]] < values[order[b]]
	})
	return order
}
