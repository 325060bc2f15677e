package stats

import "math"

// ChiSquareGOF runs a goodness-of-fit test of observed against expected
// counts with len(observed)−1 degrees of freedom.
func ChiSquareGOF(observed, expected []float64) (chi2, p float64) {
	if len(observed) != len(expected) || len(observed) < 2 {
		return 0, 1.0
	}
	for i := range observed {
		if expected[i] <= 0 {
			if observed[i] == 0 {
				continue
			}
			return math.Inf(1), 0
		}
		d := observed[i] - expected[i]
		chi2 += d * d / expected[i]
	}
	return chi2, ChiSquareSurvival(chi2, len(observed)-1)
}

// ChiSquareIndependence tests an r×c contingency table for independence.
// Yates' continuity correction is applied when dof is 1. A zero expected
// cell makes the test undefined and yields (0, 1).
func ChiSquareIndependence(table [][]float64) (chi2, p float64, dof int) {
	rows := len(table)
	if rows == 0 {
		return 0, 1.0, 0
	}
	cols := len(table[0])
	dof = (rows - 1) * (cols - 1)
	if dof <= 0 {
		return 0, 1.0, dof
	}

	rowTotals := make([]float64, rows)
	colTotals := make([]float64, cols)
	var total float64
	for i, row := range table {
		for j, v := range row {
			rowTotals[i] += v
			colTotals[j] += v
			total += v
		}
	}
	if total == 0 {
		return 0, 1.0, dof
	}

	for i := range table {
		for j := range table[i] {
			expected := rowTotals[i] * colTotals[j] / total
			if expected == 0 {
				return 0, 1.0, dof
			}
			observed := table[i][j]
			if dof == 1 {
				diff := expected - observed
				observed += math.Copysign(math.Min(0.5, math.Abs(diff)), diff)
			}
			d := observed - expected
			chi2 += d * d / expected
		}
	}

	return chi2, ChiSquareSurvival(chi2, dof), dof
}
