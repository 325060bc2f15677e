// Package sequential implements group-sequential early stopping with
// Lan-DeMets alpha-spending boundaries.
package sequential

import (
	"errors"
	"fmt"
	"math"

	"github.com/headline-goat/launch-goat/internal/stats"
)

// ErrInvalidArgument is wrapped by every contract violation: an unknown
// boundary type, a look outside [1, max_looks] or mismatched fractions.
var ErrInvalidArgument = errors.New("invalid sequential argument")

// BoundaryType selects the spending function.
type BoundaryType string

const (
	OBrienFleming BoundaryType = "obrien_fleming"
	Pocock        BoundaryType = "pocock"
)

// ParseBoundaryType validates a boundary type name. Empty means
// OBrienFleming.
func ParseBoundaryType(s string) (BoundaryType, error) {
	switch BoundaryType(s) {
	case "":
		return OBrienFleming, nil
	case OBrienFleming, Pocock:
		return BoundaryType(s), nil
	}
	return "", fmt.Errorf("%w: unknown boundary_type %q, use obrien_fleming or pocock", ErrInvalidArgument, s)
}

// minIncrement keeps a look's z boundary finite.
const minIncrement = 1e-15

// Look is the boundary at one interim analysis.
type Look struct {
	Look            int     `json:"look" yaml:"look"`
	InfoFraction    float64 `json:"info_fraction" yaml:"info_fraction"`
	ZBoundary       float64 `json:"z_boundary" yaml:"z_boundary"`
	AlphaSpent      float64 `json:"alpha_spent" yaml:"alpha_spent"`
	CumulativeAlpha float64 `json:"cumulative_alpha" yaml:"cumulative_alpha"`
	PBoundary       float64 `json:"p_boundary" yaml:"p_boundary"`
}

// AlphaSpending returns the cumulative alpha spent at information fraction
// t in (0, 1]. Both spending functions return exactly alpha at t = 1.
func AlphaSpending(t, alpha float64, bt BoundaryType) (float64, error) {
	if t <= 0 || t > 1 || math.IsNaN(t) {
		return 0, fmt.Errorf("%w: info_fraction must be in (0, 1], got %g", ErrInvalidArgument, t)
	}
	if alpha <= 0 || alpha >= 1 {
		return 0, fmt.Errorf("%w: alpha must be in (0, 1), got %g", ErrInvalidArgument, alpha)
	}

	switch bt {
	case OBrienFleming:
		if t == 1 {
			return alpha, nil
		}
		return 2 - 2*stats.NormalCDF(stats.ZCritical(alpha)/math.Sqrt(t)), nil
	case Pocock:
		if t == 1 {
			return alpha, nil
		}
		return alpha * math.Log(1+(math.E-1)*t), nil
	}
	return 0, fmt.Errorf("%w: unknown boundary_type %q", ErrInvalidArgument, bt)
}

// EqualFractions returns 1/K, 2/K, ..., 1.
func EqualFractions(maxLooks int) []float64 {
	out := make([]float64, maxLooks)
	for k := range out {
		out[k] = float64(k+1) / float64(maxLooks)
	}
	if maxLooks > 0 {
		out[maxLooks-1] = 1
	}
	return out
}

// CalculateBoundaries converts each look's incremental alpha into a
// two-sided z boundary. A nil fractions slice means equal spacing.
func CalculateBoundaries(maxLooks int, fractions []float64, alpha float64, bt BoundaryType) ([]Look, error) {
	if maxLooks < 1 {
		return nil, fmt.Errorf("%w: max_looks must be >= 1, got %d", ErrInvalidArgument, maxLooks)
	}
	if fractions == nil {
		fractions = EqualFractions(maxLooks)
	}
	if len(fractions) != maxLooks {
		return nil, fmt.Errorf("%w: info_fractions length (%d) must equal max_looks (%d)", ErrInvalidArgument, len(fractions), maxLooks)
	}

	looks := make([]Look, maxLooks)
	prev := 0.0
	for k, t := range fractions {
		cumulative, err := AlphaSpending(t, alpha, bt)
		if err != nil {
			return nil, err
		}
		inc := math.Max(cumulative-prev, minIncrement)
		looks[k] = Look{
			Look:            k + 1,
			InfoFraction:    t,
			ZBoundary:       stats.NormalQuantile(1 - inc/2),
			AlphaSpent:      inc,
			CumulativeAlpha: cumulative,
			PBoundary:       inc,
		}
		prev = cumulative
	}
	return looks, nil
}

// PreviousLook records the information fraction observed at an earlier look.
type PreviousLook struct {
	Look         int     `json:"look" yaml:"look" mapstructure:"look"`
	InfoFraction float64 `json:"info_fraction" yaml:"info_fraction" mapstructure:"info_fraction"`
}

// BuildInfoFractions fills a K-length fraction vector: earlier looks from
// previous, the current look from current, later looks by linear
// interpolation to 1. Gaps get equal spacing, the vector is forced strictly
// increasing and the last entry is always 1.
func BuildInfoFractions(currentLook, maxLooks int, current float64, previous []PreviousLook) []float64 {
	f := make([]float64, maxLooks)

	for _, p := range previous {
		if i := p.Look - 1; i >= 0 && i < maxLooks {
			f[i] = p.InfoFraction
		}
	}
	if i := currentLook - 1; i >= 0 && i < maxLooks {
		f[i] = current
	}

	future := maxLooks - currentLook
	for i := 0; i < future; i++ {
		f[currentLook+i] = current + (1-current)*float64(i+1)/float64(future)
	}

	for k := range f {
		if f[k] <= 0 {
			f[k] = float64(k+1) / float64(maxLooks)
		}
	}

	for k := 1; k < maxLooks; k++ {
		if f[k] <= f[k-1] {
			remaining := maxLooks - k
			f[k] = f[k-1] + (1-f[k-1])/float64(remaining+1)
		}
	}

	if maxLooks > 0 {
		f[maxLooks-1] = 1
	}
	return f
}
