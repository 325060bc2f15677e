package store

import (
	"fmt"
	"strings"
	"time"
)

type ExperimentState string

const (
	StateRunning   ExperimentState = "running"
	StatePaused    ExperimentState = "paused"
	StateCompleted ExperimentState = "completed"
)

type Experiment struct {
	ID             int64
	Name           string
	Variants       []string  // Decoded from JSON, control first
	Weights        []float64 // Optional expected split, decoded from JSON
	ConversionGoal string    // Optional description of what conversion means
	State          ExperimentState
	WinnerVariant  *int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Event kinds. Guardrail and metric events carry a name suffix, for
// example "guardrail:crash_count" or "metric:revenue".
const (
	KindExposure   = "exposure"
	KindConversion = "conversion"

	guardrailPrefix = "guardrail:"
	metricPrefix    = "metric:"
)

// GuardrailKind returns the event kind for a guardrail name.
func GuardrailKind(name string) string { return guardrailPrefix + name }

// MetricKind returns the event kind for a continuous metric name.
func MetricKind(name string) string { return metricPrefix + name }

// ValidateKind reports whether kind is one of the event kinds above.
func ValidateKind(kind string) error {
	switch {
	case kind == KindExposure, kind == KindConversion:
		return nil
	case strings.HasPrefix(kind, guardrailPrefix) && len(kind) > len(guardrailPrefix):
		return nil
	case strings.HasPrefix(kind, metricPrefix) && len(kind) > len(metricPrefix):
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
}

type Event struct {
	ID         int64
	Experiment string
	Variant    int
	Kind       string
	VisitorID  string
	Value      float64
	CreatedAt  time.Time
}

// Moments are the sufficient statistics of a continuous metric.
type Moments struct {
	Sum   float64
	SumSq float64
}

type VariantStats struct {
	Variant     int
	Users       int64
	Conversions int64
	Guardrails  map[string]int64   // distinct visitors per guardrail
	Metrics     map[string]Moments // per continuous metric
}
