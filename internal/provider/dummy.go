package provider

import (
	"context"
	"errors"
)

// InvalidDummyKey makes the dummy provider fail authentication.
const InvalidDummyKey = "invalid_key"

// Dummy serves static experiments for demos and tests.
type Dummy struct{}

func NewDummy(apiKey string) (Provider, error) {
	if apiKey == InvalidDummyKey {
		return nil, &Error{Provider: "dummy", Kind: ErrAuth, Err: errors.New("invalid API key")}
	}
	return Dummy{}, nil
}

func (Dummy) Name() string { return "dummy" }

func (Dummy) ListExperiments(context.Context) ([]Experiment, error) {
	return []Experiment{
		{ID: "exp_001", Name: "Checkout Redesign", Status: "running", Provider: "dummy"},
		{ID: "exp_002", Name: "Search Algorithm V2", Status: "stopped", Provider: "dummy"},
		{ID: "exp_003", Name: "Pricing Page Multi-Variant", Status: "running", Provider: "dummy"},
		{ID: "exp_error", Name: "Simulate Error", Status: "running", Provider: "dummy"},
	}, nil
}

func (Dummy) FetchExperiment(_ context.Context, id string) (Result, error) {
	switch id {
	case "exp_001":
		return Result{ExperimentID: id, Variants: []Variant{
			{Name: "control", Users: 10000, Conversions: 1000, Metrics: map[string]float64{"error_count": 10}},
			{Name: "treatment", Users: 10000, Conversions: 1200, Metrics: map[string]float64{"error_count": 15}},
		}}, nil
	case "exp_002":
		return Result{ExperimentID: id, Variants: []Variant{
			{Name: "Control", Users: 500, Conversions: 50},
			{Name: "Treatment", Users: 500, Conversions: 60},
		}}, nil
	case "exp_003":
		return Result{ExperimentID: id, Variants: []Variant{
			{Name: "control", Users: 10000, Conversions: 1000},
			{Name: "variant_a", Users: 10000, Conversions: 1020},
			{Name: "variant_b", Users: 10000, Conversions: 1200},
		}}, nil
	case "exp_error":
		return Result{}, newError("dummy", ErrUpstream, "simulated fetch error")
	}
	return Result{}, newError("dummy", ErrNotFound, "experiment %s not found", id)
}
