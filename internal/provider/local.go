package provider

import (
	"context"
	"errors"

	"github.com/headline-goat/launch-goat/internal/store"
)

// Splitter is implemented by providers that know an experiment's planned
// traffic split.
type Splitter interface {
	ExpectedSplit(ctx context.Context, id string) ([]float64, error)
}

// Local serves experiments tracked in the local event store. Experiment
// ids are experiment names.
type Local struct {
	store store.Store
}

func NewLocal(s store.Store) *Local {
	return &Local{store: s}
}

func (l *Local) Name() string { return "local" }

func (l *Local) ListExperiments(ctx context.Context) ([]Experiment, error) {
	exps, err := l.store.ListExperiments(ctx)
	if err != nil {
		return nil, newError("local", ErrUpstream, "failed to list experiments: %w", err)
	}
	out := make([]Experiment, 0, len(exps))
	for _, e := range exps {
		updated := e.UpdatedAt
		out = append(out, Experiment{ID: e.Name, Name: e.Name, Status: string(e.State), LastUpdated: &updated, Provider: "local"})
	}
	return out, nil
}

func (l *Local) FetchExperiment(ctx context.Context, id string) (Result, error) {
	exp, err := l.getExperiment(ctx, id)
	if err != nil {
		return Result{}, err
	}

	stats, err := l.store.GetVariantStats(ctx, id)
	if err != nil {
		return Result{}, newError("local", ErrUpstream, "failed to get stats: %w", err)
	}
	byIndex := make(map[int]store.VariantStats, len(stats))
	for _, s := range stats {
		byIndex[s.Variant] = s
	}

	res := Result{ExperimentID: id, Variants: make([]Variant, len(exp.Variants))}
	for i, name := range exp.Variants {
		s := byIndex[i]
		v := Variant{Name: name, Users: s.Users, Conversions: s.Conversions, Metrics: map[string]float64{}}
		for g, n := range s.Guardrails {
			v.Metrics[g] = float64(n)
		}
		for m, mom := range s.Metrics {
			v.Metrics[m+"_sum"] = mom.Sum
			v.Metrics[m+"_sum_sq"] = mom.SumSq
		}
		res.Variants[i] = v
	}
	return res, nil
}

// ExpectedSplit returns the experiment's stored weights, or nil for an
// equal split.
func (l *Local) ExpectedSplit(ctx context.Context, id string) ([]float64, error) {
	exp, err := l.getExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	return exp.Weights, nil
}

func (l *Local) getExperiment(ctx context.Context, id string) (*store.Experiment, error) {
	exp, err := l.store.GetExperiment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError("local", ErrNotFound, "experiment %s not found", id)
	}
	if err != nil {
		return nil, newError("local", ErrUpstream, "failed to get experiment: %w", err)
	}
	return exp, nil
}
