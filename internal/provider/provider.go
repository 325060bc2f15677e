// Package provider fetches experiment results from external platforms and
// normalises them into the same table shape as a CSV upload.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/headline-goat/launch-goat/internal/dataset"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrAuth        = errors.New("authentication failed")
	ErrRateLimited = errors.New("rate limited")
	ErrUpstream    = errors.New("upstream error")
	ErrInvalid     = errors.New("invalid provider result")
)

// Error is a provider failure. Kind is one of ErrNotFound, ErrAuth,
// ErrRateLimited or ErrUpstream and is matched by errors.Is.
type Error struct {
	Provider string
	Kind     error
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(provider string, kind error, format string, args ...any) *Error {
	return &Error{Provider: provider, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Experiment summarises an experiment for listing.
type Experiment struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
	Provider    string     `json:"provider"`
}

// Variant is one arm as reported by a provider. Metrics hold guardrail
// counts and continuous-metric sufficient statistics keyed by column name.
type Variant struct {
	Name        string             `json:"name" validate:"required"`
	Users       int64              `json:"users" validate:"gte=0"`
	Conversions int64              `json:"conversions" validate:"gte=0,ltefield=Users"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
}

// Result is a provider's experiment data.
type Result struct {
	ExperimentID string    `json:"experiment_id" validate:"required"`
	Variants     []Variant `json:"variants" validate:"min=2,dive"`
}

var validate = validator.New()

// Validate checks counts and that variant names are unique.
func (r Result) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	seen := make(map[string]bool, len(r.Variants))
	for _, v := range r.Variants {
		if seen[v.Name] {
			return fmt.Errorf("%w: duplicate variant name %q", ErrInvalid, v.Name)
		}
		seen[v.Name] = true
	}
	return nil
}

// ToTable converts a validated result into a dataset table. Metric
// columns are the union across variants in sorted order; a variant missing
// a metric gets 0.
func (r Result) ToTable() *dataset.Table {
	keys := map[string]bool{}
	for _, v := range r.Variants {
		for k := range v.Metrics {
			keys[k] = true
		}
	}
	metrics := make([]string, 0, len(keys))
	for k := range keys {
		metrics = append(metrics, k)
	}
	sort.Strings(metrics)

	t := dataset.NewTable(append([]string{dataset.ColVariant, dataset.ColUsers, dataset.ColConversions}, metrics...)...)
	for _, v := range r.Variants {
		row := []string{
			standardName(v.Name),
			strconv.FormatInt(v.Users, 10),
			strconv.FormatInt(v.Conversions, 10),
		}
		for _, k := range metrics {
			row = append(row, strconv.FormatFloat(v.Metrics[k], 'f', -1, 64))
		}
		t.Append(row...)
	}
	return t
}

func standardName(name string) string {
	switch strings.ToLower(name) {
	case dataset.Control:
		return dataset.Control
	case dataset.Treatment:
		return dataset.Treatment
	}
	return name
}

// Provider is the capability every integration implements.
type Provider interface {
	Name() string
	ListExperiments(ctx context.Context) ([]Experiment, error)
	FetchExperiment(ctx context.Context, id string) (Result, error)
}
