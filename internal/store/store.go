package store

import "context"

// Store defines the interface for locally tracked experiments
type Store interface {
	// Experiment operations
	CreateExperiment(ctx context.Context, name string, variants []string, weights []float64, conversionGoal string) (*Experiment, error)
	GetExperiment(ctx context.Context, name string) (*Experiment, error)
	ListExperiments(ctx context.Context) ([]*Experiment, error)
	UpdateExperimentState(ctx context.Context, name string, state ExperimentState, winnerVariant *int) error
	DeleteExperiment(ctx context.Context, name string) error

	// Event operations
	RecordEvent(ctx context.Context, experiment string, variant int, kind string, visitorID string, value float64) error
	GetVariantStats(ctx context.Context, experiment string) ([]VariantStats, error)
	GetEvents(ctx context.Context, experiment string) ([]*Event, error)

	// Lifecycle
	Close() error
}
