package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidKind = errors.New("invalid event kind")
)

type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL,
    variants TEXT NOT NULL,
    weights TEXT,
    conversion_goal TEXT,
    state TEXT NOT NULL DEFAULT 'running',
    winner_variant INTEGER,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_experiments_state ON experiments(state);

CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    experiment TEXT NOT NULL,
    variant INTEGER NOT NULL,
    kind TEXT NOT NULL,
    visitor_id TEXT NOT NULL,
    value REAL NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    FOREIGN KEY (experiment) REFERENCES experiments(name)
);

CREATE INDEX IF NOT EXISTS idx_events_experiment ON events(experiment);
CREATE INDEX IF NOT EXISTS idx_events_experiment_kind ON events(experiment, kind);
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_dedup ON events(experiment, visitor_id, kind);
`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateExperiment(ctx context.Context, name string, variants []string, weights []float64, conversionGoal string) (*Experiment, error) {
	variantsJSON, err := json.Marshal(variants)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal variants: %w", err)
	}

	var weightsJSON []byte
	if len(weights) > 0 {
		weightsJSON, err = json.Marshal(weights)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal weights: %w", err)
		}
	}

	now := time.Now().Unix()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO experiments (name, variants, weights, conversion_goal, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'running', ?, ?)`,
		name, string(variantsJSON), nullableString(weightsJSON), conversionGoal, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert experiment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return &Experiment{
		ID:             id,
		Name:           name,
		Variants:       variants,
		Weights:        weights,
		ConversionGoal: conversionGoal,
		State:          StateRunning,
		CreatedAt:      time.Unix(now, 0),
		UpdatedAt:      time.Unix(now, 0),
	}, nil
}

const experimentColumns = `id, name, variants, weights, conversion_goal, state, winner_variant, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row scanner) (*Experiment, error) {
	var e Experiment
	var variantsJSON string
	var weightsJSON, goal sql.NullString
	var winner sql.NullInt64
	var createdAt, updatedAt int64

	if err := row.Scan(&e.ID, &e.Name, &variantsJSON, &weightsJSON, &goal, &e.State, &winner, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(variantsJSON), &e.Variants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variants: %w", err)
	}
	if weightsJSON.Valid && weightsJSON.String != "" {
		if err := json.Unmarshal([]byte(weightsJSON.String), &e.Weights); err != nil {
			return nil, fmt.Errorf("failed to unmarshal weights: %w", err)
		}
	}
	if winner.Valid {
		w := int(winner.Int64)
		e.WinnerVariant = &w
	}

	e.ConversionGoal = goal.String
	e.CreatedAt = time.Unix(createdAt, 0)
	e.UpdatedAt = time.Unix(updatedAt, 0)
	return &e, nil
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, name string) (*Experiment, error) {
	e, err := scanExperiment(s.db.QueryRowContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var out []*Experiment
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateExperimentState(ctx context.Context, name string, state ExperimentState, winnerVariant *int) error {
	now := time.Now().Unix()

	var result sql.Result
	var err error
	if winnerVariant != nil {
		result, err = s.db.ExecContext(ctx,
			`UPDATE experiments SET state = ?, winner_variant = ?, updated_at = ? WHERE name = ?`,
			string(state), *winnerVariant, now, name,
		)
	} else {
		result, err = s.db.ExecContext(ctx,
			`UPDATE experiments SET state = ?, updated_at = ? WHERE name = ?`,
			string(state), now, name,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to update experiment state: %w", err)
	}

	return requireAffected(result)
}

func (s *SQLiteStore) DeleteExperiment(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE experiment = ?`, name); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM experiments WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete experiment: %w", err)
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordEvent stores one event. A visitor counts once per kind; repeats
// are ignored.
func (s *SQLiteStore) RecordEvent(ctx context.Context, experiment string, variant int, kind string, visitorID string, value float64) error {
	if err := ValidateKind(kind); err != nil {
		return err
	}

	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO events (experiment, variant, kind, visitor_id, value, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		experiment, variant, kind, visitorID, value, now,
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// GetVariantStats aggregates events per variant index: distinct exposed
// and converted visitors, distinct visitors per guardrail, and sum and
// sum of squares per metric.
func (s *SQLiteStore) GetVariantStats(ctx context.Context, experiment string) ([]VariantStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			variant,
			kind,
			COUNT(DISTINCT visitor_id) AS visitors,
			COALESCE(SUM(value), 0) AS total,
			COALESCE(SUM(value * value), 0) AS total_sq
		FROM events
		WHERE experiment = ?
		GROUP BY variant, kind
		ORDER BY variant, kind
	`, experiment)
	if err != nil {
		return nil, fmt.Errorf("failed to get variant stats: %w", err)
	}
	defer rows.Close()

	var out []VariantStats
	index := make(map[int]int)
	for rows.Next() {
		var variant int
		var kind string
		var visitors int64
		var sum, sumSq float64
		if err := rows.Scan(&variant, &kind, &visitors, &sum, &sumSq); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}

		i, ok := index[variant]
		if !ok {
			out = append(out, VariantStats{Variant: variant, Guardrails: map[string]int64{}, Metrics: map[string]Moments{}})
			i = len(out) - 1
			index[variant] = i
		}
		vs := &out[i]

		switch {
		case kind == KindExposure:
			vs.Users = visitors
		case kind == KindConversion:
			vs.Conversions = visitors
		case strings.HasPrefix(kind, guardrailPrefix):
			vs.Guardrails[strings.TrimPrefix(kind, guardrailPrefix)] = visitors
		case strings.HasPrefix(kind, metricPrefix):
			vs.Metrics[strings.TrimPrefix(kind, metricPrefix)] = Moments{Sum: sum, SumSq: sumSq}
		}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetEvents(ctx context.Context, experiment string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, experiment, variant, kind, visitor_id, value, created_at
		 FROM events WHERE experiment = ? ORDER BY created_at DESC, id DESC`,
		experiment,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Experiment, &e.Variant, &e.Kind, &e.VisitorID, &e.Value, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		events = append(events, &e)
	}
	return events, rows.Err()
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func nullableString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
