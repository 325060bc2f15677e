package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Warehouse reads pre-aggregated variant rows from a SQL table with
// columns experiment_id, experiment_name, status, variant, users,
// conversions and metrics (a JSON object of extra columns).
type Warehouse struct {
	db    *sqlx.DB
	table string
}

// NewWarehouse wraps an open connection.
func NewWarehouse(db *sqlx.DB, table string) (*Warehouse, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid warehouse table name %q", ErrInvalid, table)
	}
	return &Warehouse{db: db, table: table}, nil
}

// OpenWarehouse connects with the given driver (postgres in production).
func OpenWarehouse(ctx context.Context, driver, dsn, table string) (*Warehouse, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, newError("warehouse", ErrUpstream, "failed to connect: %w", err)
	}
	w, err := NewWarehouse(db, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

func (w *Warehouse) Close() error {
	return w.db.Close()
}

func (w *Warehouse) Name() string { return "warehouse" }

type experimentRow struct {
	ID     string `db:"experiment_id"`
	Name   string `db:"experiment_name"`
	Status string `db:"status"`
}

func (w *Warehouse) ListExperiments(ctx context.Context) ([]Experiment, error) {
	query := fmt.Sprintf(`SELECT experiment_id, MAX(experiment_name) AS experiment_name, MAX(status) AS status
		FROM %s GROUP BY experiment_id ORDER BY experiment_id`, w.table)

	var rows []experimentRow
	if err := w.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, newError("warehouse", ErrUpstream, "failed to list experiments: %w", err)
	}

	out := make([]Experiment, len(rows))
	for i, r := range rows {
		out[i] = Experiment{ID: r.ID, Name: r.Name, Status: r.Status, Provider: "warehouse"}
	}
	return out, nil
}

type variantRow struct {
	Variant     string `db:"variant"`
	Users       int64  `db:"users"`
	Conversions int64  `db:"conversions"`
	Metrics     string `db:"metrics"`
}

func (w *Warehouse) FetchExperiment(ctx context.Context, id string) (Result, error) {
	query := w.db.Rebind(fmt.Sprintf(`SELECT variant, users, conversions, COALESCE(metrics, '') AS metrics
		FROM %s WHERE experiment_id = ?
		ORDER BY CASE WHEN LOWER(variant) = 'control' THEN 0 ELSE 1 END, variant`, w.table))

	var rows []variantRow
	if err := w.db.SelectContext(ctx, &rows, query, id); err != nil {
		return Result{}, newError("warehouse", ErrUpstream, "failed to fetch experiment: %w", err)
	}
	if len(rows) == 0 {
		return Result{}, newError("warehouse", ErrNotFound, "experiment %s not found", id)
	}

	res := Result{ExperimentID: id, Variants: make([]Variant, len(rows))}
	for i, r := range rows {
		v := Variant{Name: r.Variant, Users: r.Users, Conversions: r.Conversions}
		if r.Metrics != "" {
			if err := json.Unmarshal([]byte(r.Metrics), &v.Metrics); err != nil {
				return Result{}, newError("warehouse", ErrUpstream, "failed to decode metrics for %s: %w", r.Variant, err)
			}
		}
		res.Variants[i] = v
	}
	return res, nil
}
