package dataset

import (
	"errors"
	"fmt"
	"strings"
)

// Canonical variant names.
const (
	Control   = "control"
	Treatment = "treatment"
)

var (
	// ErrMalformed is returned by New when required columns are missing
	// or not numeric. Callers are expected to run schema validation first.
	ErrMalformed = errors.New("malformed dataset")

	ErrMissingColumn = errors.New("missing column")
	ErrNullValue     = errors.New("null value")
)

// Variant is one typed experiment arm.
type Variant struct {
	Name        string
	Users       int64
	Conversions int64
	cells       map[string]string
}

// Cell returns a non-required cell. ok is false when the column is
// absent or the value is null.
func (v Variant) Cell(column string) (string, bool) {
	c, ok := v.cells[column]
	if !ok || IsNull(c) {
		return "", false
	}
	return c, true
}

// Float parses a non-required cell as a finite float.
func (v Variant) Float(column string) (float64, error) {
	c, present := v.cells[column]
	if !present {
		return 0, fmt.Errorf("%w: %s", ErrMissingColumn, column)
	}
	if IsNull(c) {
		return 0, fmt.Errorf("%w: %s in %s", ErrNullValue, column, v.Name)
	}
	return ParseFloat(c)
}

// Count parses a non-required cell as a whole number.
func (v Variant) Count(column string) (int64, error) {
	c, present := v.cells[column]
	if !present {
		return 0, fmt.Errorf("%w: %s", ErrMissingColumn, column)
	}
	if IsNull(c) {
		return 0, fmt.Errorf("%w: %s in %s", ErrNullValue, column, v.Name)
	}
	return ParseCount(c)
}

// Dataset is a typed view over a Table whose required columns parse.
type Dataset struct {
	Schema   Schema
	Variants []Variant
}

// NormalizeName trims a variant label and lower-cases the two reserved
// names so "Control " and "control" are the same arm.
func NormalizeName(name string) string {
	n := strings.TrimSpace(name)
	lower := strings.ToLower(n)
	if lower == Control || lower == Treatment {
		return lower
	}
	return n
}

// New builds a Dataset from a table. explicitGuardrails overrides
// guardrail auto-detection.
func New(t *Table, explicitGuardrails []string) (*Dataset, error) {
	schema := Classify(t.Columns, explicitGuardrails)
	if len(schema.Missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", ErrMalformed, strings.Join(schema.Missing, ", "))
	}

	ds := &Dataset{Schema: schema, Variants: make([]Variant, 0, len(t.Rows))}
	for i := range t.Rows {
		name, ok := t.Value(i, ColVariant)
		if !ok {
			return nil, fmt.Errorf("%w: row %d has no variant", ErrMalformed, i+1)
		}
		v := Variant{Name: NormalizeName(name), cells: make(map[string]string)}

		var err error
		if v.Users, err = requiredCount(t, i, ColUsers); err != nil {
			return nil, err
		}
		if v.Conversions, err = requiredCount(t, i, ColConversions); err != nil {
			return nil, err
		}

		for j, col := range t.Columns {
			if isRequired(col) || j >= len(t.Rows[i]) {
				continue
			}
			v.cells[col] = t.Rows[i][j]
		}
		ds.Variants = append(ds.Variants, v)
	}
	return ds, nil
}

func requiredCount(t *Table, row int, column string) (int64, error) {
	raw, ok := t.Value(row, column)
	if !ok {
		return 0, fmt.Errorf("%w: row %d has null %s", ErrMalformed, row+1, column)
	}
	n, err := ParseCount(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrMalformed, column, err)
	}
	return n, nil
}

// Find returns the variant with the given (normalized) name.
func (d *Dataset) Find(name string) (Variant, bool) {
	for _, v := range d.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}

// Control returns the control arm.
func (d *Dataset) Control() (Variant, bool) {
	return d.Find(Control)
}

// Challengers returns every non-control arm in input order.
func (d *Dataset) Challengers() []Variant {
	out := make([]Variant, 0, len(d.Variants))
	for _, v := range d.Variants {
		if v.Name != Control {
			out = append(out, v)
		}
	}
	return out
}

// IsMultivariant reports whether the dataset needs the N-variant path:
// anything other than exactly one control and one treatment row.
func (d *Dataset) IsMultivariant() bool {
	if len(d.Variants) != 2 {
		return true
	}
	_, hasControl := d.Find(Control)
	_, hasTreatment := d.Find(Treatment)
	return !(hasControl && hasTreatment)
}

// Names returns variant names in input order.
func (d *Dataset) Names() []string {
	out := make([]string, len(d.Variants))
	for i, v := range d.Variants {
		out[i] = v.Name
	}
	return out
}
