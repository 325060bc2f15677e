// Package health validates experiment datasets and detects sample ratio
// mismatch before any inference runs.
package health

import (
	"encoding/json"
	"fmt"
)

// Status is a data-quality verdict. Order: Blocked > Warning > Healthy.
type Status int

const (
	Healthy Status = iota
	Warning
	Blocked
)

func (s Status) String() string {
	switch s {
	case Warning:
		return "Warning"
	case Blocked:
		return "Blocked"
	default:
		return "Healthy"
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	parsed, err := ParseStatus(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s Status) MarshalYAML() (any, error) {
	return s.String(), nil
}

// ParseStatus is the inverse of String.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "Healthy":
		return Healthy, nil
	case "Warning":
		return Warning, nil
	case "Blocked":
		return Blocked, nil
	}
	return Healthy, fmt.Errorf("unknown health status %q", s)
}

// Worst returns the most severe of the given statuses.
func Worst(statuses ...Status) Status {
	w := Healthy
	for _, s := range statuses {
		if s > w {
			w = s
		}
	}
	return w
}

// SchemaResult is the outcome of ValidateSchema.
type SchemaResult struct {
	Status Status   `json:"status" yaml:"status"`
	Issues []string `json:"issues" yaml:"issues"`
}

// Share is a count and its percentage of the total.
type Share struct {
	Count float64 `json:"count" yaml:"count"`
	Pct   float64 `json:"pct" yaml:"pct"`
}

// SRMResult is the outcome of DetectSRM. PValue and Chi2 are nil when the
// test could not run.
type SRMResult struct {
	Status   Status           `json:"status" yaml:"status"`
	PValue   *float64         `json:"p_value" yaml:"p_value"`
	Chi2     *float64         `json:"chi2_stat" yaml:"chi2_stat"`
	Observed map[string]Share `json:"observed" yaml:"observed"`
	Expected map[string]Share `json:"expected" yaml:"expected"`
	Message  string           `json:"message" yaml:"message"`
}

// Result is the combined health verdict.
type Result struct {
	Schema        SchemaResult `json:"schema" yaml:"schema"`
	SRM           *SRMResult   `json:"srm" yaml:"srm"`
	OverallStatus Status       `json:"overall_status" yaml:"overall_status"`
}
