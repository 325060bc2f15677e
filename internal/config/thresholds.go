package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is wrapped by every threshold validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Multiple-testing correction methods.
const (
	MethodBonferroni = "bonferroni"
	MethodHolm       = "holm"
	MethodFDRBH      = "fdr_bh"
	MethodNone       = "none"
)

// Thresholds holds every numeric knob the analysis engine reads.
// It is passed by value; nothing in the engine mutates it.
type Thresholds struct {
	SRMWarning        float64 `mapstructure:"srm_warning" yaml:"srm_warning" json:"srm_warning" validate:"gt=0,lt=1,gtefield=SRMBlocked"`
	SRMBlocked        float64 `mapstructure:"srm_blocked" yaml:"srm_blocked" json:"srm_blocked" validate:"gt=0,lt=1"`
	GuardrailWorsened float64 `mapstructure:"guardrail_worsened" yaml:"guardrail_worsened" json:"guardrail_worsened" validate:"gte=0"`
	GuardrailSevere   float64 `mapstructure:"guardrail_severe" yaml:"guardrail_severe" json:"guardrail_severe" validate:"gtefield=GuardrailWorsened"`
	Alpha             float64 `mapstructure:"alpha" yaml:"alpha" json:"alpha" validate:"gt=0,lt=1"`
	MinSampleSize     int64   `mapstructure:"min_sample_size" yaml:"min_sample_size" json:"min_sample_size" validate:"gte=0"`
	MultipleTesting   string  `mapstructure:"multiple_testing" yaml:"multiple_testing" json:"multiple_testing" validate:"oneof=bonferroni holm fdr_bh none"`
	VarianceTolerance float64 `mapstructure:"variance_tolerance" yaml:"variance_tolerance" json:"variance_tolerance" validate:"gte=0"`
	BayesSamples      int     `mapstructure:"bayes_samples" yaml:"bayes_samples" json:"bayes_samples" validate:"gt=0"`
	BayesSeed         uint64  `mapstructure:"bayes_seed" yaml:"bayes_seed" json:"bayes_seed"`
}

// Default returns the stock thresholds.
func Default() Thresholds {
	return Thresholds{
		SRMWarning:        0.001,
		SRMBlocked:        0.00001,
		GuardrailWorsened: 0.001,
		GuardrailSevere:   0.003,
		Alpha:             0.05,
		MinSampleSize:     100,
		MultipleTesting:   MethodBonferroni,
		VarianceTolerance: 1e-9,
		BayesSamples:      10000,
		BayesSeed:         42,
	}
}

var validate = validator.New()

// Validate checks ordering and range constraints between thresholds.
func (t Thresholds) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
