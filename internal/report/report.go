// Package report runs the whole analysis pipeline over one dataset and
// assembles the result document.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/headline-goat/launch-goat/internal/analysis"
	"github.com/headline-goat/launch-goat/internal/bayes"
	"github.com/headline-goat/launch-goat/internal/config"
	"github.com/headline-goat/launch-goat/internal/dataset"
	"github.com/headline-goat/launch-goat/internal/decision"
	"github.com/headline-goat/launch-goat/internal/health"
	"github.com/headline-goat/launch-goat/internal/sequential"
)

// Analysis modes.
const (
	ModeTwoVariant   = "two_variant"
	ModeMultivariant = "multivariant"
)

// Report is the full analysis of one dataset. Exactly one of Primary or
// Multivariant is set once the health gate passes.
type Report struct {
	RunID               string                        `json:"run_id" yaml:"run_id"`
	Name                string                        `json:"name,omitempty" yaml:"name,omitempty"`
	Mode                string                        `json:"mode" yaml:"mode"`
	GeneratedAt         time.Time                     `json:"generated_at" yaml:"generated_at"`
	Health              health.Result                 `json:"health" yaml:"health"`
	Primary             *analysis.PrimaryResult       `json:"primary,omitempty" yaml:"primary,omitempty"`
	Multivariant        *analysis.MultivariantResult  `json:"multivariant,omitempty" yaml:"multivariant,omitempty"`
	Guardrails          []analysis.GuardrailResult    `json:"guardrails,omitempty" yaml:"guardrails,omitempty"`
	GuardrailsByVariant *analysis.GuardrailsByVariant `json:"guardrails_by_variant,omitempty" yaml:"guardrails_by_variant,omitempty"`
	Continuous          []analysis.ContinuousResult   `json:"continuous,omitempty" yaml:"continuous,omitempty"`
	Bayesian            *bayes.Insights               `json:"bayesian,omitempty" yaml:"bayesian,omitempty"`
	Sequential          *sequential.Analysis          `json:"sequential,omitempty" yaml:"sequential,omitempty"`
	Decision            decision.Result               `json:"decision" yaml:"decision"`
	Thresholds          config.Thresholds             `json:"thresholds" yaml:"thresholds"`
}

// SequentialOptions adds a group-sequential check to a two-variant run.
type SequentialOptions struct {
	TargetSampleSize int64
	CurrentLook      int
	Plan             sequential.Plan
}

// Options tune a single run.
type Options struct {
	Name string
	// Split is the expected traffic split for SRM; nil means equal.
	Split []float64
	// Guardrails overrides guardrail auto-detection.
	Guardrails []string
	// SkipBayesian omits the simulation-based insights.
	SkipBayesian bool
	Sequential   *SequentialOptions
}

// Analyzer runs analyses under one set of thresholds.
type Analyzer struct {
	th  config.Thresholds
	log *zap.Logger
	now func() time.Time
}

func NewAnalyzer(th config.Thresholds, log *zap.Logger) *Analyzer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Analyzer{th: th, log: log, now: time.Now}
}

func (a *Analyzer) Thresholds() config.Thresholds {
	return a.th
}

// Run validates t, fans the independent analyses out in parallel and
// applies the decision rules. A Blocked health check short-circuits every
// analysis; the report then carries only health and the decision.
func (a *Analyzer) Run(ctx context.Context, t *dataset.Table, opts Options) (*Report, error) {
	start := a.now()
	rep := &Report{
		RunID:       uuid.NewString(),
		Name:        opts.Name,
		Mode:        ModeTwoVariant,
		GeneratedAt: start.UTC(),
		Thresholds:  a.th,
	}
	log := a.log.With(zap.String("run_id", rep.RunID))

	hc, err := health.RunHealthCheck(t, opts.Split, a.th)
	if err != nil {
		return nil, fmt.Errorf("failed to run health check: %w", err)
	}
	rep.Health = hc

	if hc.OverallStatus == health.Blocked {
		rep.Decision = decision.Decide(decision.Input{Health: hc})
		log.Info("analysis blocked by health check",
			zap.String("rule", rep.Decision.Rule),
			zap.Duration("duration", a.now().Sub(start)))
		return rep, nil
	}

	ds, err := dataset.New(t, opts.Guardrails)
	if err != nil {
		return nil, fmt.Errorf("failed to build dataset: %w", err)
	}
	if ds.IsMultivariant() {
		rep.Mode = ModeMultivariant
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if ds.IsMultivariant() {
			mv, err := analysis.AnalyzeMultivariant(ds, a.th)
			if err != nil {
				return err
			}
			gv, err := analysis.AnalyzeGuardrailsByVariant(ds, a.th)
			if err != nil {
				return err
			}
			rep.Multivariant = &mv
			rep.GuardrailsByVariant = &gv
			for variant, results := range gv.ByVariant {
				logColumnErrors(log.With(zap.String("variant", variant)), results)
			}
			return nil
		}

		p, err := analysis.AnalyzePrimary(ds, a.th)
		if err != nil {
			return err
		}
		gr, err := analysis.AnalyzeGuardrails(ds, a.th)
		if err != nil {
			return err
		}
		rep.Primary = &p
		rep.Guardrails = gr
		logColumnErrors(log, gr)
		return nil
	})

	g.Go(func() error {
		cr, err := analysis.AnalyzeContinuous(ds, a.th)
		if err != nil {
			return err
		}
		for _, r := range cr {
			if !r.IsValid {
				log.Warn("continuous metric skipped",
					zap.String("metric", r.MetricName),
					zap.String("variant", r.Variant),
					zap.String("reason", r.Reason))
			}
		}
		rep.Continuous = cr
		return nil
	})

	if !opts.SkipBayesian {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			in, err := bayes.Analyze(ds, a.th)
			if err != nil {
				return err
			}
			rep.Bayesian = &in
			return nil
		})
	}

	if opts.Sequential != nil {
		g.Go(func() error {
			sa, err := a.runSequential(ds, *opts.Sequential)
			if err != nil {
				return err
			}
			rep.Sequential = &sa
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to analyze dataset: %w", err)
	}

	rep.Decision = decision.Decide(decision.Input{
		Health:              hc,
		Primary:             rep.Primary,
		Guardrails:          rep.Guardrails,
		Multivariant:        rep.Multivariant,
		GuardrailsByVariant: rep.GuardrailsByVariant,
	})

	log.Info("analysis complete",
		zap.String("mode", rep.Mode),
		zap.String("decision", string(rep.Decision.Decision)),
		zap.String("rule", rep.Decision.Rule),
		zap.Duration("duration", a.now().Sub(start)))
	return rep, nil
}

func (a *Analyzer) runSequential(ds *dataset.Dataset, opts SequentialOptions) (sequential.Analysis, error) {
	if ds.IsMultivariant() {
		return sequential.Analysis{}, fmt.Errorf("%w: sequential testing needs exactly two variants", analysis.ErrInvalidArgument)
	}
	control, ok := ds.Control()
	if !ok {
		return sequential.Analysis{}, fmt.Errorf("%w: no control variant", analysis.ErrInvalidArgument)
	}
	treatment, ok := ds.Find(dataset.Treatment)
	if !ok {
		return sequential.Analysis{}, fmt.Errorf("%w: no treatment variant", analysis.ErrInvalidArgument)
	}

	plan := opts.Plan
	if plan.Alpha == 0 {
		plan.Alpha = a.th.Alpha
	}
	if plan.BoundaryType == "" {
		plan.BoundaryType = sequential.OBrienFleming
	}

	return sequential.AnalyzeSequential(sequential.Input{
		ControlUsers:         control.Users,
		ControlConversions:   control.Conversions,
		TreatmentUsers:       treatment.Users,
		TreatmentConversions: treatment.Conversions,
		TargetSampleSize:     opts.TargetSampleSize,
		CurrentLook:          opts.CurrentLook,
		Plan:                 plan,
	})
}

func logColumnErrors(log *zap.Logger, results []analysis.GuardrailResult) {
	for _, r := range results {
		if r.Error != "" {
			log.Warn("guardrail skipped", zap.String("guardrail", r.Name), zap.String("error", r.Error))
		}
	}
}
