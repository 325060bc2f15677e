package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/headline-goat/launch-goat/internal/store"
	"github.com/headline-goat/launch-goat/internal/testutil"
)

func TestCreateExperiment(t *testing.T) {
	s := testutil.SetupTestStore(t)

	ctx := context.Background()
	exp, err := s.CreateExperiment(ctx, "checkout", []string{"control", "treatment"}, nil, "")
	if err != nil {
		t.Fatalf("failed to create experiment: %v", err)
	}

	if exp.Name != "checkout" {
		t.Errorf("got Name %s, want checkout", exp.Name)
	}
	if len(exp.Variants) != 2 {
		t.Errorf("got %d variants, want 2", len(exp.Variants))
	}
	if exp.State != store.StateRunning {
		t.Errorf("got State %s, want running", exp.State)
	}
	if exp.ID == 0 {
		t.Error("expected non-zero ID")
	}
}

func TestCreateExperiment_DuplicateName(t *testing.T) {
	s := testutil.SetupTestStore(t)

	ctx := context.Background()
	if _, err := s.CreateExperiment(ctx, "checkout", []string{"control", "treatment"}, nil, ""); err != nil {
		t.Fatalf("failed to create first experiment: %v", err)
	}

	if _, err := s.CreateExperiment(ctx, "checkout", []string{"control", "b"}, nil, ""); err == nil {
		t.Fatal("expected error for duplicate name")
	}
}

func TestGetExperiment_RoundTrip(t *testing.T) {
	s := testutil.SetupTestStore(t)

	ctx := context.Background()
	if _, err := s.CreateExperiment(ctx, "pricing", []string{"control", "a", "b"}, []float64{0.5, 0.25, 0.25}, "Signup"); err != nil {
		t.Fatalf("failed to create experiment: %v", err)
	}

	exp, err := s.GetExperiment(ctx, "pricing")
	if err != nil {
		t.Fatalf("failed to get experiment: %v", err)
	}
	if len(exp.Weights) != 3 || exp.Weights[0] != 0.5 {
		t.Errorf("got weights %v, want [0.5 0.25 0.25]", exp.Weights)
	}
	if exp.ConversionGoal != "Signup" {
		t.Errorf("got ConversionGoal %q, want Signup", exp.ConversionGoal)
	}
	if exp.WinnerVariant != nil {
		t.Errorf("expected no winner, got %d", *exp.WinnerVariant)
	}
}

func TestGetExperiment_NotFound(t *testing.T) {
	s := testutil.SetupTestStore(t)

	_, err := s.GetExperiment(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListExperiments(t *testing.T) {
	s := testutil.SetupTestStore(t)

	ctx := context.Background()
	for _, name := range []string{"one", "two", "three"} {
		if _, err := s.CreateExperiment(ctx, name, []string{"control", "treatment"}, nil, ""); err != nil {
			t.Fatalf("failed to create experiment: %v", err)
		}
	}

	list, err := s.ListExperiments(ctx)
	if err != nil {
		t.Fatalf("failed to list experiments: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("got %d experiments, want 3", len(list))
	}
	if list[0].Name != "three" {
		t.Errorf("expected newest first, got %s", list[0].Name)
	}
}

func TestUpdateExperimentState(t *testing.T) {
	s := testutil.SetupTestStore(t)

	ctx := context.Background()
	if _, err := s.CreateExperiment(ctx, "checkout", []string{"control", "treatment"}, nil, ""); err != nil {
		t.Fatalf("failed to create experiment: %v", err)
	}

	winner := 1
	if err := s.UpdateExperimentState(ctx, "checkout", store.StateCompleted, &winner); err != nil {
		t.Fatalf("failed to update state: %v", err)
	}

	exp, err := s.GetExperiment(ctx, "checkout")
	if err != nil {
		t.Fatalf("failed to get experiment: %v", err)
	}
	if exp.State != store.StateCompleted {
		t.Errorf("got State %s, want completed", exp.State)
	}
	if exp.WinnerVariant == nil || *exp.WinnerVariant != 1 {
		t.Errorf("expected winner 1, got %v", exp.WinnerVariant)
	}

	if err := s.UpdateExperimentState(ctx, "missing", store.StatePaused, nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteExperiment(t *testing.T) {
	s := testutil.SetupTestStore(t)

	ctx := context.Background()
	testutil.SeedExperiment(t, s, "checkout", []string{"control", "treatment"}, []int{3, 3}, []int{1, 2})

	if err := s.DeleteExperiment(ctx, "checkout"); err != nil {
		t.Fatalf("failed to delete experiment: %v", err)
	}

	events, err := s.GetEvents(ctx, "checkout")
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected events to be deleted, got %d", len(events))
	}

	if err := s.DeleteExperiment(ctx, "checkout"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordEvent_Deduplicates(t *testing.T) {
	s := testutil.SetupTestStore(t)

	ctx := context.Background()
	if _, err := s.CreateExperiment(ctx, "checkout", []string{"control", "treatment"}, nil, ""); err != nil {
		t.Fatalf("failed to create experiment: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.RecordEvent(ctx, "checkout", 0, store.KindExposure, "visitor-1", 0); err != nil {
			t.Fatalf("failed to record event: %v", err)
		}
	}

	events, err := s.GetEvents(ctx, "checkout")
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 event after dedup, got %d", len(events))
	}
}

func TestRecordEvent_InvalidKind(t *testing.T) {
	s := testutil.SetupTestStore(t)

	err := s.RecordEvent(context.Background(), "checkout", 0, "view", "visitor-1", 0)
	if !errors.Is(err, store.ErrInvalidKind) {
		t.Errorf("expected ErrInvalidKind, got %v", err)
	}

	err = s.RecordEvent(context.Background(), "checkout", 0, "guardrail:", "visitor-1", 0)
	if !errors.Is(err, store.ErrInvalidKind) {
		t.Errorf("expected ErrInvalidKind for empty guardrail name, got %v", err)
	}
}

func TestGetVariantStats(t *testing.T) {
	s := testutil.SetupTestStore(t)

	ctx := context.Background()
	testutil.SeedExperiment(t, s, "checkout", []string{"control", "treatment"}, []int{10, 12}, []int{2, 5})

	record := func(variant int, kind, visitor string, value float64) {
		t.Helper()
		if err := s.RecordEvent(ctx, "checkout", variant, kind, visitor, value); err != nil {
			t.Fatalf("failed to record event: %v", err)
		}
	}
	record(0, store.GuardrailKind("crash_count"), "visitor-0-1", 0)
	record(1, store.GuardrailKind("crash_count"), "visitor-1-1", 0)
	record(1, store.GuardrailKind("crash_count"), "visitor-1-2", 0)
	record(0, store.MetricKind("revenue"), "visitor-0-0", 3)
	record(0, store.MetricKind("revenue"), "visitor-0-1", 4)

	stats, err := s.GetVariantStats(ctx, "checkout")
	if err != nil {
		t.Fatalf("failed to get stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("got %d variants, want 2", len(stats))
	}

	control, treatment := stats[0], stats[1]
	if control.Users != 10 || control.Conversions != 2 {
		t.Errorf("control: got %d/%d, want 10/2", control.Conversions, control.Users)
	}
	if treatment.Users != 12 || treatment.Conversions != 5 {
		t.Errorf("treatment: got %d/%d, want 12/5", treatment.Conversions, treatment.Users)
	}
	if treatment.Guardrails["crash_count"] != 2 {
		t.Errorf("expected 2 treatment crashes, got %d", treatment.Guardrails["crash_count"])
	}
	m := control.Metrics["revenue"]
	if m.Sum != 7 || m.SumSq != 25 {
		t.Errorf("expected revenue sum 7 / sum_sq 25, got %v / %v", m.Sum, m.SumSq)
	}
}
