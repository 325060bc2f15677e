package testutil

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/headline-goat/launch-goat/internal/store"
)

// SetupTestStore creates a test database and returns the store.
// Uses t.TempDir() for automatic cleanup on test completion.
func SetupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// SeedExperiment creates an experiment and records one exposure per user
// and one conversion per converter for each variant, in order.
func SeedExperiment(t *testing.T, s store.Store, name string, variants []string, users, conversions []int) {
	t.Helper()
	ctx := t.Context()

	if _, err := s.CreateExperiment(ctx, name, variants, nil, ""); err != nil {
		t.Fatalf("failed to create experiment: %v", err)
	}
	for v := range variants {
		for i := 0; i < users[v]; i++ {
			visitor := visitorID(v, i)
			if err := s.RecordEvent(ctx, name, v, store.KindExposure, visitor, 0); err != nil {
				t.Fatalf("failed to record exposure: %v", err)
			}
			if i < conversions[v] {
				if err := s.RecordEvent(ctx, name, v, store.KindConversion, visitor, 0); err != nil {
					t.Fatalf("failed to record conversion: %v", err)
				}
			}
		}
	}
}

func visitorID(variant, i int) string {
	return fmt.Sprintf("visitor-%d-%d", variant, i)
}
