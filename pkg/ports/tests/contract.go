package tests

import (
	"context"
	"testing"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// WorkflowLibraryContractTest is a reusable test suite that verifies if an adapter complies with ports.WorkflowLibrary.
// setupData is saved first, then read back.
func WorkflowLibraryContractTest(t *testing.T, lib ports.WorkflowLibrary, setupData []domain.Workflow) {
	t.Helper()
	ctx := context.Background()

	t.Run("Save", func(t *testing.T) {
		for _, wf := range setupData {
			if err := lib.Save(ctx, wf); err != nil {
				t.Fatalf("unexpected error saving workflow %s: %v", wf.ID, err)
			}
		}
	})

	t.Run("Get_Success", func(t *testing.T) {
		for _, expected := range setupData {
			got, err := lib.Get(ctx, expected.ID)
			if err != nil {
				t.Fatalf("unexpected error getting workflow %s: %v", expected.ID, err)
			}
			if got.Name != expected.Name {
				t.Errorf("name mismatch for %s. got %q, want %q", expected.ID, got.Name, expected.Name)
			}
			if len(got.Nodes) != len(expected.Nodes) || len(got.Connections) != len(expected.Connections) {
				t.Errorf("shape mismatch for %s. got %d/%d, want %d/%d", expected.ID,
					len(got.Nodes), len(got.Connections), len(expected.Nodes), len(expected.Connections))
			}
		}
	})

	t.Run("Get_NotFound", func(t *testing.T) {
		_, err := lib.Get(ctx, "non-existent-workflow")
		if err == nil {
			t.Error("expected error for non-existent workflow, got nil")
		}
	})

	t.Run("List", func(t *testing.T) {
		ids, err := lib.List(ctx)
		if err != nil {
			t.Fatalf("unexpected error listing workflows: %v", err)
		}

		if len(ids) != len(setupData) {
			t.Errorf("expected %d workflows, got %d", len(setupData), len(ids))
		}

		lookup := make(map[string]bool)
		for _, id := range ids {
			lookup[id] = true
		}

		for _, wf := range setupData {
			if !lookup[wf.ID] {
				t.Errorf("workflow %s missing from list", wf.ID)
			}
		}
	})
}
