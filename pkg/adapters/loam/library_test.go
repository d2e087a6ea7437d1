package loam_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/adapters/loam"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/ports/tests"
)

var (
	_ ports.WorkflowLibrary = (*loam.Library)(nil)
	_ ports.Watchable       = (*loam.Library)(nil)
)

func sample(id, name string) domain.Workflow {
	return domain.Workflow{
		ID:   id,
		Name: name,
		Nodes: []domain.WorkflowNode{
			{ID: "start", Type: domain.NodeTypeStart, Position: domain.Position{X: 0, Y: 0}},
			{ID: "ask", Type: domain.NodeTypePrompt, Position: domain.Position{X: 200, Y: 40}, Data: map[string]any{"prompt": "hi"}},
			{ID: "end", Type: domain.NodeTypeEnd, Position: domain.Position{X: 400, Y: 0}},
		},
		Connections: []domain.WorkflowConnection{
			{ID: "c1", From: "start", To: "ask"},
			{ID: "c2", From: "ask", To: "end"},
		},
	}
}

func openLibrary(t *testing.T) (string, *loam.Library) {
	t.Helper()
	dir := t.TempDir()
	lib, err := loam.Open(dir, false)
	require.NoError(t, err)
	return dir, lib
}

func TestLibrary_Contract(t *testing.T) {
	_, lib := openLibrary(t)
	tests.WorkflowLibraryContractTest(t, lib, []domain.Workflow{
		sample("onboarding", "Onboarding"),
		sample("triage", "Triage"),
	})
}

func TestLibrary_RoundTripKeepsGeometry(t *testing.T) {
	dir, lib := openLibrary(t)
	ctx := context.Background()

	require.NoError(t, lib.Save(ctx, sample("flow", "Flow")))
	assert.Equal(t, filepath.Join(dir, "flow.json"), lib.Path("flow"))

	got, err := lib.Get(ctx, "flow")
	require.NoError(t, err)
	require.Len(t, got.Nodes, 3)
	assert.Equal(t, 200.0, got.Nodes[1].Position.X)
	assert.Equal(t, "hi", got.Nodes[1].Data["prompt"])
	assert.NoError(t, got.Validate())
}

func TestLibrary_ReadsHandWrittenYAML(t *testing.T) {
	dir, lib := openLibrary(t)
	doc := `---
id: handmade
name: Handmade
nodes:
  - id: start
    type: start
    position: {x: 0, y: 0}
  - id: end
    type: end
    position: {x: 100, y: 0}
connections:
  - id: c1
    from: start
    to: end
---
A workflow written by hand.
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "handmade.md"), []byte(doc), 0o644))

	wf, err := lib.Get(context.Background(), "handmade")
	require.NoError(t, err)
	assert.Equal(t, "Handmade", wf.Name)
	assert.Len(t, wf.Nodes, 2)
	assert.Equal(t, "A workflow written by hand.", wf.Description)
}

func TestLibrary_NotFound(t *testing.T) {
	_, lib := openLibrary(t)
	_, err := lib.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
}

func TestLibrary_Watch(t *testing.T) {
	dir, lib := openLibrary(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := lib.Watch(ctx)
	require.NoError(t, err)

	b := []byte(`{"id":"watched","name":"Watched","nodes":[],"connections":[]}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "watched.json"), b, 0o644))

	select {
	case id := <-events:
		assert.Equal(t, "watched", id)
	case <-time.After(5 * time.Second):
		t.Fatal("no change event")
	}
}
