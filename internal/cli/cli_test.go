package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	arbor "github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/config"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/adapters/jsonl"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/host"
	"github.com/aretw0/arbor/pkg/ports"
)

var addSummary = ports.RefinerFunc(func(ctx context.Context, req ports.RefineRequest) (*ports.RefineResult, error) {
	wf := req.Workflow
	wf.Nodes = append(wf.Nodes, domain.WorkflowNode{
		ID:   "summarize",
		Type: domain.NodeTypePrompt,
		Data: map[string]any{"prompt": "Summarize the input"},
	})
	wf.Connections = []domain.WorkflowConnection{
		{ID: "c1", From: "start", To: "summarize"},
		{ID: "c2", From: "summarize", To: "end"},
	}
	return &ports.RefineResult{Workflow: wf, Message: "Added a summary step."}, nil
})

const startEnd = `{
  "id": "demo",
  "name": "Demo",
  "nodes": [
    {"id": "start", "type": "start"},
    {"id": "end", "type": "end"}
  ],
  "connections": [{"id": "c0", "from": "start", "to": "end"}]
}`

func noEnv(string) string { return "" }

func newTestRuntime(t *testing.T, opts ...RuntimeOption) *Runtime {
	t.Helper()
	cfg := config.Default()
	cfg.Library.Dir = t.TempDir()
	cfg.Editor.Config = filepath.Join(t.TempDir(), "missing.yaml")

	opts = append([]RuntimeOption{WithEnv(noEnv), WithRefiner(addSummary)}, opts...)
	rt, err := NewRuntime(cfg, logging.NewNop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestNewRuntime(t *testing.T) {
	rt := newTestRuntime(t)
	assert.NotNil(t, rt.Server)
	assert.NotNil(t, rt.Library)
	assert.NotNil(t, rt.Schema)
	assert.NotNil(t, rt.Stores.Conversations)
	assert.Nil(t, rt.Stores.Locker)
}

func TestNewRuntime_Editors(t *testing.T) {
	t.Run("From Environment", func(t *testing.T) {
		env := func(k string) string {
			if k == "EDITOR" {
				return "true"
			}
			return ""
		}
		newTestRuntime(t, WithEnv(env))
	})

	t.Run("Unknown Name", func(t *testing.T) {
		cfg := config.Default()
		cfg.Library.Dir = t.TempDir()
		cfg.Editor.Name = "vim"
		cfg.Editor.Config = filepath.Join(t.TempDir(), "missing.yaml")

		_, err := NewRuntime(cfg, logging.NewNop(), WithEnv(noEnv), WithRefiner(addSummary))
		assert.ErrorContains(t, err, "editor vim")
	})

	t.Run("Missing Schema", func(t *testing.T) {
		cfg := config.Default()
		cfg.Library.Dir = t.TempDir()
		cfg.Schema = filepath.Join(t.TempDir(), "nope.yaml")

		_, err := NewRuntime(cfg, logging.NewNop(), WithEnv(noEnv))
		assert.ErrorContains(t, err, "load schema")
	})
}

func TestNewRefiner_NoModel(t *testing.T) {
	r, err := NewRefiner(config.Default(), nil, logging.NewNop())
	require.NoError(t, err)

	_, err = r.Refine(context.Background(), ports.RefineRequest{})
	assert.ErrorIs(t, err, domain.ErrCommandNotFound)
}

func TestRunRefine_InProcess(t *testing.T) {
	tests := []struct {
		name string
		file string
	}{
		{"JSON", "demo.json"},
		{"YAML", "demo.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newTestRuntime(t)
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(startEnd), 0o644))

			var stdout bytes.Buffer
			err := RunRefine(context.Background(), RefineParams{
				Path:    path,
				Message: "add a summary step",
				Timeout: 5 * time.Second,
				Dial:    InProcess(rt),
				Stdout:  &stdout,
				Logger:  logging.NewNop(),
			})
			require.NoError(t, err)
			assert.Contains(t, stdout.String(), "Added a summary step.")

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			wf, err := host.ParseWorkflow(path, data)
			require.NoError(t, err)
			assert.Len(t, wf.Nodes, 3)
			require.NotNil(t, wf.ConversationHistory)
			assert.Equal(t, 1, wf.ConversationHistory.CurrentIteration)
		})
	}
}

func TestRunRefine_Errors(t *testing.T) {
	rt := newTestRuntime(t)
	path := filepath.Join(t.TempDir(), "demo.json")
	require.NoError(t, os.WriteFile(path, []byte(startEnd), 0o644))

	err := RunRefine(context.Background(), RefineParams{Path: path, Message: "  ", Dial: InProcess(rt)})
	assert.ErrorContains(t, err, "message is required")

	err = RunRefine(context.Background(), RefineParams{Path: path + ".missing", Message: "x", Dial: InProcess(rt)})
	assert.ErrorContains(t, err, "read workflow")

	broken := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{"), 0o644))
	err = RunRefine(context.Background(), RefineParams{Path: broken, Message: "x", Dial: InProcess(rt)})
	assert.ErrorIs(t, err, domain.ErrUnparseableWorkflow)
}

func TestRunHost_JSONLines(t *testing.T) {
	rt := newTestRuntime(t)

	hostIn, clientOut := io.Pipe()
	clientIn, hostOut := io.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunHost(ctx, rt, hostIn, hostOut, "") }()

	client := jsonl.New(clientIn, clientOut, jsonl.WithClosers(clientOut))
	meta, err := host.ParseWorkflow("demo.json", []byte(startEnd))
	require.NoError(t, err)

	d, err := arbor.New(client, meta, arbor.WithLogger(logging.NewNop()))
	require.NoError(t, err)
	go d.Run(ctx)

	res, err := d.Refine(ctx, "add a summary step", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Added a summary step.", res.AIMessage.Content)

	require.NoError(t, d.Close())
	cancel()
	hostOut.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("host did not stop")
	}
}

func TestRunHost_WatchRequiresLibrary(t *testing.T) {
	rt := newTestRuntime(t)
	rt.Library = nil

	err := RunHost(context.Background(), rt, bytes.NewReader(nil), io.Discard, "demo")
	assert.ErrorContains(t, err, "requires a workflow library")
}

func TestRunMCP_UnknownTransport(t *testing.T) {
	rt := newTestRuntime(t)
	err := RunMCP(context.Background(), rt, "carrier-pigeon", 0)
	assert.ErrorContains(t, err, "unknown MCP transport")
}
