package arbor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/channel"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/host"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/preview"
	"github.com/aretw0/arbor/pkg/refinement"
)

var echo = ports.RefinerFunc(func(ctx context.Context, req ports.RefineRequest) (*ports.RefineResult, error) {
	return &ports.RefineResult{Workflow: req.Workflow, Message: "ok"}, nil
})

type openerFunc func(ctx context.Context, path string) error

func (f openerFunc) Open(ctx context.Context, path string) error { return f(ctx, path) }

func TestNew_RestoresWorkflowAndHistory(t *testing.T) {
	client, _ := memory.Pipe()
	h := domain.NewConversationHistory(time.Unix(0, 0))
	h.CurrentIteration = 3

	meta := domain.Workflow{
		ID:   "wf",
		Name: "Restored",
		Nodes: []domain.WorkflowNode{
			{ID: "s", Type: domain.NodeTypeStart},
			{ID: "p", Type: domain.NodeTypePrompt},
			{ID: "e", Type: domain.NodeTypeEnd},
		},
		Connections:         []domain.WorkflowConnection{{ID: "c", From: "s", To: "p"}},
		ConversationHistory: h,
	}
	d, err := arbor.New(client, meta)
	require.NoError(t, err)
	defer d.Close()

	out := d.Export()
	assert.Equal(t, "Restored", out.Name)
	assert.Len(t, out.Nodes, 3)
	require.NotNil(t, out.ConversationHistory)
	assert.Equal(t, 3, out.ConversationHistory.CurrentIteration)
	assert.Contains(t, d.Mermaid(), "s --> p")
}

func TestNew_RejectsInvalidWorkflow(t *testing.T) {
	client, _ := memory.Pipe()
	_, err := arbor.New(client, domain.Workflow{ID: "wf", Nodes: []domain.WorkflowNode{{ID: "s", Type: domain.NodeTypeStart}}})
	assert.Error(t, err)
}

func TestDesigner_WarningHandler(t *testing.T) {
	client, _ := memory.Pipe()
	var warnings []graph.Warning
	d, err := arbor.New(client, domain.Workflow{ID: "wf"}, arbor.WithWarningHandler(func(w graph.Warning) {
		warnings = append(warnings, w)
	}))
	require.NoError(t, err)
	defer d.Close()

	assert.ErrorIs(t, d.Graph.RemoveNode(domain.StartNodeID), domain.ErrTerminalNode)
	require.Len(t, warnings, 1)
	assert.Equal(t, domain.StartNodeID, warnings[0].NodeID)
}

func TestEmbedded_RefineClearAndOpen(t *testing.T) {
	ctx := context.Background()
	opened := make(chan string, 1)
	srv := host.NewServer(echo, host.WithOpener(openerFunc(func(_ context.Context, path string) error {
		opened <- path
		return nil
	})))

	d, err := arbor.NewEmbedded(ctx, srv, domain.Workflow{ID: "wf", Name: "Demo"})
	require.NoError(t, err)
	defer d.Close()

	_, err = d.Refine(ctx, "first", time.Second)
	require.NoError(t, err)
	_, err = d.Refine(ctx, "second", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Export().ConversationHistory.CurrentIteration)

	require.NoError(t, d.ClearConversation(ctx))
	assert.Nil(t, d.Export().ConversationHistory)

	require.NoError(t, d.OpenInEditor(ctx, "/tmp/wf.json"))
	select {
	case p := <-opened:
		assert.Equal(t, "/tmp/wf.json", p)
	case <-time.After(time.Second):
		t.Fatal("host never opened the document")
	}
	assert.Equal(t, 0, d.Channel.Pending())
}

func TestEmbedded_PreviewEvents(t *testing.T) {
	ctx := context.Background()
	client, hostEnd := memory.Pipe()
	d, err := arbor.New(client, domain.Workflow{ID: "wf"})
	require.NoError(t, err)
	go d.Run(ctx)
	defer d.Close()

	states := make(chan bool, 4)
	d.Preview.Subscribe(func(s preview.State) { states <- s.Active })

	wf := domain.Workflow{ID: "ext", Nodes: []domain.WorkflowNode{{ID: "s", Type: domain.NodeTypeStart}, {ID: "e", Type: domain.NodeTypeEnd}}}
	require.NoError(t, host.NewPreviewer(hostEnd, nil).PublishWorkflow(ctx, wf))

	select {
	case active := <-states:
		assert.True(t, active)
	case <-time.After(time.Second):
		t.Fatal("preview event not observed")
	}
	require.NotNil(t, d.Preview.State().Workflow)
	assert.Equal(t, "ext", d.Preview.State().Workflow.ID)
}

func TestClose_SettlesInFlight(t *testing.T) {
	ctx := context.Background()
	block := make(chan struct{})
	slow := ports.RefinerFunc(func(ctx context.Context, req ports.RefineRequest) (*ports.RefineResult, error) {
		<-block
		return nil, ctx.Err()
	})
	defer close(block)

	d, err := arbor.NewEmbedded(ctx, host.NewServer(slow), domain.Workflow{ID: "wf"})
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		_, err := d.Refine(ctx, "hang", time.Minute)
		errs <- err
	}()
	require.Eventually(t, func() bool { return d.Channel.Pending() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	select {
	case err := <-errs:
		var uiErr *refinement.UIError
		require.ErrorAs(t, err, &uiErr)
		assert.ErrorIs(t, err, channel.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("in-flight refinement never settled")
	}
}
