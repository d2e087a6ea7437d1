package refinement_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/channel"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/refinement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *refinement.Service
	ch       *channel.Channel
	store    *graph.Store
	requests atomic.Int32
}

// newFixture wires a service to a scripted host. reply runs in its own goroutine per request.
func newFixture(t *testing.T, reply func(req domain.Message) *domain.Message, opts ...refinement.Option) *fixture {
	t.Helper()
	client, host := memory.Pipe()
	store, err := graph.New()
	require.NoError(t, err)

	f := &fixture{ch: channel.New(client), store: store}
	f.svc = refinement.New(f.ch, store, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = f.ch.Run(ctx) }()
	go func() {
		for {
			req, err := host.Receive(ctx)
			if err != nil {
				return
			}
			f.requests.Add(1)
			go func() {
				if out := reply(req); out != nil {
					_ = host.Send(ctx, *out)
				}
			}()
		}
	}()
	t.Cleanup(func() {
		cancel()
		_ = host.Close()
	})
	return f
}

func refinedWorkflow() domain.Workflow {
	return domain.Workflow{
		ID: "wf",
		Nodes: []domain.WorkflowNode{
			{ID: "start", Type: domain.NodeTypeStart},
			{ID: "ask", Type: domain.NodeTypePrompt, Data: map[string]any{"prompt": "summarize"}},
			{ID: "end", Type: domain.NodeTypeEnd},
		},
		Connections: []domain.WorkflowConnection{
			{ID: "c1", From: "start", To: "ask"},
			{ID: "c2", From: "ask", To: "end"},
		},
	}
}

func successReply(t *testing.T, req domain.Message) *domain.Message {
	var in domain.RefineWorkflowPayload
	if err := req.Decode(&in); err != nil {
		return nil
	}
	history := in.ConversationHistory
	if history == nil {
		history = domain.NewConversationHistory(now)
	}
	ai := domain.ConversationMessage{ID: "a", Sender: domain.SenderAI, Content: "Added a prompt.", Timestamp: now}
	history.Append(domain.ConversationMessage{ID: "u", Sender: domain.SenderUser, Content: in.UserMessage, Timestamp: now}, ai)

	msg, err := domain.NewMessage(domain.MsgRefinementSuccess, req.RequestID, domain.RefinementSuccessPayload{
		RefinedWorkflow:            refinedWorkflow(),
		AIMessage:                  &ai,
		UpdatedConversationHistory: history,
		ExecutionTimeMs:            42,
		Timestamp:                  now,
	})
	require.NoError(t, err)
	return &msg
}

// Declared 600ms, local 650ms, host answers at 550ms: the request resolves and no timeout follows.
func TestRefine_SuccessBeforeDeclaredTimeout(t *testing.T) {
	var seen domain.RefineWorkflowPayload
	f := newFixture(t, func(req domain.Message) *domain.Message {
		_ = req.Decode(&seen)
		time.Sleep(550 * time.Millisecond)
		return successReply(t, req)
	}, refinement.WithTimeoutMargin(50*time.Millisecond))

	res, err := f.svc.Refine(context.Background(), refinement.RefineInput{
		WorkflowID:      "wf",
		Message:         "add a summarizing prompt",
		DeclaredTimeout: 600 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(600), seen.TimeoutMs)
	assert.Equal(t, "wf", seen.CurrentWorkflow.ID)
	assert.Len(t, seen.CurrentWorkflow.Nodes, 2)
	assert.Nil(t, seen.ConversationHistory)

	assert.Equal(t, "Added a prompt.", res.AIMessage.Content)
	assert.Equal(t, 42*time.Millisecond, res.ExecutionTime)
	assert.Equal(t, "ask", f.store.Snapshot().SelectedNodeID)
	assert.Len(t, f.store.Snapshot().Edges, 2)
	assert.Equal(t, 1, f.svc.History("wf").CurrentIteration)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, f.ch.Pending())
}

func TestRefine_SendsHistoryBack(t *testing.T) {
	var last domain.RefineWorkflowPayload
	f := newFixture(t, func(req domain.Message) *domain.Message {
		_ = req.Decode(&last)
		return successReply(t, req)
	})

	in := refinement.RefineInput{WorkflowID: "wf", Message: "first", DeclaredTimeout: time.Second}
	_, err := f.svc.Refine(context.Background(), in)
	require.NoError(t, err)

	in.Message = "second"
	_, err = f.svc.Refine(context.Background(), in)
	require.NoError(t, err)

	require.NotNil(t, last.ConversationHistory)
	assert.Equal(t, 1, last.ConversationHistory.CurrentIteration)
	assert.Equal(t, 2, f.svc.History("wf").CurrentIteration)
}

func TestRefine_DomainFailureVerbatim(t *testing.T) {
	f := newFixture(t, func(req domain.Message) *domain.Message {
		msg, _ := domain.NewMessage(domain.MsgRefinementFailed, req.RequestID, domain.RefinementFailedPayload{
			Error: domain.FailureDetail{Code: domain.CodeIterationLimitReached, Message: "Too many turns", Details: "20/20"},
		})
		return &msg
	})
	before := f.store.Snapshot()

	_, err := f.svc.Refine(context.Background(), refinement.RefineInput{WorkflowID: "wf", Message: "again"})
	var uiErr *refinement.UIError
	require.ErrorAs(t, err, &uiErr)
	assert.Equal(t, domain.CodeIterationLimitReached, uiErr.Code)
	assert.Equal(t, "Too many turns", uiErr.Message)
	assert.Equal(t, "20/20", uiErr.Details)
	assert.Equal(t, before, f.store.Snapshot())
}

func TestRefine_Timeout(t *testing.T) {
	f := newFixture(t, func(req domain.Message) *domain.Message { return nil },
		refinement.WithTimeoutMargin(10*time.Millisecond))

	start := time.Now()
	_, err := f.svc.Refine(context.Background(), refinement.RefineInput{
		WorkflowID:      "wf",
		Message:         "hello",
		DeclaredTimeout: 20 * time.Millisecond,
	})
	var uiErr *refinement.UIError
	require.ErrorAs(t, err, &uiErr)
	assert.Equal(t, domain.CodeTimeout, uiErr.Code)
	assert.Equal(t, refinement.TimeoutMessage, uiErr.Message)
	assert.ErrorIs(t, err, channel.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 0, f.ch.Pending())
}

func TestRefine_GenericError(t *testing.T) {
	f := newFixture(t, func(req domain.Message) *domain.Message {
		msg, _ := domain.NewMessage(domain.MsgError, req.RequestID, domain.ErrorPayload{Message: "host is busy"})
		return &msg
	})

	_, err := f.svc.Refine(context.Background(), refinement.RefineInput{WorkflowID: "wf", Message: "x"})
	var uiErr *refinement.UIError
	require.ErrorAs(t, err, &uiErr)
	assert.Equal(t, domain.CodeUnknownError, uiErr.Code)
	assert.Equal(t, "host is busy", uiErr.Message)
}

func TestRefine_InvalidMessageIsNotSent(t *testing.T) {
	f := newFixture(t, func(req domain.Message) *domain.Message { return successReply(t, req) })

	for _, msg := range []string{"", "   \n", strings.Repeat("é", refinement.MaxMessageLength+1)} {
		_, err := f.svc.Refine(context.Background(), refinement.RefineInput{WorkflowID: "wf", Message: msg})
		var uiErr *refinement.UIError
		require.ErrorAs(t, err, &uiErr)
		assert.Equal(t, domain.CodeValidationError, uiErr.Code)
	}
	assert.Equal(t, int32(0), f.requests.Load())

	// Exactly at the bound, counted in characters rather than bytes.
	_, err := f.svc.Refine(context.Background(), refinement.RefineInput{WorkflowID: "wf", Message: strings.Repeat("é", refinement.MaxMessageLength)})
	require.NoError(t, err)
}

func TestRefine_InvalidRefinedWorkflowIsRejected(t *testing.T) {
	f := newFixture(t, func(req domain.Message) *domain.Message {
		msg, _ := domain.NewMessage(domain.MsgRefinementSuccess, req.RequestID, domain.RefinementSuccessPayload{
			RefinedWorkflow: domain.Workflow{ID: "wf", Nodes: []domain.WorkflowNode{{ID: "start", Type: domain.NodeTypeStart}}},
		})
		return &msg
	})
	before := f.store.Snapshot()

	_, err := f.svc.Refine(context.Background(), refinement.RefineInput{WorkflowID: "wf", Message: "break it"})
	var uiErr *refinement.UIError
	require.ErrorAs(t, err, &uiErr)
	assert.Equal(t, domain.CodeValidationError, uiErr.Code)
	assert.ErrorIs(t, err, domain.ErrInvalidGraph)
	assert.Equal(t, before, f.store.Snapshot())
}

func TestRefine_RejectedResultKeepsHostHistory(t *testing.T) {
	var sent []domain.RefineWorkflowPayload
	var mu sync.Mutex
	f := newFixture(t, func(req domain.Message) *domain.Message {
		var in domain.RefineWorkflowPayload
		_ = req.Decode(&in)
		mu.Lock()
		sent = append(sent, in)
		mu.Unlock()
		reply := successReply(t, req)
		var out domain.RefinementSuccessPayload
		require.NoError(t, reply.Decode(&out))
		out.RefinedWorkflow = domain.Workflow{ID: "wf", Nodes: []domain.WorkflowNode{{ID: "start", Type: domain.NodeTypeStart}}}
		msg, err := domain.NewMessage(domain.MsgRefinementSuccess, req.RequestID, out)
		require.NoError(t, err)
		return &msg
	})

	in := refinement.RefineInput{WorkflowID: "wf", Message: "break it", DeclaredTimeout: time.Second}
	_, err := f.svc.Refine(context.Background(), in)
	require.ErrorIs(t, err, domain.ErrInvalidGraph)
	require.NotNil(t, f.svc.History("wf"))
	assert.Equal(t, 1, f.svc.History("wf").CurrentIteration)

	_, err = f.svc.Refine(context.Background(), in)
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 2)
	require.NotNil(t, sent[1].ConversationHistory)
	assert.Equal(t, 1, sent[1].ConversationHistory.CurrentIteration)
	assert.Len(t, sent[1].ConversationHistory.Messages, 2)
}

func TestClearConversation_Success(t *testing.T) {
	f := newFixture(t, func(req domain.Message) *domain.Message {
		msg, _ := domain.NewMessage(domain.MsgConversationCleared, req.RequestID, domain.ConversationPayload{WorkflowID: "wf"})
		return &msg
	})
	f.svc.SetHistory("wf", domain.NewConversationHistory(now))

	require.NoError(t, f.svc.ClearConversation(context.Background(), "wf"))
	assert.Nil(t, f.svc.History("wf"))
}

// No response ever arrives: the call fails with a timeout after the clear timeout, exactly once.
func TestClearConversation_Timeout(t *testing.T) {
	f := newFixture(t, func(req domain.Message) *domain.Message { return nil },
		refinement.WithClearTimeout(50*time.Millisecond))
	f.svc.SetHistory("wf", domain.NewConversationHistory(now))

	start := time.Now()
	err := f.svc.ClearConversation(context.Background(), "wf")
	elapsed := time.Since(start)

	var uiErr *refinement.UIError
	require.ErrorAs(t, err, &uiErr)
	assert.Equal(t, refinement.ClearFailedMessage, uiErr.Message)
	assert.ErrorIs(t, err, channel.ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.NotNil(t, f.svc.History("wf"), "history is kept when clearing fails")
	assert.Equal(t, 0, f.ch.Pending())
}

func TestClearConversation_ErrorIsGeneric(t *testing.T) {
	f := newFixture(t, func(req domain.Message) *domain.Message {
		msg, _ := domain.NewMessage(domain.MsgError, req.RequestID, domain.ErrorPayload{Message: "nope"})
		return &msg
	})

	err := f.svc.ClearConversation(context.Background(), "wf")
	var uiErr *refinement.UIError
	require.ErrorAs(t, err, &uiErr)
	assert.Equal(t, domain.CodeUnknownError, uiErr.Code)
	var re *channel.ResponseError
	assert.ErrorAs(t, err, &re)
}
