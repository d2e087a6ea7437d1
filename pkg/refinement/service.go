// Package refinement implements the two conversation flows the client runs over
// the channel: AI refinement of the workflow under edit, and clearing the
// conversation that backs it.
package refinement

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/channel"
	"github.com/aretw0/arbor/pkg/domain"
)

// DefaultDeclaredTimeout is the host-side processing timeout used when the caller sets none.
const DefaultDeclaredTimeout = 60 * time.Second

// DefaultClearTimeout bounds CLEAR_CONVERSATION; no AI work is involved.
const DefaultClearTimeout = 5 * time.Second

// Sender sends correlated requests. *channel.Channel satisfies it.
type Sender interface {
	Send(ctx context.Context, req channel.Request) (*channel.Response, error)
}

// Graph is the part of the graph store the flows need. *graph.Store satisfies it.
type Graph interface {
	Export(meta domain.Workflow) domain.Workflow
	ReplaceWithGenerated(wf domain.Workflow) error
}

// RefineInput describes one refinement turn.
type RefineInput struct {
	WorkflowID   string
	WorkflowName string
	Message      string
	// DeclaredTimeout is the host-side budget sent in the payload.
	DeclaredTimeout time.Duration
}

// RefineResult is a successful refinement, already applied to the graph.
type RefineResult struct {
	Workflow      domain.Workflow
	AIMessage     *domain.ConversationMessage
	History       *domain.ConversationHistory
	ExecutionTime time.Duration
}

// Option defines a functional option for configuring the Service.
type Option func(*Service)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTimeoutMargin overrides the margin added to the declared timeout (channel.DefaultTimeoutMargin).
func WithTimeoutMargin(d time.Duration) Option {
	return func(s *Service) {
		s.margin = d
	}
}

// WithClearTimeout overrides DefaultClearTimeout.
func WithClearTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.clearTimeout = d
	}
}

// Service runs the refinement flows and keeps the conversation history of each workflow.
type Service struct {
	sender       Sender
	graph        Graph
	logger       *slog.Logger
	margin       time.Duration
	clearTimeout time.Duration

	mu        sync.Mutex
	histories map[string]*domain.ConversationHistory
}

// New creates a refinement service.
func New(sender Sender, g Graph, opts ...Option) *Service {
	s := &Service{
		sender:       sender,
		graph:        g,
		logger:       logging.NewNop(),
		margin:       channel.DefaultTimeoutMargin,
		clearTimeout: DefaultClearTimeout,
		histories:    make(map[string]*domain.ConversationHistory),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// History returns a copy of the conversation history of a workflow, or nil.
func (s *Service) History(workflowID string) *domain.ConversationHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.histories[workflowID].Clone()
}

// SetHistory seeds the history of a workflow, e.g. from a loaded document.
func (s *Service) SetHistory(workflowID string, h *domain.ConversationHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == nil {
		delete(s.histories, workflowID)
		return
	}
	s.histories[workflowID] = h.Clone()
}

// Refine asks the host to refine the current workflow.
// On success the refined workflow replaces the graph and the history is updated.
// Every failure is a *UIError.
func (s *Service) Refine(ctx context.Context, in RefineInput) (*RefineResult, error) {
	msg, err := SanitizeMessage(in.Message)
	if err != nil {
		return nil, &UIError{Code: domain.CodeValidationError, Message: err.Error(), Err: err}
	}
	declared := in.DeclaredTimeout
	if declared <= 0 {
		declared = DefaultDeclaredTimeout
	}

	current := s.graph.Export(domain.Workflow{ID: in.WorkflowID, Name: in.WorkflowName})
	payload := domain.RefineWorkflowPayload{
		WorkflowID:          in.WorkflowID,
		UserMessage:         msg,
		CurrentWorkflow:     current,
		ConversationHistory: s.History(in.WorkflowID),
		TimeoutMs:           declared.Milliseconds(),
	}

	logger := s.logger.With("workflow_id", in.WorkflowID)
	logger.Info("refinement requested", "message_length", len(msg), "declared_timeout", declared)

	resp, err := s.sender.Send(ctx, channel.Request{
		Type:    domain.MsgRefineWorkflow,
		Payload: payload,
		Timeout: declared + s.margin,
		Success: domain.MsgRefinementSuccess,
		Failure: domain.MsgRefinementFailed,
	})
	if err != nil {
		uiErr := toUIError(err)
		logger.Warn("refinement failed", "code", uiErr.Code, "err", err)
		return nil, uiErr
	}

	var success domain.RefinementSuccessPayload
	if err := resp.Decode(&success); err != nil {
		return nil, &UIError{Code: domain.CodeParseError, Message: "The host returned an unreadable refinement.", Details: err.Error(), Err: err}
	}
	// The host has already recorded the turn, so its history is adopted even
	// when the graph rejects the result.
	if success.UpdatedConversationHistory != nil {
		s.SetHistory(in.WorkflowID, success.UpdatedConversationHistory)
	}
	if err := s.graph.ReplaceWithGenerated(success.RefinedWorkflow); err != nil {
		logger.Warn("refined workflow rejected", "err", err)
		return nil, &UIError{Code: domain.CodeValidationError, Message: InvalidResultPrefix, Details: err.Error(), Err: err}
	}
	logger.Info("refinement applied", "execution_time_ms", success.ExecutionTimeMs)

	return &RefineResult{
		Workflow:      success.RefinedWorkflow,
		AIMessage:     success.AIMessage,
		History:       success.UpdatedConversationHistory.Clone(),
		ExecutionTime: time.Duration(success.ExecutionTimeMs) * time.Millisecond,
	}, nil
}

// ClearConversation asks the host to drop the conversation of a workflow,
// then forgets the local copy. Every failure is a generic *UIError wrapping the cause.
func (s *Service) ClearConversation(ctx context.Context, workflowID string) error {
	_, err := s.sender.Send(ctx, channel.Request{
		Type:    domain.MsgClearConversation,
		Payload: domain.ConversationPayload{WorkflowID: workflowID},
		Timeout: s.clearTimeout,
		Success: domain.MsgConversationCleared,
	})
	if err != nil {
		s.logger.Warn("clear conversation failed", "workflow_id", workflowID, "err", err)
		return &UIError{Code: domain.CodeUnknownError, Message: ClearFailedMessage, Details: err.Error(), Err: fmt.Errorf("clear conversation %s: %w", workflowID, err)}
	}
	s.SetHistory(workflowID, nil)
	return nil
}
