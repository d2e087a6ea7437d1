package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/refinement"
	"github.com/aretw0/arbor/pkg/schema"
	"github.com/aretw0/arbor/pkg/session"
)

// Server handles client requests.
type Server struct {
	refiner  ports.Refiner
	sessions *session.Manager

	schemaCache *schema.Cache
	schemaPath  string

	opener  ports.Opener
	library ports.WorkflowLibrary

	maxIterations  int
	defaultTimeout time.Duration

	logger  *slog.Logger
	metrics observability.Recorder
	spans   observability.SpanManager
	now     func() time.Time
	newID   func() string
}

// NewServer creates a Server that refines workflows with refiner.
func NewServer(refiner ports.Refiner, opts ...Option) *Server {
	s := &Server{
		refiner:        refiner,
		maxIterations:  domain.DefaultMaxIterations,
		defaultTimeout: DefaultRefineTimeout,
		logger:         logging.NewNop(),
		metrics:        observability.NoopMetrics{},
		spans:          observability.NoopSpanManager{},
		now:            time.Now,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sessions == nil {
		s.sessions = session.NewManager(memory.NewStore(), session.WithClock(s.now), session.WithLogger(s.logger))
	}
	return s
}

// Serve reads requests from t until it closes or ctx is done.
// Each request is handled in its own goroutine; replies share the transport.
func (s *Server) Serve(ctx context.Context, t ports.Transport) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		msg, err := t.Receive(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrTransportClosed) {
				s.logger.Debug("Transport closed, stopping host")
				return nil
			}
			return err
		}

		wg.Add(1)
		go func(msg domain.Message) {
			defer wg.Done()
			reply := s.Handle(ctx, msg)
			if reply == nil {
				return
			}
			if err := t.Send(ctx, *reply); err != nil {
				s.logger.Warn("Failed to send reply",
					"type", reply.Type,
					"request_id", reply.RequestID,
					"err", err,
				)
			}
		}(msg)
	}
}

// Handle processes one request and returns its reply, or nil when none is due.
func (s *Server) Handle(ctx context.Context, msg domain.Message) *domain.Message {
	start := time.Now()
	ctx, span := s.spans.StartHandleSpan(ctx, string(msg.Type), msg.RequestID)
	logger := s.logger.With("type", msg.Type, "request_id", msg.RequestID)

	reply, outcome, err := s.dispatch(ctx, msg)

	if err != nil {
		logger.Warn("Request failed", "outcome", outcome, "err", err)
	} else {
		logger.Debug("Request handled", "duration", time.Since(start))
	}
	s.metrics.RecordHandled(string(msg.Type), outcome, time.Since(start))
	s.spans.EndSpanWithError(span, err)
	return reply
}

// dispatch routes msg to its handler. A panicking handler settles the request
// with ERROR instead of taking the host down.
func (s *Server) dispatch(ctx context.Context, msg domain.Message) (reply *domain.Message, outcome observability.Outcome, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		s.logger.Error("Handler panicked", "type", msg.Type, "request_id", msg.RequestID, "panic", r, "stack", string(debug.Stack()))
		err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		outcome = observability.OutcomeGenericError
		reply = nil
		if msg.RequestID != "" {
			reply = s.reply(domain.MsgError, msg.RequestID, domain.ErrorPayload{
				Message: "The host failed to handle the request.",
				Details: fmt.Sprint(r),
			})
		}
	}()

	switch msg.Type {
	case domain.MsgRefineWorkflow:
		return s.handleRefine(ctx, msg)
	case domain.MsgClearConversation:
		return s.handleClear(ctx, msg)
	case domain.MsgOpenWorkflowInEditor:
		outcome, err = s.handleOpen(ctx, msg)
		return nil, outcome, err
	default:
		err = fmt.Errorf("unsupported message type %q", msg.Type)
		if msg.RequestID != "" {
			reply = s.reply(domain.MsgError, msg.RequestID, domain.ErrorPayload{Message: err.Error()})
		}
		return reply, observability.OutcomeGenericError, err
	}
}

func (s *Server) handleRefine(ctx context.Context, msg domain.Message) (*domain.Message, observability.Outcome, error) {
	start := time.Now()
	fail := func(err error, timeout time.Duration) (*domain.Message, observability.Outcome, error) {
		detail, outcome := failure(err, timeout.String())
		return s.reply(domain.MsgRefinementFailed, msg.RequestID, domain.RefinementFailedPayload{
			Error:           detail,
			ExecutionTimeMs: time.Since(start).Milliseconds(),
			Timestamp:       s.now(),
		}), outcome, err
	}

	var p domain.RefineWorkflowPayload
	if err := msg.Decode(&p); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrInvalidPayload, err), s.defaultTimeout)
	}
	timeout := s.defaultTimeout
	if p.TimeoutMs > 0 {
		timeout = time.Duration(p.TimeoutMs) * time.Millisecond
	}
	if p.WorkflowID == "" {
		p.WorkflowID = p.CurrentWorkflow.ID
	}
	if p.WorkflowID == "" {
		return fail(fmt.Errorf("%w: workflowId is required", ErrInvalidPayload), timeout)
	}
	text, err := refinement.SanitizeMessage(p.UserMessage)
	if err != nil {
		return fail(err, timeout)
	}
	doc, err := s.schema()
	if err != nil {
		return fail(err, timeout)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		refined domain.Workflow
		aiMsg   *domain.ConversationMessage
	)
	history, err := s.sessions.Update(ctx, p.WorkflowID, p.ConversationHistory, func(ctx context.Context, h *domain.ConversationHistory) error {
		if h.MaxIterations == 0 {
			h.MaxIterations = s.maxIterations
		}
		if h.LimitReached() {
			return fmt.Errorf("%w (%d/%d)", ErrIterationLimit, h.CurrentIteration, h.MaxIterations)
		}
		userMsg := domain.ConversationMessage{ID: s.newID(), Sender: domain.SenderUser, Content: text, Timestamp: s.now()}

		res, err := s.refine(ctx, ports.RefineRequest{
			Workflow: p.CurrentWorkflow,
			Message:  text,
			History:  h.Clone(),
		})
		if err != nil {
			return err
		}
		if res == nil {
			return fmt.Errorf("%w: empty result", domain.ErrUnparseableWorkflow)
		}

		refined = res.Workflow
		if refined.ID == "" {
			refined.ID = p.CurrentWorkflow.ID
		}
		if refined.Name == "" {
			refined.Name = p.CurrentWorkflow.Name
		}
		if err := doc.ValidateWorkflow(refined); err != nil {
			return err
		}

		ai := domain.ConversationMessage{ID: s.newID(), Sender: domain.SenderAI, Content: res.Message, Timestamp: s.now()}
		h.Append(userMsg, ai)
		if res.Message != "" {
			aiMsg = &ai
		}
		return nil
	})
	if err != nil {
		return fail(err, timeout)
	}

	refined.ConversationHistory = history
	return s.reply(domain.MsgRefinementSuccess, msg.RequestID, domain.RefinementSuccessPayload{
		RefinedWorkflow:            refined,
		AIMessage:                  aiMsg,
		UpdatedConversationHistory: history,
		ExecutionTimeMs:            time.Since(start).Milliseconds(),
		Timestamp:                  s.now(),
	}), observability.OutcomeSuccess, nil
}

// refine runs the refiner against ctx's deadline. A refiner that ignores ctx
// is abandoned when the deadline passes; its late result is discarded.
func (s *Server) refine(ctx context.Context, req ports.RefineRequest) (*ports.RefineResult, error) {
	type outcome struct {
		res *ports.RefineResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrHandlerPanic, r)}
			}
		}()
		res, err := s.refiner.Refine(ctx, req)
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		// The result may have raced the deadline; the deadline wins.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return out.res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Server) handleClear(ctx context.Context, msg domain.Message) (*domain.Message, observability.Outcome, error) {
	var p domain.ConversationPayload
	err := msg.Decode(&p)
	if err == nil && p.WorkflowID == "" {
		err = errors.New("workflowId is required")
	}
	if err == nil {
		err = s.sessions.Delete(ctx, p.WorkflowID)
	}
	if err != nil {
		return s.reply(domain.MsgError, msg.RequestID, domain.ErrorPayload{
			Message: "Failed to clear conversation",
			Details: err.Error(),
		}), observability.OutcomeGenericError, err
	}
	return s.reply(domain.MsgConversationCleared, msg.RequestID, p), observability.OutcomeSuccess, nil
}

// handleOpen never replies; failures are only logged.
func (s *Server) handleOpen(ctx context.Context, msg domain.Message) (observability.Outcome, error) {
	var p domain.OpenInEditorPayload
	if err := msg.Decode(&p); err != nil {
		return observability.OutcomeGenericError, err
	}
	path := p.Path
	if path == "" && s.library != nil {
		path = s.library.Path(p.WorkflowID)
	}
	switch {
	case s.opener == nil:
		return observability.OutcomeGenericError, errors.New("no editor configured")
	case path == "":
		return observability.OutcomeGenericError, fmt.Errorf("no document path for workflow %q", p.WorkflowID)
	}
	if err := s.opener.Open(ctx, path); err != nil {
		return observability.OutcomeGenericError, err
	}
	return observability.OutcomeSuccess, nil
}

func (s *Server) schema() (*schema.Document, error) {
	if s.schemaCache == nil {
		return schema.LoadDefault()
	}
	return s.schemaCache.Load(s.schemaPath)
}

// reply builds an outbound envelope. Payloads are plain structs, so encoding
// failures fall back to a bare ERROR that still settles the request.
func (s *Server) reply(t domain.MessageType, requestID string, payload any) *domain.Message {
	msg, err := domain.NewMessage(t, requestID, payload)
	if err != nil {
		s.logger.Error("Failed to encode reply", "type", t, "err", err)
		raw, _ := json.Marshal(domain.ErrorPayload{Message: "internal encoding error"})
		msg = domain.Message{Type: domain.MsgError, RequestID: requestID, Payload: raw}
	}
	return &msg
}
