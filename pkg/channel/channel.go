package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/google/uuid"
)

// Request describes one outbound request and the responses it expects.
type Request struct {
	Type domain.MessageType
	// RequestID is generated when empty.
	RequestID string
	Payload   any
	// Timeout is the local timeout. Zero means the channel default.
	Timeout time.Duration
	// Success is the response type that resolves the request.
	Success domain.MessageType
	// Failure is the response type carrying a typed domain rejection. Optional.
	Failure domain.MessageType
}

// Response is a successful, correlated response.
type Response struct {
	Type      domain.MessageType
	RequestID string
	Payload   json.RawMessage
}

// Decode unmarshals the response payload into v.
func (r *Response) Decode(v any) error {
	return domain.Message{Type: r.Type, RequestID: r.RequestID, Payload: r.Payload}.Decode(v)
}

// EventHandler receives push events. Handlers run on the dispatcher goroutine and must not block.
type EventHandler func(msg domain.Message)

type pendingRequest struct {
	reqType   domain.MessageType
	success   domain.MessageType
	failure   domain.MessageType
	createdAt time.Time
	done      chan domain.Message // buffered(1); written at most once
}

type subscription struct {
	id      uint64
	t       domain.MessageType
	handler EventHandler
}

// Channel is the client end of the client/host protocol.
type Channel struct {
	transport ports.Transport

	logger         *slog.Logger
	metrics        observability.Recorder
	spans          observability.SpanManager
	defaultTimeout time.Duration
	newID          func() string

	mu      sync.Mutex
	pending map[string]*pendingRequest
	subs    []subscription
	nextSub uint64

	closed    chan struct{}
	closeOnce sync.Once
}

// New creates a channel over the given transport. Call Run to start dispatching.
func New(transport ports.Transport, opts ...Option) *Channel {
	c := &Channel{
		transport:      transport,
		logger:         logging.NewNop(),
		metrics:        observability.NoopMetrics{},
		spans:          observability.NoopSpanManager{},
		defaultTimeout: DefaultTimeout,
		newID:          uuid.NewString,
		pending:        make(map[string]*pendingRequest),
		closed:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pending returns the number of in-flight requests.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Send issues a request and blocks until it settles.
func (c *Channel) Send(ctx context.Context, req Request) (*Response, error) {
	if req.Type == "" || req.Success == "" {
		return nil, fmt.Errorf("%w: type and success type are required", ErrInvalidRequest)
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	id := req.RequestID
	if id == "" {
		id = c.newID()
	}

	msg, err := domain.NewMessage(req.Type, id, req.Payload)
	if err != nil {
		return nil, err
	}

	p := &pendingRequest{
		reqType:   req.Type,
		success:   req.Success,
		failure:   req.Failure,
		createdAt: time.Now(),
		done:      make(chan domain.Message, 1),
	}
	if err := c.register(id, p); err != nil {
		return nil, err
	}
	defer c.unregister(id)

	ctx, span := c.spans.StartRequestSpan(ctx, string(req.Type), id)
	logger := c.logger.With("request_id", id, "type", req.Type)

	resp, outcome, err := c.await(ctx, msg, p, timeout)

	c.metrics.RecordRequest(string(req.Type), outcome, time.Since(p.createdAt))
	c.spans.EndSpanWithError(span, err)
	if err != nil {
		logger.Debug("request settled", "outcome", outcome, "err", err)
	} else {
		logger.Debug("request settled", "outcome", outcome)
	}
	return resp, err
}

func (c *Channel) await(ctx context.Context, msg domain.Message, p *pendingRequest, timeout time.Duration) (*Response, observability.Outcome, error) {
	if err := c.transport.Send(ctx, msg); err != nil {
		if errors.Is(err, domain.ErrTransportClosed) {
			return nil, observability.OutcomeClosed, fmt.Errorf("%w: %w", ErrClosed, err)
		}
		if ctx.Err() != nil {
			return nil, observability.OutcomeCanceled, fmt.Errorf("%w: %w", ErrCanceled, context.Cause(ctx))
		}
		return nil, observability.OutcomeGenericError, fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case in := <-p.done:
		return c.classify(p, in)
	case <-timer.C:
		return nil, observability.OutcomeTimeout, fmt.Errorf("%w: %s %s after %s", ErrTimeout, msg.Type, msg.RequestID, timeout)
	case <-ctx.Done():
		return nil, observability.OutcomeCanceled, fmt.Errorf("%w: %w", ErrCanceled, context.Cause(ctx))
	case <-c.closed:
		return nil, observability.OutcomeClosed, ErrClosed
	}
}

func (c *Channel) classify(p *pendingRequest, msg domain.Message) (*Response, observability.Outcome, error) {
	switch {
	case msg.Type == p.success:
		return &Response{Type: msg.Type, RequestID: msg.RequestID, Payload: msg.Payload}, observability.OutcomeSuccess, nil
	case p.failure != "" && msg.Type == p.failure:
		if de, ok := decodeFailure(msg); ok {
			return nil, observability.OutcomeDomainFailure, de
		}
		return nil, observability.OutcomeGenericError, &ResponseError{
			RequestID: msg.RequestID,
			Type:      string(msg.Type),
			Message:   fmt.Sprintf("malformed %s response", msg.Type),
		}
	case msg.Type == domain.MsgError:
		return nil, observability.OutcomeGenericError, decodeGeneric(msg)
	default:
		return nil, observability.OutcomeGenericError, &ResponseError{
			RequestID: msg.RequestID,
			Type:      string(msg.Type),
			Message:   fmt.Sprintf("unexpected response type %s", msg.Type),
		}
	}
}

func (c *Channel) register(id string, p *pendingRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	if _, exists := c.pending[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRequestID, id)
	}
	c.pending[id] = p
	c.metrics.SetPending(len(c.pending))
	return nil
}

func (c *Channel) unregister(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
	c.metrics.SetPending(len(c.pending))
}

// take removes and returns the pending entry for id, so that only one response settles it.
func (c *Channel) take(id string) (*pendingRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
		c.metrics.SetPending(len(c.pending))
	}
	return p, ok
}

// Post sends a fire-and-forget message.
func (c *Channel) Post(ctx context.Context, t domain.MessageType, payload any) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	msg, err := domain.NewMessage(t, "", payload)
	if err != nil {
		return err
	}
	if err := c.transport.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to post %s: %w", t, err)
	}
	return nil
}

// OnEvent registers a handler for push events of type t.
// The returned function removes the handler.
func (c *Channel) OnEvent(t domain.MessageType, h EventHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	id := c.nextSub
	c.subs = append(c.subs, subscription{id: id, t: t, handler: h})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// Run is the dispatcher loop. It blocks until ctx is done or the transport closes,
// then closes the channel so that in-flight requests settle with ErrClosed.
func (c *Channel) Run(ctx context.Context) error {
	defer c.shutdown()
	for {
		msg, err := c.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, domain.ErrTransportClosed) {
				c.logger.Debug("transport closed, dispatcher stopping")
				return nil
			}
			return fmt.Errorf("dispatcher receive failed: %w", err)
		}
		c.dispatch(msg)
	}
}

func (c *Channel) dispatch(msg domain.Message) {
	if msg.RequestID == "" {
		c.publish(msg)
		return
	}
	p, ok := c.take(msg.RequestID)
	if !ok {
		// Late (after timeout) or duplicate delivery.
		c.logger.Debug("dropping orphaned response", "request_id", msg.RequestID, "type", msg.Type)
		c.metrics.RecordOrphan(string(msg.Type))
		return
	}
	p.done <- msg
}

func (c *Channel) publish(msg domain.Message) {
	c.mu.Lock()
	var handlers []EventHandler
	for _, s := range c.subs {
		if s.t == msg.Type {
			handlers = append(handlers, s.handler)
		}
	}
	c.mu.Unlock()

	if len(handlers) == 0 {
		c.logger.Debug("no handler for event", "type", msg.Type)
		return
	}
	for _, h := range handlers {
		h(msg)
	}
}

func (c *Channel) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

// Close stops the channel and closes the transport.
// In-flight requests settle with ErrClosed.
func (c *Channel) Close() error {
	c.shutdown()
	return c.transport.Close()
}
