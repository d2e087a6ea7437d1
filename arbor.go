package arbor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	mermaid "github.com/aretw0/arbor/internal/presentation/graph"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/channel"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/host"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/preview"
	"github.com/aretw0/arbor/pkg/refinement"
)

// Designer is the client side of the designer: graph, channel, flows and preview.
type Designer struct {
	Channel    *channel.Channel
	Graph      *graph.Store
	Refinement *refinement.Service
	Preview    *preview.Observer

	meta   domain.Workflow
	logger *slog.Logger
	detach func()
	done   chan error

	closeOnce sync.Once
	closeErr  error
}

type settings struct {
	logger    *slog.Logger
	metrics   observability.Recorder
	spans     observability.SpanManager
	onWarning func(graph.Warning)
	timeout   time.Duration
	margin    time.Duration
}

// Option defines a functional option for configuring the Designer.
type Option func(*settings)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithMetrics records channel outcomes.
func WithMetrics(m observability.Recorder) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

// WithSpanManager traces channel requests.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(s *settings) {
		s.spans = sm
	}
}

// WithWarningHandler receives non-fatal graph warnings, e.g. a rejected terminal deletion.
func WithWarningHandler(h func(graph.Warning)) Option {
	return func(s *settings) {
		s.onWarning = h
	}
}

// WithTimeoutMargin sets how much longer the client waits than the host-declared timeout.
func WithTimeoutMargin(d time.Duration) Option {
	return func(s *settings) {
		s.margin = d
	}
}

// WithDefaultTimeout bounds requests sent without an explicit timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.timeout = d
	}
}

// New creates a Designer editing meta over t. Call Run to start dispatching.
// When meta has nodes they become the initial graph and its conversation history is restored.
func New(t ports.Transport, meta domain.Workflow, opts ...Option) (*Designer, error) {
	s := settings{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&s)
	}

	graphOpts := []graph.Option{graph.WithLogger(s.logger)}
	if s.onWarning != nil {
		graphOpts = append(graphOpts, graph.WithWarningHandler(s.onWarning))
	}
	if len(meta.Nodes) > 0 {
		graphOpts = append(graphOpts, graph.WithInitial(meta.ToGraph()))
	}
	store, err := graph.New(graphOpts...)
	if err != nil {
		return nil, err
	}

	chOpts := []channel.Option{channel.WithLogger(s.logger)}
	if s.metrics != nil {
		chOpts = append(chOpts, channel.WithMetrics(s.metrics))
	}
	if s.spans != nil {
		chOpts = append(chOpts, channel.WithSpanManager(s.spans))
	}
	if s.timeout > 0 {
		chOpts = append(chOpts, channel.WithDefaultTimeout(s.timeout))
	}
	ch := channel.New(t, chOpts...)

	refOpts := []refinement.Option{refinement.WithLogger(s.logger)}
	if s.margin > 0 {
		refOpts = append(refOpts, refinement.WithTimeoutMargin(s.margin))
	}
	svc := refinement.New(ch, store, refOpts...)
	if meta.ConversationHistory != nil {
		svc.SetHistory(meta.ID, meta.ConversationHistory)
	}

	observer := preview.NewObserver(s.logger)
	d := &Designer{
		Channel:    ch,
		Graph:      store,
		Refinement: svc,
		Preview:    observer,
		meta:       domain.Workflow{ID: meta.ID, Name: meta.Name, Description: meta.Description, Version: meta.Version},
		logger:     s.logger,
		detach:     observer.Attach(ch),
	}
	return d, nil
}

// NewEmbedded runs srv and a Designer in-process over a memory pipe.
// Both stop on Close or when ctx is done.
func NewEmbedded(ctx context.Context, srv *host.Server, meta domain.Workflow, opts ...Option) (*Designer, error) {
	clientEnd, hostEnd := memory.Pipe()
	d, err := New(clientEnd, meta, opts...)
	if err != nil {
		clientEnd.Close()
		return nil, err
	}

	go func() {
		if err := srv.Serve(ctx, hostEnd); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Warn("embedded host stopped", "err", err)
		}
	}()
	d.done = make(chan error, 1)
	go func() {
		d.done <- d.Channel.Run(ctx)
	}()
	return d, nil
}

// Run dispatches incoming messages until ctx is done or the transport closes.
func (d *Designer) Run(ctx context.Context) error {
	return d.Channel.Run(ctx)
}

// WorkflowID identifies the workflow under edit.
func (d *Designer) WorkflowID() string {
	return d.meta.ID
}

// Refine asks the host to refine the workflow with message.
// A zero declared timeout uses refinement.DefaultDeclaredTimeout.
// Failures are *refinement.UIError.
func (d *Designer) Refine(ctx context.Context, message string, declared time.Duration) (*refinement.RefineResult, error) {
	return d.Refinement.Refine(ctx, refinement.RefineInput{
		WorkflowID:      d.meta.ID,
		WorkflowName:    d.meta.Name,
		Message:         message,
		DeclaredTimeout: declared,
	})
}

// ClearConversation drops the refinement history on both sides.
func (d *Designer) ClearConversation(ctx context.Context) error {
	return d.Refinement.ClearConversation(ctx, d.meta.ID)
}

// OpenInEditor asks the host to open the workflow document. No response is expected.
func (d *Designer) OpenInEditor(ctx context.Context, path string) error {
	if err := d.Channel.Post(ctx, domain.MsgOpenWorkflowInEditor, domain.OpenInEditorPayload{
		WorkflowID: d.meta.ID,
		Path:       path,
	}); err != nil {
		return fmt.Errorf("open in editor: %w", err)
	}
	return nil
}

// Export returns the workflow under edit with its conversation history.
func (d *Designer) Export() domain.Workflow {
	wf := d.Graph.Export(d.meta)
	wf.ConversationHistory = d.Refinement.History(d.meta.ID)
	return wf
}

// Mermaid renders the current graph as a Mermaid flowchart.
func (d *Designer) Mermaid() string {
	return mermaid.GenerateMermaid(d.Graph.Snapshot(), nil)
}

// Close stops the channel; in-flight requests settle with channel.ErrClosed.
func (d *Designer) Close() error {
	d.closeOnce.Do(func() {
		d.detach()
		d.closeErr = d.Channel.Close()
		if d.done != nil {
			<-d.done
		}
	})
	return d.closeErr
}
