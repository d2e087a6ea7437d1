// Package preview follows a workflow document edited outside the designer.
// The Observer is read-only: it never sends anything to the host.
package preview

import (
	"log/slog"
	"sync"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/channel"
	"github.com/aretw0/arbor/pkg/domain"
)

// State is what a preview pane shows.
type State struct {
	// Active is set once PREVIEW_MODE_INIT has been received.
	Active   bool
	Workflow *domain.Workflow
	// ParseError is the latest parse failure. It is cleared by the next good document,
	// while Workflow keeps the last good one.
	ParseError *domain.PreviewParseErrorPayload
}

// Listener is notified with the state after every event.
type Listener func(State)

// EventSource registers push event handlers. *channel.Channel satisfies it.
type EventSource interface {
	OnEvent(t domain.MessageType, h channel.EventHandler) func()
}

// Observer folds preview events into a State.
type Observer struct {
	mu        sync.Mutex
	state     State
	listeners map[int]Listener
	nextID    int
	logger    *slog.Logger
}

// NewObserver creates an inactive Observer.
func NewObserver(logger *slog.Logger) *Observer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Observer{listeners: make(map[int]Listener), logger: logger}
}

// Attach subscribes the Observer to the preview events of src.
// The returned function detaches it.
func (o *Observer) Attach(src EventSource) func() {
	unsubs := []func(){
		src.OnEvent(domain.MsgPreviewModeInit, o.Handle),
		src.OnEvent(domain.MsgPreviewUpdate, o.Handle),
		src.OnEvent(domain.MsgPreviewParseError, o.Handle),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Handle applies one preview event. Other message types are ignored.
func (o *Observer) Handle(msg domain.Message) {
	o.mu.Lock()
	switch msg.Type {
	case domain.MsgPreviewModeInit, domain.MsgPreviewUpdate:
		var p domain.PreviewPayload
		if err := msg.Decode(&p); err != nil {
			o.mu.Unlock()
			o.logger.Warn("Dropping malformed preview event", "type", msg.Type, "err", err)
			return
		}
		if msg.Type == domain.MsgPreviewUpdate && !o.state.Active {
			o.logger.Debug("Preview update before init")
		}
		o.state.Active = true
		o.state.Workflow = &p.Workflow
		o.state.ParseError = nil
	case domain.MsgPreviewParseError:
		var p domain.PreviewParseErrorPayload
		if err := msg.Decode(&p); err != nil {
			p = domain.PreviewParseErrorPayload{Message: "unreadable parse error"}
		}
		o.state.ParseError = &p
	default:
		o.mu.Unlock()
		return
	}
	state := o.state
	listeners := make([]Listener, 0, len(o.listeners))
	for _, l := range o.listeners {
		listeners = append(listeners, l)
	}
	o.mu.Unlock()

	for _, l := range listeners {
		l(state)
	}
}

// State returns the current state.
func (o *Observer) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Subscribe registers l and returns the function that removes it.
func (o *Observer) Subscribe(l Listener) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	id := o.nextID
	o.listeners[id] = l
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.listeners, id)
	}
}
