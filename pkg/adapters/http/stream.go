package http

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
)

// StreamManager fans push events out to active SSE connections.
// It implements host.Publisher, so a Previewer can publish straight into it.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[chan domain.Message]struct{}
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[chan domain.Message]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a connection. The returned function unregisters it and closes the channel.
func (sm *StreamManager) Subscribe() (<-chan domain.Message, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan domain.Message, 16)
	sm.subscribers[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			delete(sm.subscribers, ch)
			close(ch)
		})
	}
}

// Send broadcasts msg. Slow clients miss events rather than stall the publisher.
func (sm *StreamManager) Send(_ context.Context, msg domain.Message) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("SSE: Client buffer full, dropping message", "type", msg.Type)
		}
	}
	return nil
}

// Subscribers reports the number of open connections.
func (sm *StreamManager) Subscribers() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers)
}
