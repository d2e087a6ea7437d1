package memory

import (
	"context"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
)

// Store implements ports.ConversationStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.ConversationHistory
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.ConversationHistory),
	}
}

// Save persists the history in memory.
func (s *Store) Save(ctx context.Context, workflowID string, history *domain.ConversationHistory) error {
	// Copy on write so the caller keeps ownership of its value.
	copied := history.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[workflowID] = copied
	return nil
}

// Load retrieves the history from memory.
func (s *Store) Load(ctx context.Context, workflowID string) (*domain.ConversationHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[workflowID]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return history.Clone(), nil
}

// Delete removes the history.
func (s *Store) Delete(ctx context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, workflowID)
	return nil
}

// List returns the workflows with a stored history.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}
