package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// ConversationStore defines the interface for persisting refinement conversations.
// Histories are keyed by workflow id.
type ConversationStore interface {
	// Save persists the history for a given workflow ID.
	Save(ctx context.Context, workflowID string, history *domain.ConversationHistory) error

	// Load retrieves the history for a given workflow ID.
	// Returns domain.ErrConversationNotFound if none exists.
	Load(ctx context.Context, workflowID string) (*domain.ConversationHistory, error)

	// Delete removes the history for a given workflow ID.
	// Deleting a missing history is not an error.
	Delete(ctx context.Context, workflowID string) error

	// List returns the workflow IDs that have a stored history.
	List(ctx context.Context) ([]string, error)
}
