package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// WorkflowLibrary defines where workflow documents live.
// This allows the storage layer (Loam, Memory) to be decoupled.
type WorkflowLibrary interface {
	// Get retrieves a workflow by ID.
	// Returns domain.ErrWorkflowNotFound if it does not exist.
	Get(ctx context.Context, id string) (domain.Workflow, error)

	// Save persists the workflow under its ID.
	Save(ctx context.Context, wf domain.Workflow) error

	// List returns the IDs of all stored workflows.
	List(ctx context.Context) ([]string, error)

	// Path returns the location of the workflow document, if it has one.
	Path(id string) string
}

// Watchable defines an interface for libraries that can notify about backend changes.
// It powers the preview mode of the host.
type Watchable interface {
	// Watch returns a channel that receives the ID of every workflow that changed.
	Watch(ctx context.Context) (<-chan string, error)
}
