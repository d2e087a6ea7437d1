package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// RefineRequest is the input handed to a Refiner.
type RefineRequest struct {
	Workflow domain.Workflow
	Message  string
	History  *domain.ConversationHistory
}

// RefineResult is what a Refiner produces.
type RefineResult struct {
	Workflow domain.Workflow
	// Message is the assistant's reply shown to the user. It may be empty.
	Message string
}

// Refiner is the host-side AI collaborator.
// Implementations must honour ctx: the host runs them under the declared timeout.
type Refiner interface {
	Refine(ctx context.Context, req RefineRequest) (*RefineResult, error)
}

// RefinerFunc adapts a function to the Refiner interface.
type RefinerFunc func(ctx context.Context, req RefineRequest) (*RefineResult, error)

func (f RefinerFunc) Refine(ctx context.Context, req RefineRequest) (*RefineResult, error) {
	return f(ctx, req)
}

// Opener opens a workflow document in an external editor.
type Opener interface {
	Open(ctx context.Context, path string) error
}
