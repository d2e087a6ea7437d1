package refinement

import (
	"errors"
	"fmt"

	"github.com/aretw0/arbor/pkg/channel"
	"github.com/aretw0/arbor/pkg/domain"
)

// User-facing messages for failures the host did not describe itself.
const (
	TimeoutMessage      = "The refinement request timed out. Please try again or rephrase your request."
	CancelledMessage    = "The refinement request was cancelled."
	InvalidResultPrefix = "The refined workflow could not be applied"
	ClearFailedMessage  = "Failed to clear the conversation history."
)

// UIError is what the refinement flows surface to the user interface.
type UIError struct {
	Code    domain.FailureCode
	Message string
	Details string
	Err     error
}

func (e *UIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *UIError) Unwrap() error {
	return e.Err
}

// toUIError maps a channel error onto what the user sees.
// Domain failures are passed through verbatim.
func toUIError(err error) *UIError {
	var de *channel.DomainError
	var re *channel.ResponseError
	switch {
	case errors.As(err, &de):
		return &UIError{Code: domain.FailureCode(de.Code), Message: de.Message, Details: de.Details, Err: err}
	case errors.Is(err, channel.ErrTimeout):
		return &UIError{Code: domain.CodeTimeout, Message: TimeoutMessage, Err: err}
	case errors.Is(err, channel.ErrCanceled):
		return &UIError{Code: domain.CodeCancelled, Message: CancelledMessage, Err: err}
	case errors.As(err, &re):
		return &UIError{Code: domain.CodeUnknownError, Message: re.Message, Details: re.Details, Err: err}
	default:
		return &UIError{Code: domain.CodeUnknownError, Message: err.Error(), Err: err}
	}
}
