package host

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/refinement"
	"github.com/aretw0/arbor/pkg/schema"
)

// ErrIterationLimit is returned when a conversation has used all its turns.
var ErrIterationLimit = errors.New("conversation iteration limit reached")

// ErrHandlerPanic wraps a panic recovered while handling a request.
var ErrHandlerPanic = errors.New("request handler panicked")

// ErrInvalidPayload is returned when a request payload cannot be decoded.
var ErrInvalidPayload = errors.New("invalid request payload")

// failure maps a refinement error onto the wire failure and a metrics outcome.
func failure(err error, timeout string) (domain.FailureDetail, observability.Outcome) {
	var schemaErr *schema.ValidationError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.FailureDetail{
			Code:    domain.CodeTimeout,
			Message: fmt.Sprintf("Refinement did not finish within %s.", timeout),
		}, observability.OutcomeTimeout
	case errors.Is(err, context.Canceled):
		return domain.FailureDetail{
			Code:    domain.CodeCancelled,
			Message: "Refinement was cancelled.",
		}, observability.OutcomeCanceled
	case errors.Is(err, ErrIterationLimit):
		return domain.FailureDetail{
			Code:    domain.CodeIterationLimitReached,
			Message: "This conversation reached its iteration limit. Clear it to continue refining.",
		}, observability.OutcomeDomainFailure
	case errors.Is(err, ErrInvalidPayload),
		errors.Is(err, refinement.ErrMessageEmpty),
		errors.Is(err, refinement.ErrMessageTooLong),
		errors.Is(err, refinement.ErrInvalidUTF8):
		return domain.FailureDetail{
			Code:    domain.CodeValidationError,
			Message: "The refinement request is invalid.",
			Details: err.Error(),
		}, observability.OutcomeDomainFailure
	case errors.Is(err, domain.ErrUnparseableWorkflow):
		return domain.FailureDetail{
			Code:    domain.CodeParseError,
			Message: "The assistant returned a workflow that could not be parsed.",
			Details: err.Error(),
		}, observability.OutcomeDomainFailure
	case errors.Is(err, domain.ErrCommandNotFound):
		return domain.FailureDetail{
			Code:    domain.CodeCommandNotFound,
			Message: "The refinement command is not available on this host.",
			Details: err.Error(),
		}, observability.OutcomeDomainFailure
	case errors.Is(err, domain.ErrInvalidGraph), errors.As(err, &schemaErr):
		return domain.FailureDetail{
			Code:    domain.CodeValidationError,
			Message: "The refined workflow is invalid.",
			Details: err.Error(),
		}, observability.OutcomeDomainFailure
	default:
		return domain.FailureDetail{
			Code:    domain.CodeUnknownError,
			Message: "Refinement failed unexpectedly.",
			Details: err.Error(),
		}, observability.OutcomeGenericError
	}
}
