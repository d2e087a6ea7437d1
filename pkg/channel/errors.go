package channel

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when no response arrived before the local timeout.
	ErrTimeout = errors.New("request timed out")
	// ErrCanceled is returned when the caller's context ended first.
	ErrCanceled = errors.New("request canceled")
	// ErrClosed is returned when the channel or its transport is closed.
	ErrClosed = errors.New("channel closed")
	// ErrInvalidRequest is returned for requests missing a type or an expected success type.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrDuplicateRequestID is returned when a caller-supplied id is already in flight.
	ErrDuplicateRequestID = errors.New("request id already in flight")
)

// DomainError is an explicit, typed rejection returned by the host.
// Its fields are surfaced verbatim to the user.
type DomainError struct {
	RequestID string
	Code      string
	Message   string
	Details   string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ResponseError is a generic failure: an ERROR message or a response of unexpected shape.
type ResponseError struct {
	RequestID string
	Type      string
	Message   string
	Details   string
}

func (e *ResponseError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Details)
	}
	return e.Message
}
