package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNodeNotFound is returned when an operation addresses a node id that does not exist.
var ErrNodeNotFound = errors.New("node not found")

// ErrTerminalNode is returned when an operation would remove or duplicate a start/end node.
// It signals a rejected, non-fatal no-op: the graph is left untouched.
var ErrTerminalNode = errors.New("terminal node is protected")

// ErrDuplicateNode is returned when adding a node whose id already exists.
var ErrDuplicateNode = errors.New("node with this ID already exists")

// ErrInvalidGraph is the root of every structural validation failure.
var ErrInvalidGraph = errors.New("invalid graph")

// ErrConversationNotFound is returned when no conversation history is stored for a workflow.
var ErrConversationNotFound = errors.New("conversation not found")

// ErrWorkflowNotFound is returned when a workflow document cannot be found.
var ErrWorkflowNotFound = errors.New("workflow not found")

// ValidationError represents a single structural violation.
type ValidationError struct {
	Field  string // "nodes", "edges", "selectedNodeId", "connections"
	ID     string // Offending element id, if any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Field, e.ID, e.Reason)
}

// Unwrap lets errors.Is(err, ErrInvalidGraph) match any validation error.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidGraph
}

// AggregateError represents multiple validation failures.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  %d. %s", i+1, err.Error())
	}
	return sb.String()
}

// Unwrap exposes every aggregated error to errors.Is / errors.As.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// Join returns nil for no errors, the error itself for one, and an AggregateError otherwise.
func Join(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return &AggregateError{Errors: errs}
	}
}

// ValidationErrors returns all validation errors if err is an AggregateError.
// A single ValidationError is returned as a one-element slice; anything else yields nil.
func ValidationErrors(err error) []error {
	var aggr *AggregateError
	if errors.As(err, &aggr) {
		return aggr.Errors
	}
	var single *ValidationError
	if errors.As(err, &single) {
		return []error{single}
	}
	return nil
}

// ErrTransportClosed is returned by transports once the underlying connection is gone.
var ErrTransportClosed = errors.New("transport closed")

// ErrUnparseableWorkflow is returned by refiners whose output is not a workflow document.
var ErrUnparseableWorkflow = errors.New("refiner output is not a valid workflow document")

// ErrCommandNotFound is returned when an external program (refiner, editor) is not installed.
var ErrCommandNotFound = errors.New("command not found")
