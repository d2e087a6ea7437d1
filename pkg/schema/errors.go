package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels matched by errors.Is against a *LoadError.
var (
	ErrNotFound = errors.New("schema not found")
	ErrParse    = errors.New("schema parse error")
	ErrUnknown  = errors.New("schema load failed")
)

// LoadErrorKind classifies a schema load failure. The kinds are mutually exclusive.
type LoadErrorKind int

const (
	KindUnknown LoadErrorKind = iota
	KindNotFound
	KindParseError
)

func (k LoadErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindParseError:
		return "ParseError"
	default:
		return "Unknown"
	}
}

// LoadError is returned by Cache.Load.
type LoadError struct {
	Kind LoadErrorKind
	Path string
	// Message is the parser diagnostic (ParseError) or the underlying message (Unknown).
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("schema %s: %s", e.Path, e.Kind)
	}
	return fmt.Sprintf("schema %s: %s: %s", e.Path, e.Kind, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *LoadError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrParse:
		return e.Kind == KindParseError
	case ErrUnknown:
		return e.Kind == KindUnknown
	}
	return false
}

// ValidationError represents a single field validation failure.
type ValidationError struct {
	NodeID string // Set when raised while validating a workflow
	Key    string // Field name
	Reason string // Human-readable reason for failure
	Value  any    // The value that failed validation
}

func (e *ValidationError) Error() string {
	prefix := ""
	if e.NodeID != "" {
		prefix = fmt.Sprintf("node %q: ", e.NodeID)
	}
	if e.Value == nil {
		return fmt.Sprintf("%sfield %q: %s", prefix, e.Key, e.Reason)
	}
	return fmt.Sprintf("%sfield %q: %s (got %T)", prefix, e.Key, e.Reason, e.Value)
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

func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// ValidationErrors returns all validation errors if err is an AggregateError.
// Otherwise returns nil.
func ValidationErrors(err error) []error {
	var aggr *AggregateError
	if errors.As(err, &aggr) {
		return aggr.Errors
	}
	return nil
}
