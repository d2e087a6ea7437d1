package graph

import (
	"log/slog"

	"github.com/aretw0/arbor/pkg/domain"
)

// Option defines a functional option for configuring the Store.
type Option func(*Store)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithWarningHandler registers the receiver of non-fatal warnings,
// such as an attempt to remove a terminal node.
func WithWarningHandler(h func(Warning)) Option {
	return func(s *Store) {
		s.onWarning = h
	}
}

// WithIDGenerator overrides the id generator used for new edges and nodes (uuid by default).
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		s.newID = gen
	}
}

// WithInitial starts the store from g instead of the canonical two-node graph.
// An invalid g makes New fail.
func WithInitial(g domain.Graph) Option {
	return func(s *Store) {
		s.initial = &g
	}
}
