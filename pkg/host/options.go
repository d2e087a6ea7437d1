package host

import (
	"log/slog"
	"time"

	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/schema"
	"github.com/aretw0/arbor/pkg/session"
)

// DefaultRefineTimeout applies when a request declares no timeoutMs.
const DefaultRefineTimeout = 60 * time.Second

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSessions sets the conversation manager. Defaults to an in-memory one.
func WithSessions(m *session.Manager) Option {
	return func(s *Server) {
		s.sessions = m
	}
}

// WithSchema validates refined workflows against the document at path,
// loaded once through cache. Without it the embedded default document is used.
func WithSchema(cache *schema.Cache, path string) Option {
	return func(s *Server) {
		s.schemaCache = cache
		s.schemaPath = path
	}
}

// WithOpener enables OPEN_WORKFLOW_IN_EDITOR.
func WithOpener(o ports.Opener) Option {
	return func(s *Server) {
		s.opener = o
	}
}

// WithLibrary resolves document paths for OPEN_WORKFLOW_IN_EDITOR requests without one.
func WithLibrary(lib ports.WorkflowLibrary) Option {
	return func(s *Server) {
		s.library = lib
	}
}

// WithMetrics records handled requests.
func WithMetrics(r observability.Recorder) Option {
	return func(s *Server) {
		s.metrics = r
	}
}

// WithSpanManager traces handled requests.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(s *Server) {
		s.spans = sm
	}
}

// WithMaxIterations caps conversation turns for histories that do not carry a limit.
func WithMaxIterations(n int) Option {
	return func(s *Server) {
		s.maxIterations = n
	}
}

// WithDefaultTimeout overrides DefaultRefineTimeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.defaultTimeout = d
	}
}

// WithClock overrides the time source for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithIDGenerator overrides how conversation message ids are minted.
func WithIDGenerator(gen func() string) Option {
	return func(s *Server) {
		s.newID = gen
	}
}
