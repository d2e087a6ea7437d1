package channel

import (
	"log/slog"
	"time"

	"github.com/aretw0/arbor/pkg/observability"
)

// DefaultTimeout is used for requests that do not set one.
const DefaultTimeout = 5 * time.Second

// DefaultTimeoutMargin is added to a host-declared timeout to obtain the local one,
// so that a host-side timeout response can still be observed before the local timer fires.
const DefaultTimeoutMargin = 5 * time.Second

// Option defines a functional option for configuring the Channel.
type Option func(*Channel)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

// WithMetrics configures the metrics recorder.
func WithMetrics(m observability.Recorder) Option {
	return func(c *Channel) {
		c.metrics = m
	}
}

// WithSpanManager configures request tracing.
func WithSpanManager(s observability.SpanManager) Option {
	return func(c *Channel) {
		c.spans = s
	}
}

// WithDefaultTimeout overrides DefaultTimeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Channel) {
		c.defaultTimeout = d
	}
}

// WithIDGenerator overrides the correlation id generator (uuid by default).
func WithIDGenerator(gen func() string) Option {
	return func(c *Channel) {
		c.newID = gen
	}
}
