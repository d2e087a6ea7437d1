package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome is the terminal state a request settled in.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeDomainFailure Outcome = "domain_failure"
	OutcomeGenericError  Outcome = "generic_error"
	OutcomeTimeout       Outcome = "timeout"
	OutcomeCanceled      Outcome = "canceled"
	OutcomeClosed        Outcome = "closed"
)

// Recorder records channel and host metrics.
// Use NewMetrics() for Prometheus or NoopMetrics{} when disabled.
type Recorder interface {
	// RecordRequest records a settled client request.
	RecordRequest(reqType string, outcome Outcome, duration time.Duration)

	// SetPending reports the number of in-flight client requests.
	SetPending(n int)

	// RecordOrphan records a response whose request id had no pending entry (late or duplicate).
	RecordOrphan(msgType string)

	// RecordHandled records a request handled by the host.
	RecordHandled(reqType string, outcome Outcome, duration time.Duration)
}

// Metrics implements Recorder using Prometheus collectors.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	pending         prometheus.Gauge
	orphans         *prometheus.CounterVec
	handled         *prometheus.CounterVec
	handleDuration  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg leaves them unregistered (useful in tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbor_channel_requests_total",
				Help: "Total number of client requests by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arbor_channel_request_duration_seconds",
				Help:    "Time from send to settle of client requests",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"type"},
		),
		pending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arbor_channel_pending_requests",
				Help: "Number of in-flight client requests",
			},
		),
		orphans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbor_channel_orphaned_responses_total",
				Help: "Responses dropped because no request was waiting for them",
			},
			[]string{"type"},
		),
		handled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbor_host_requests_total",
				Help: "Total number of requests handled by the host by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		handleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arbor_host_request_duration_seconds",
				Help:    "Host-side processing time",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"type"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.requestDuration, m.pending, m.orphans, m.handled, m.handleDuration)
	}
	return m
}

func (m *Metrics) RecordRequest(reqType string, outcome Outcome, duration time.Duration) {
	m.requests.WithLabelValues(reqType, string(outcome)).Inc()
	m.requestDuration.WithLabelValues(reqType).Observe(duration.Seconds())
}

func (m *Metrics) SetPending(n int) {
	m.pending.Set(float64(n))
}

func (m *Metrics) RecordOrphan(msgType string) {
	m.orphans.WithLabelValues(msgType).Inc()
}

func (m *Metrics) RecordHandled(reqType string, outcome Outcome, duration time.Duration) {
	m.handled.WithLabelValues(reqType, string(outcome)).Inc()
	m.handleDuration.WithLabelValues(reqType).Observe(duration.Seconds())
}
