/*
Package observability provides metrics and tracing for the Arbor client/host channel.

Metrics are exported through Prometheus (request outcomes, in-flight requests,
latency, orphaned responses). Traces are emitted through the global
OpenTelemetry tracer provider, one span per request on each side of the channel.
Both come with no-op implementations used when observability is disabled.
*/
package observability
