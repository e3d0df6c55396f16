// Package observability provides an OpenTelemetry metrics extension. The
// MetricsExtension implements lifecycle hooks to count enqueues,
// reservations, completions, failures, releases and worker registrations.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
