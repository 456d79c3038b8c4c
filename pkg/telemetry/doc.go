// Package telemetry groups the gateway's observability packages.
//
//   - logging: slog-based structured logging with secret redaction
//   - metrics: Prometheus collector served on /metrics
//   - tracing: OpenTelemetry spans exported over OTLP gRPC
package telemetry
