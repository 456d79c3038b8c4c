// Package metrics provides Prometheus metrics for the Kiira gateway.
//
// # Metrics Categories
//
//   - Request metrics: inbound requests, completions by outcome, open streams
//   - Upstream metrics: call count and latency per operation, pool waits, retries
//   - Session metrics: stored sessions, creations, reuse and expiry
//   - Stream metrics: chunks sent, malformed lines, media, failures
//   - Catalog metrics: cache hits and refreshes, alias resolutions
//   - Credential metrics: account record writes
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
//	collector.RecordUpstreamCall("send_message", "success", 180*time.Millisecond)
//
// Every method is a no-op on a nil collector or when metrics are disabled.
package metrics
