// Package tracing provides OpenTelemetry tracing for the Kiira gateway.
//
// Spans are opened around each inbound request, each orchestrator phase
// (resolve session, ensure identity, dispatch, stream/aggregate) and each
// upstream call. Export is OTLP over gRPC; when tracing is disabled the
// tracer is a noop with negligible overhead.
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "upstream.login")
//	defer func() { tracing.End(span, err) }()
package tracing
