// Package server runs the gateway's HTTP surface.
//
// Routes:
//
//	POST /v1/chat/completions   chat completions, batch or SSE (auth)
//	GET  /v1/models             configured or catalog models (auth)
//	GET  /health                liveness
//	GET  /ready                 catalog reachability
//	GET  /                      service info
//	GET  <metrics path>         Prometheus exposition, when enabled
//
// Middleware runs outermost first: recovery, logging and request
// metrics, request ID, tracing, CORS. Authentication wraps only the /v1
// routes, so probes and scrapes never need a key.
//
// Usage:
//
//	srv := server.NewServer(cfg, gw,
//	    server.WithLogger(logger),
//	    server.WithMetrics(collector),
//	    server.WithVersion(version),
//	)
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
