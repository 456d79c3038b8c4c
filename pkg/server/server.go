package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"kiira-hq/gateway/pkg/config"
	"kiira-hq/gateway/pkg/gateway"
	"kiira-hq/gateway/pkg/proxy/handlers"
	"kiira-hq/gateway/pkg/proxy/middleware"
	"kiira-hq/gateway/pkg/telemetry/metrics"
	"kiira-hq/gateway/pkg/telemetry/tracing"
)

// Server is the gateway's HTTP server.
type Server struct {
	config    *config.Config
	gateway   *gateway.Gateway
	collector *metrics.Collector
	tracer    *tracing.Tracer
	logger    *slog.Logger
	version   string

	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	addr         net.Addr
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves collector's registry on the configured metrics path
// and records request metrics into it.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.collector = c }
}

// WithTracer opens a server span per request.
func WithTracer(t *tracing.Tracer) Option {
	return func(s *Server) { s.tracer = t }
}

// WithLogger sets the request and lifecycle logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithVersion sets the version reported on GET /.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a server for gw.
func NewServer(cfg *config.Config, gw *gateway.Gateway, opts ...Option) *Server {
	s := &Server{
		config:  cfg,
		gateway: gw,
		logger:  slog.Default(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start serves until ctx is canceled or the listener fails, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	srvCfg := s.config.Server
	ln, err := net.Listen("tcp", srvCfg.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen on %s: %w", srvCfg.ListenAddress, err)
	}

	s.httpServer = &http.Server{
		Handler:        s.Handler(),
		ReadTimeout:    srvCfg.ReadTimeout,
		WriteTimeout:   srvCfg.WriteTimeout,
		IdleTimeout:    srvCfg.IdleTimeout,
		MaxHeaderBytes: srvCfg.MaxHeaderBytes,
	}
	s.addr = ln.Addr()
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening",
			"address", ln.Addr().String(),
			"auth_enabled", !s.config.Auth.AuthDisabled(),
		)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown requested")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}
}

// Shutdown stops accepting connections and waits up to the configured
// shutdown timeout for in-flight requests, including open streams.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		running := s.isRunning
		s.mu.RUnlock()
		if !running {
			return
		}

		timeout := s.config.Server.ShutdownTimeout
		s.logger.Info("initiating graceful shutdown", "timeout", timeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("gateway stopped")
	})

	return shutdownErr
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	auth := middleware.AuthMiddleware(s.config.Auth, s.logger)
	catalogTimeout := middleware.TimeoutMiddleware(s.config.Upstream.RequestTimeout)

	mux.Handle("POST /v1/chat/completions",
		auth(handlers.NewChatHandler(s.gateway, s.logger)))
	mux.Handle("GET /v1/models",
		auth(catalogTimeout(handlers.NewModelsHandler(s.gateway, s.config.Agents.DefaultAgent, s.logger))))
	mux.Handle("GET /health", handlers.NewHealthHandler())
	mux.Handle("GET /ready", catalogTimeout(handlers.NewReadyHandler(s.gateway, s.logger)))
	mux.Handle("GET /{$}", handlers.NewRootHandler(s.version))

	if m := s.config.Telemetry.Metrics; m.Enabled && m.Path != "" && s.collector != nil {
		mux.Handle("GET "+m.Path, s.collector.Handler())
	}

	var handler http.Handler = mux
	handler = middleware.CORSMiddleware(middleware.NewCORSConfig(s.config.Server.CORS))(handler)
	handler = tracing.HTTPMiddleware(s.tracer)(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.LoggingMiddleware(s.logger, s.collector)(handler)
	handler = middleware.RecoveryMiddleware(s.logger)(handler)

	return handler
}
