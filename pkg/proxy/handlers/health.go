package handlers

import (
	"log/slog"
	"net/http"

	"kiira-hq/gateway/pkg/gateway"
	"kiira-hq/gateway/pkg/proxy"
	"kiira-hq/gateway/pkg/telemetry/logging"
)

// HealthHandler answers liveness probes on GET /health.
type HealthHandler struct{}

// NewHealthHandler creates a new health check handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// ServeHTTP implements http.Handler.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = proxy.WriteJSONResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ReadyHandler answers readiness probes on GET /ready. The gateway is
// ready when the agent catalog can be served, fresh or stale.
type ReadyHandler struct {
	gateway *gateway.Gateway
	logger  *slog.Logger
}

// NewReadyHandler creates a readiness handler.
func NewReadyHandler(gw *gateway.Gateway, logger *slog.Logger) *ReadyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReadyHandler{gateway: gw, logger: logger}
}

// ServeHTTP implements http.Handler.
func (h *ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	entries, err := h.gateway.Resolver().Catalog(r.Context(), nil, "")
	if err != nil {
		h.logger.WarnContext(r.Context(), "readiness check failed",
			append(logging.Attrs(r.Context()), "error", err)...)
		_ = proxy.WriteJSONResponse(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  "agent catalog unavailable",
		})
		return
	}

	_ = proxy.WriteJSONResponse(w, http.StatusOK, map[string]any{
		"status":   "ready",
		"agents":   len(entries),
		"sessions": h.gateway.Sessions().Len(),
	})
}

// RootHandler describes the service on GET /.
type RootHandler struct {
	version string
}

// NewRootHandler creates the service info handler.
func NewRootHandler(version string) *RootHandler {
	return &RootHandler{version: version}
}

// ServeHTTP implements http.Handler.
func (h *RootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = proxy.WriteJSONResponse(w, http.StatusOK, map[string]any{
		"message": "Kiira gateway is running",
		"version": h.version,
		"endpoints": []string{
			"POST /v1/chat/completions",
			"GET /v1/models",
			"GET /health",
			"GET /ready",
			"GET /metrics",
		},
	})
}
