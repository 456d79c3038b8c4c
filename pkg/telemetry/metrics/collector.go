package metrics

import (
	"sync"
	"time"

	"kiira-hq/gateway/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns every Prometheus metric the gateway exports. All methods
// are safe on a nil *Collector, so components can take an optional
// collector without guarding each call.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requestMetrics    *RequestMetrics
	upstreamMetrics   *UpstreamMetrics
	sessionMetrics    *SessionMetrics
	streamMetrics     *StreamMetrics
	catalogMetrics    *CatalogMetrics
	credentialMetrics *CredentialMetrics

	// Caller-supplied model names are bounded before they become labels.
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector registered on registry. A nil registry
// gets a fresh private one.
//
// Example:
//
//	cfg := &config.MetricsConfig{
//		Enabled:   true,
//		Namespace: "kiira",
//		Subsystem: "gateway",
//	}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		requestMetrics:     NewRequestMetrics(cfg, registry),
		upstreamMetrics:    NewUpstreamMetrics(cfg, registry),
		sessionMetrics:     NewSessionMetrics(cfg, registry),
		streamMetrics:      NewStreamMetrics(cfg, registry),
		catalogMetrics:     NewCatalogMetrics(cfg, registry),
		credentialMetrics:  NewCredentialMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(1000),
	}
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordRequest records a completed inbound HTTP request.
//
// Parameters:
//   - route: Route pattern (e.g., "/v1/chat/completions")
//   - method: HTTP method
//   - status: HTTP status code
//   - duration: Time until the handler returned (includes streaming)
func (c *Collector) RecordRequest(route, method string, status int, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.requestMetrics.RecordRequest(route, method, status, duration)
}

// RecordCompletion records the outcome of one chat completion.
//
// Parameters:
//   - model: Requested model alias
//   - mode: "stream" or "batch"
//   - outcome: "success", "client_error", "upstream_error", "timeout"
func (c *Collector) RecordCompletion(model, mode, outcome string) {
	if !c.enabled() {
		return
	}
	if !c.cardinalityLimiter.Allow(model) {
		model = "other"
	}
	c.requestMetrics.RecordCompletion(model, mode, outcome)
}

// StreamStarted marks an SSE response as open; the returned func marks it closed.
func (c *Collector) StreamStarted() func() {
	if !c.enabled() {
		return func() {}
	}
	c.requestMetrics.activeStreams.Inc()
	return c.requestMetrics.activeStreams.Dec
}

// RecordUpstreamCall records one upstream HTTP exchange.
//
// Parameters:
//   - operation: Logical call (e.g., "login", "send_message", "stream")
//   - outcome: "success", "status_error", "timeout", "transport_error"
//   - duration: Time until the response headers (stream) or body (unary) arrived
func (c *Collector) RecordUpstreamCall(operation, outcome string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.upstreamMetrics.RecordCall(operation, outcome, duration)
}

// UpstreamInFlight adjusts the in-flight upstream request gauge.
func (c *Collector) UpstreamInFlight(delta float64) {
	if !c.enabled() {
		return
	}
	c.upstreamMetrics.inFlight.Add(delta)
}

// RecordPoolWait records how long a request waited for a connection slot.
func (c *Collector) RecordPoolWait(wait time.Duration, timedOut bool) {
	if !c.enabled() {
		return
	}
	c.upstreamMetrics.RecordPoolWait(wait, timedOut)
}

// RecordUpstreamRetry counts a retried upstream call.
func (c *Collector) RecordUpstreamRetry(operation string) {
	if !c.enabled() {
		return
	}
	c.upstreamMetrics.retries.WithLabelValues(operation).Inc()
}

// SetSessions sets the current number of stored sessions.
func (c *Collector) SetSessions(n int) {
	if !c.enabled() {
		return
	}
	c.sessionMetrics.sessions.Set(float64(n))
}

// RecordSessionCreated counts a new session.
func (c *Collector) RecordSessionCreated() {
	if !c.enabled() {
		return
	}
	c.sessionMetrics.created.Inc()
}

// RecordSessionReused counts a request that continued an existing session.
func (c *Collector) RecordSessionReused() {
	if !c.enabled() {
		return
	}
	c.sessionMetrics.reused.Inc()
}

// RecordSessionsExpired counts expired sessions.
//
// Parameters:
//   - reason: "lazy" (found expired on access) or "sweep"
//   - n: Number of sessions removed
func (c *Collector) RecordSessionsExpired(reason string, n int) {
	if !c.enabled() || n <= 0 {
		return
	}
	c.sessionMetrics.expired.WithLabelValues(reason).Add(float64(n))
}

// RecordChunk counts a translated chunk sent to a caller.
func (c *Collector) RecordChunk(kind string) {
	if !c.enabled() {
		return
	}
	c.streamMetrics.chunks.WithLabelValues(kind).Inc()
}

// RecordMalformedLine counts an upstream stream line that could not be parsed.
func (c *Collector) RecordMalformedLine() {
	if !c.enabled() {
		return
	}
	c.streamMetrics.malformed.Inc()
}

// RecordMedia counts an extracted media reference by type.
func (c *Collector) RecordMedia(mediaType string) {
	if !c.enabled() {
		return
	}
	c.streamMetrics.media.WithLabelValues(mediaType).Inc()
}

// RecordStreamFailure counts a stream that ended with an error.
func (c *Collector) RecordStreamFailure(reason string) {
	if !c.enabled() {
		return
	}
	c.streamMetrics.failures.WithLabelValues(reason).Inc()
}

// RecordCatalogHit counts a catalog lookup served from the snapshot.
func (c *Collector) RecordCatalogHit() {
	if !c.enabled() {
		return
	}
	c.catalogMetrics.lookups.WithLabelValues("hit").Inc()
}

// RecordCatalogMiss counts a catalog lookup that required a fetch.
func (c *Collector) RecordCatalogMiss() {
	if !c.enabled() {
		return
	}
	c.catalogMetrics.lookups.WithLabelValues("miss").Inc()
}

// RecordCatalogRefresh records a catalog fetch and its size.
func (c *Collector) RecordCatalogRefresh(entries int, err error) {
	if !c.enabled() {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	} else {
		c.catalogMetrics.size.Set(float64(entries))
	}
	c.catalogMetrics.refreshes.WithLabelValues(outcome).Inc()
}

// RecordAgentResolution counts an alias resolution by match kind
// ("exact", "fuzzy", "not_found").
func (c *Collector) RecordAgentResolution(kind string) {
	if !c.enabled() {
		return
	}
	c.catalogMetrics.resolutions.WithLabelValues(kind).Inc()
}

// RecordCredentialWrite counts an account record write by outcome
// ("success", "error", "dropped").
func (c *Collector) RecordCredentialWrite(outcome string) {
	if !c.enabled() {
		return
	}
	c.credentialMetrics.writes.WithLabelValues(outcome).Inc()
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether the label value is already tracked or there is
// still room to track it.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
