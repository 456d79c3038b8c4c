package metrics

import (
	"strconv"
	"time"

	"kiira-hq/gateway/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Latency buckets for inbound requests: SSE responses stay open for minutes.
var requestDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 180}

// Latency buckets for upstream calls.
var upstreamDurationBuckets = []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// RequestMetrics tracks inbound HTTP traffic.
//
// Metrics:
//   - kiira_gateway_http_requests_total: requests by route, method, status
//   - kiira_gateway_http_request_duration_seconds: handler duration
//   - kiira_gateway_completions_total: chat completions by model, mode, outcome
//   - kiira_gateway_active_streams: open SSE responses
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	completions     *prometheus.CounterVec
	activeStreams   prometheus.Gauge
}

// NewRequestMetrics creates and registers request metrics with the provided registry.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of inbound HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of inbound HTTP requests in seconds",
				Buckets:   requestDurationBuckets,
			},
			[]string{"route", "method"},
		),
		completions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "completions_total",
				Help:      "Chat completions by model, mode and outcome",
			},
			[]string{"model", "mode", "outcome"},
		),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "active_streams",
			Help:      "Number of SSE responses currently open",
		}),
	}

	registry.MustRegister(rm.requestsTotal, rm.requestDuration, rm.completions, rm.activeStreams)
	return rm
}

// RecordRequest records one inbound request.
func (rm *RequestMetrics) RecordRequest(route, method string, status int, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	rm.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordCompletion records one completion outcome.
func (rm *RequestMetrics) RecordCompletion(model, mode, outcome string) {
	rm.completions.WithLabelValues(model, mode, outcome).Inc()
}

// UpstreamMetrics tracks calls to the Kiira and SeaArt APIs.
//
// Metrics:
//   - kiira_gateway_upstream_requests_total: calls by operation and outcome
//   - kiira_gateway_upstream_request_duration_seconds: call latency
//   - kiira_gateway_upstream_in_flight: calls currently holding a pool slot
//   - kiira_gateway_upstream_pool_wait_seconds: time spent waiting for a slot
//   - kiira_gateway_upstream_pool_timeouts_total: slot waits that gave up
//   - kiira_gateway_upstream_retries_total: retried calls by operation
type UpstreamMetrics struct {
	calls        *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	inFlight     prometheus.Gauge
	poolWait     prometheus.Histogram
	poolTimeouts prometheus.Counter
	retries      *prometheus.CounterVec
}

// NewUpstreamMetrics creates and registers upstream metrics.
func NewUpstreamMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *UpstreamMetrics {
	um := &UpstreamMetrics{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "upstream_requests_total",
				Help:      "Upstream calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "upstream_request_duration_seconds",
				Help:      "Upstream call latency in seconds",
				Buckets:   upstreamDurationBuckets,
			},
			[]string{"operation"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "upstream_in_flight",
			Help:      "Upstream calls currently holding a connection slot",
		}),
		poolWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "upstream_pool_wait_seconds",
			Help:      "Time spent waiting for an upstream connection slot",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
		}),
		poolTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "upstream_pool_timeouts_total",
			Help:      "Upstream calls that gave up waiting for a connection slot",
		}),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "upstream_retries_total",
				Help:      "Retried upstream calls by operation",
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(um.calls, um.duration, um.inFlight, um.poolWait, um.poolTimeouts, um.retries)
	return um
}

// RecordCall records one upstream call.
func (um *UpstreamMetrics) RecordCall(operation, outcome string, duration time.Duration) {
	um.calls.WithLabelValues(operation, outcome).Inc()
	um.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordPoolWait records one slot acquisition.
func (um *UpstreamMetrics) RecordPoolWait(wait time.Duration, timedOut bool) {
	um.poolWait.Observe(wait.Seconds())
	if timedOut {
		um.poolTimeouts.Inc()
	}
}

// SessionMetrics tracks the session affinity store.
type SessionMetrics struct {
	sessions prometheus.Gauge
	created  prometheus.Counter
	reused   prometheus.Counter
	expired  *prometheus.CounterVec
}

// NewSessionMetrics creates and registers session metrics.
func NewSessionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *SessionMetrics {
	sm := &SessionMetrics{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "sessions",
			Help:      "Number of stored conversation sessions",
		}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "sessions_created_total",
			Help:      "Conversation sessions created",
		}),
		reused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "sessions_reused_total",
			Help:      "Requests that continued an existing session",
		}),
		expired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "sessions_expired_total",
				Help:      "Conversation sessions removed after their TTL",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(sm.sessions, sm.created, sm.reused, sm.expired)
	return sm
}

// StreamMetrics tracks stream translation.
type StreamMetrics struct {
	chunks    *prometheus.CounterVec
	malformed prometheus.Counter
	media     *prometheus.CounterVec
	failures  *prometheus.CounterVec
}

// NewStreamMetrics creates and registers stream translation metrics.
func NewStreamMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *StreamMetrics {
	sm := &StreamMetrics{
		chunks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "stream_chunks_total",
				Help:      "Chunks sent to callers by kind",
			},
			[]string{"kind"},
		),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stream_malformed_lines_total",
			Help:      "Upstream stream lines skipped because they could not be parsed",
		}),
		media: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "stream_media_total",
				Help:      "Media references extracted from upstream responses",
			},
			[]string{"type"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "stream_failures_total",
				Help:      "Streams that ended with an error",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(sm.chunks, sm.malformed, sm.media, sm.failures)
	return sm
}

// CatalogMetrics tracks the agent catalog cache and alias resolution.
type CatalogMetrics struct {
	lookups     *prometheus.CounterVec
	refreshes   *prometheus.CounterVec
	size        prometheus.Gauge
	resolutions *prometheus.CounterVec
}

// NewCatalogMetrics creates and registers catalog metrics.
func NewCatalogMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CatalogMetrics {
	cm := &CatalogMetrics{
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "catalog_lookups_total",
				Help:      "Agent catalog lookups by cache result",
			},
			[]string{"result"},
		),
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "catalog_refreshes_total",
				Help:      "Agent catalog fetches by outcome",
			},
			[]string{"outcome"},
		),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "catalog_entries",
			Help:      "Entries in the cached agent catalog",
		}),
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "agent_resolutions_total",
				Help:      "Model alias resolutions by match kind",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(cm.lookups, cm.refreshes, cm.size, cm.resolutions)
	return cm
}

// CredentialMetrics tracks account record persistence.
type CredentialMetrics struct {
	writes *prometheus.CounterVec
}

// NewCredentialMetrics creates and registers credential store metrics.
func NewCredentialMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CredentialMetrics {
	cm := &CredentialMetrics{
		writes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "credential_writes_total",
				Help:      "Account record writes by outcome",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(cm.writes)
	return cm
}
