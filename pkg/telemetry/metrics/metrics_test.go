package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kiira-hq/gateway/pkg/config"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:   true,
		Namespace: "test",
		Subsystem: "gateway",
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector

	// None of these may panic.
	c.RecordRequest("/health", "GET", 200, time.Millisecond)
	c.RecordCompletion("m", "batch", "success")
	c.StreamStarted()()
	c.RecordUpstreamCall("login", "success", time.Millisecond)
	c.UpstreamInFlight(1)
	c.RecordPoolWait(time.Millisecond, true)
	c.RecordUpstreamRetry("login")
	c.SetSessions(3)
	c.RecordSessionCreated()
	c.RecordSessionReused()
	c.RecordSessionsExpired("sweep", 2)
	c.RecordChunk("content")
	c.RecordMalformedLine()
	c.RecordMedia("image")
	c.RecordStreamFailure("upstream")
	c.RecordCatalogHit()
	c.RecordCatalogMiss()
	c.RecordCatalogRefresh(3, nil)
	c.RecordAgentResolution("exact")
	c.RecordCredentialWrite("success")

	if c.Registry() != nil {
		t.Error("expected nil registry from nil collector")
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	c := NewCollector(cfg, nil)

	c.RecordSessionCreated()
	if got := testutil.ToFloat64(c.sessionMetrics.created); got != 0 {
		t.Errorf("expected disabled collector to record nothing, got %v", got)
	}
}

func TestCollector_Sessions(t *testing.T) {
	c := NewCollector(testConfig(), nil)

	c.SetSessions(5)
	c.RecordSessionCreated()
	c.RecordSessionCreated()
	c.RecordSessionReused()
	c.RecordSessionsExpired("sweep", 3)
	c.RecordSessionsExpired("lazy", 1)
	c.RecordSessionsExpired("sweep", 0)

	if got := testutil.ToFloat64(c.sessionMetrics.sessions); got != 5 {
		t.Errorf("sessions gauge = %v, want 5", got)
	}
	if got := testutil.ToFloat64(c.sessionMetrics.created); got != 2 {
		t.Errorf("created = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.sessionMetrics.reused); got != 1 {
		t.Errorf("reused = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.sessionMetrics.expired.WithLabelValues("sweep")); got != 3 {
		t.Errorf("expired{sweep} = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.sessionMetrics.expired.WithLabelValues("lazy")); got != 1 {
		t.Errorf("expired{lazy} = %v, want 1", got)
	}
}

func TestCollector_Upstream(t *testing.T) {
	c := NewCollector(testConfig(), nil)

	c.RecordUpstreamCall("login", "success", 20*time.Millisecond)
	c.RecordUpstreamCall("login", "timeout", time.Second)
	c.RecordPoolWait(5*time.Millisecond, false)
	c.RecordPoolWait(10*time.Second, true)
	c.UpstreamInFlight(1)
	c.UpstreamInFlight(1)
	c.UpstreamInFlight(-1)

	if got := testutil.ToFloat64(c.upstreamMetrics.calls.WithLabelValues("login", "success")); got != 1 {
		t.Errorf("calls{login,success} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.upstreamMetrics.poolTimeouts); got != 1 {
		t.Errorf("pool timeouts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.upstreamMetrics.inFlight); got != 1 {
		t.Errorf("in flight = %v, want 1", got)
	}
}

func TestCollector_Catalog(t *testing.T) {
	c := NewCollector(testConfig(), nil)

	c.RecordCatalogRefresh(12, nil)
	c.RecordCatalogRefresh(0, errors.New("boom"))
	c.RecordCatalogHit()

	if got := testutil.ToFloat64(c.catalogMetrics.size); got != 12 {
		t.Errorf("catalog size = %v, want 12 (failed refresh must not reset it)", got)
	}
	if got := testutil.ToFloat64(c.catalogMetrics.refreshes.WithLabelValues("error")); got != 1 {
		t.Errorf("refreshes{error} = %v, want 1", got)
	}
}

func TestCollector_StreamGauge(t *testing.T) {
	c := NewCollector(testConfig(), nil)

	done1 := c.StreamStarted()
	done2 := c.StreamStarted()
	if got := testutil.ToFloat64(c.requestMetrics.activeStreams); got != 2 {
		t.Fatalf("active streams = %v, want 2", got)
	}
	done1()
	done2()
	if got := testutil.ToFloat64(c.requestMetrics.activeStreams); got != 0 {
		t.Errorf("active streams = %v, want 0", got)
	}
}

func TestCollector_ModelCardinality(t *testing.T) {
	c := NewCollector(testConfig(), nil)
	c.cardinalityLimiter = NewCardinalityLimiter(1)

	c.RecordCompletion("first", "batch", "success")
	c.RecordCompletion("second", "batch", "success")

	if got := testutil.ToFloat64(c.requestMetrics.completions.WithLabelValues("other", "batch", "success")); got != 1 {
		t.Errorf("expected overflow model to be folded into other, got %v", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector(testConfig(), nil)
	c.RecordRequest("/v1/models", "GET", 200, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_gateway_http_requests_total") {
		t.Errorf("expected request counter in exposition, got:\n%s", rec.Body.String())
	}
}

func TestCardinalityLimiter(t *testing.T) {
	cl := NewCardinalityLimiter(2)

	if !cl.Allow("a") || !cl.Allow("b") {
		t.Fatal("expected first two label sets to be allowed")
	}
	if !cl.Allow("a") {
		t.Error("expected existing label set to be allowed")
	}
	if cl.Allow("c") {
		t.Error("expected third label set to be rejected")
	}
	if cl.Count() != 2 {
		t.Errorf("Count() = %d, want 2", cl.Count())
	}
}
