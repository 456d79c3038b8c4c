package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"kiira-hq/gateway/pkg/config"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *config.TracingConfig
		enabled bool
		wantErr bool
	}{
		{name: "nil config", config: nil, wantErr: true},
		{name: "disabled tracing", config: &config.TracingConfig{ServiceName: "test"}},
		{
			name:    "enabled otlp",
			config:  &config.TracingConfig{Enabled: true, Endpoint: "localhost:4317", ServiceName: "test", SampleRatio: 0.5, Insecure: true},
			enabled: true,
		},
		{
			name:    "invalid ratio",
			config:  &config.TracingConfig{Enabled: true, Endpoint: "localhost:4317", SampleRatio: 2},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := New(tt.config, "test")
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer tr.Shutdown(context.Background())

			if tr.Enabled() != tt.enabled {
				t.Errorf("Enabled() = %v, want %v", tr.Enabled(), tt.enabled)
			}
		})
	}
}

func TestTracer_NilIsNoop(t *testing.T) {
	var tr *Tracer

	ctx, span := tr.Start(context.Background(), "noop")
	span.End()

	if ctx == nil {
		t.Fatal("expected context")
	}
	if tr.Enabled() {
		t.Error("nil tracer must report disabled")
	}
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() = %v", err)
	}
}

func TestEnd_RecordsStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tr := NewWithProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	_, ok := tr.Start(context.Background(), "ok")
	End(ok, nil)
	_, failed := tr.Start(context.Background(), "failed")
	End(failed, errors.New("upstream 502"))

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 ended spans, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("expected ok status, got %v", spans[0].Status())
	}
	if spans[1].Status().Code != codes.Error || len(spans[1].Events()) == 0 {
		t.Errorf("expected error status with recorded event, got %v", spans[1].Status())
	}
}

func TestHTTPMiddleware(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tr := NewWithProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	var traceID string
	handler := HTTPMiddleware(tr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = TraceID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if traceID == "" {
		t.Fatal("expected handler context to carry a trace")
	}
	if rec.Header().Get("X-Trace-ID") != traceID {
		t.Errorf("expected X-Trace-ID %q, got %q", traceID, rec.Header().Get("X-Trace-ID"))
	}
	if len(recorder.Ended()) != 1 || recorder.Ended()[0].Name() != "GET /health" {
		t.Errorf("expected one GET /health span, got %d", len(recorder.Ended()))
	}
}

func TestNewSampler(t *testing.T) {
	for _, ratio := range []float64{0, 0.25, 1} {
		if _, err := newSampler(ratio); err != nil {
			t.Errorf("newSampler(%v) error = %v", ratio, err)
		}
	}
	if _, err := newSampler(-0.1); err == nil {
		t.Error("expected error for negative ratio")
	}
}
