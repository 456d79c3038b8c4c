package upstream

import (
	"bytes"
	"compress/flate"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

func testConfig() Config {
	return Config{
		ConnectTimeout:  time.Second,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		PoolTimeout:     time.Second,
		RequestTimeout:  5 * time.Second,
		StreamTimeout:   5 * time.Second,
		MaxConns:        4,
		MaxIdleConns:    4,
		IdleConnTimeout: time.Minute,
		RetryBackoff:    time.Millisecond,
		UserAgent:       "test-agent",
	}
}

func TestTransport_DoJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "test-agent" {
			t.Errorf("User-Agent = %q, want test-agent", got)
		}
		if got := r.Header.Get("Accept-Encoding"); got != acceptEncoding {
			t.Errorf("Accept-Encoding = %q, want %q", got, acceptEncoding)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"page":1}` {
			t.Errorf("body = %s", body)
		}
		_, _ = w.Write([]byte(`{"data":{"token":"abc"}}`))
	}))
	defer server.Close()

	tr := New(testConfig())
	defer tr.Close()

	result, err := tr.DoJSON(context.Background(), &Request{Operation: "login", URL: server.URL}, map[string]int{"page": 1})
	if err != nil {
		t.Fatalf("DoJSON() error = %v", err)
	}
	if got := result.Get("data.token").String(); got != "abc" {
		t.Errorf("data.token = %q, want abc", got)
	}
}

func TestTransport_DoJSONInvalidBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))
	defer server.Close()

	tr := New(testConfig())
	defer tr.Close()

	_, err := tr.DoJSON(context.Background(), &Request{Operation: "my_info", URL: server.URL}, nil)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if parseErr.Raw != "<html>oops</html>" {
		t.Errorf("Raw = %q", parseErr.Raw)
	}
}

func TestTransport_Decompression(t *testing.T) {
	const payload = `{"ok":true}`

	tests := []struct {
		name     string
		encoding string
		encode   func(t *testing.T, data []byte) []byte
	}{
		{
			name:     "gzip",
			encoding: "gzip",
			encode: func(t *testing.T, data []byte) []byte {
				var buf bytes.Buffer
				w := gzip.NewWriter(&buf)
				_, _ = w.Write(data)
				_ = w.Close()
				return buf.Bytes()
			},
		},
		{
			name:     "brotli",
			encoding: "br",
			encode: func(t *testing.T, data []byte) []byte {
				var buf bytes.Buffer
				w := brotli.NewWriter(&buf)
				_, _ = w.Write(data)
				_ = w.Close()
				return buf.Bytes()
			},
		},
		{
			name:     "zstd",
			encoding: "zstd",
			encode: func(t *testing.T, data []byte) []byte {
				enc, err := zstd.NewWriter(nil)
				if err != nil {
					t.Fatal(err)
				}
				defer enc.Close()
				return enc.EncodeAll(data, nil)
			},
		},
		{
			name:     "raw deflate",
			encoding: "deflate",
			encode: func(t *testing.T, data []byte) []byte {
				var buf bytes.Buffer
				w, _ := flate.NewWriter(&buf, flate.DefaultCompression)
				_, _ = w.Write(data)
				_ = w.Close()
				return buf.Bytes()
			},
		},
		{
			name:     "identity",
			encoding: "",
			encode:   func(t *testing.T, data []byte) []byte { return data },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.encode(t, []byte(payload))
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.encoding != "" {
					w.Header().Set("Content-Encoding", tt.encoding)
				}
				_, _ = w.Write(body)
			}))
			defer server.Close()

			tr := New(testConfig())
			defer tr.Close()

			resp, err := tr.Do(context.Background(), &Request{Operation: "test", Method: http.MethodGet, URL: server.URL})
			if err != nil {
				t.Fatalf("Do() error = %v", err)
			}
			if string(resp.Body) != payload {
				t.Errorf("body = %q, want %q", resp.Body, payload)
			}
		})
	}
}

func TestTransport_Retries(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		idempotent   bool
		wantAttempts int32
	}{
		{name: "idempotent 503 retried", status: http.StatusServiceUnavailable, idempotent: true, wantAttempts: 3},
		{name: "idempotent 429 retried", status: http.StatusTooManyRequests, idempotent: true, wantAttempts: 3},
		{name: "non-idempotent 503 not retried", status: http.StatusServiceUnavailable, idempotent: false, wantAttempts: 1},
		{name: "idempotent 400 not retried", status: http.StatusBadRequest, idempotent: true, wantAttempts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&attempts, 1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer server.Close()

			cfg := testConfig()
			cfg.MaxRetries = 2
			tr := New(cfg)
			defer tr.Close()

			_, err := tr.Do(context.Background(), &Request{Operation: "test", URL: server.URL, Idempotent: tt.idempotent})
			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("expected StatusError, got %v", err)
			}
			if statusErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", statusErr.StatusCode, tt.status)
			}
			if got := atomic.LoadInt32(&attempts); got != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", got, tt.wantAttempts)
			}
		})
	}
}

func TestTransport_RetryThenSuccess(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxRetries = 2
	tr := New(cfg)
	defer tr.Close()

	resp, err := tr.Do(context.Background(), &Request{Operation: "agent_list", URL: server.URL, Idempotent: true})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestTransport_ReadTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.ReadTimeout = 50 * time.Millisecond
	tr := New(cfg)
	defer tr.Close()

	_, err := tr.Do(context.Background(), &Request{Operation: "slow", URL: server.URL})
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if timeoutErr.Phase != PhaseRead {
		t.Errorf("Phase = %q, want %q", timeoutErr.Phase, PhaseRead)
	}
	if timeoutErr.Timeout != cfg.ReadTimeout {
		t.Errorf("Timeout = %v, want %v", timeoutErr.Timeout, cfg.ReadTimeout)
	}
}

func TestTransport_CallerDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	tr := New(testConfig())
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := tr.Do(ctx, &Request{Operation: "slow", URL: server.URL})
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if timeoutErr.Phase != PhaseRequest {
		t.Errorf("Phase = %q, want %q", timeoutErr.Phase, PhaseRequest)
	}
}

func TestTransport_RequestCeiling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.RequestTimeout = 50 * time.Millisecond
	tr := New(cfg)
	defer tr.Close()

	_, err := tr.Do(context.Background(), &Request{Operation: "slow", URL: server.URL})
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if timeoutErr.Phase != PhaseRequest {
		t.Errorf("Phase = %q, want %q", timeoutErr.Phase, PhaseRequest)
	}
}

func TestTransport_PoolTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	cfg := testConfig()
	cfg.MaxConns = 1
	cfg.PoolTimeout = 50 * time.Millisecond
	tr := New(cfg)
	defer tr.Close()

	stream, err := tr.Stream(context.Background(), &Request{Operation: "stream", URL: server.URL})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	_, err = tr.Do(context.Background(), &Request{Operation: "login", URL: server.URL, Idempotent: true})
	var poolErr *PoolTimeoutError
	if !errors.As(err, &poolErr) {
		t.Fatalf("expected PoolTimeoutError, got %v", err)
	}
	if IsRetryable(err) {
		t.Error("pool timeout must not be retryable")
	}

	// Closing the stream frees the slot.
	_ = stream.Close()
	select {
	case tr.slots <- struct{}{}:
		<-tr.slots
	default:
		t.Error("slot not released after Close")
	}
}

func TestTransport_StreamLines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept = %q", got)
		}
		_, _ = w.Write([]byte("data: {\"a\":1}\r\n\r\ndata: {\"b\":2}\nevent: end"))
	}))
	defer server.Close()

	tr := New(testConfig())
	defer tr.Close()

	stream, err := tr.Stream(context.Background(), &Request{Operation: "stream", URL: server.URL})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer stream.Close()

	var lines []string
	for {
		line, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		lines = append(lines, line)
	}

	want := []string{`data: {"a":1}`, "", `data: {"b":2}`, "event: end"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}

	if _, err := stream.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after EOF = %v, want io.EOF", err)
	}
}

func TestTransport_StreamStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"msg":"token expired"}`))
	}))
	defer server.Close()

	tr := New(testConfig())
	defer tr.Close()

	_, err := tr.Stream(context.Background(), &Request{Operation: "stream", URL: server.URL})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}
	if len(tr.slots) != 0 {
		t.Errorf("slots in use = %d after failed stream", len(tr.slots))
	}
}

func TestTransport_StreamExchangeTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data: first\n"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.StreamTimeout = 100 * time.Millisecond
	tr := New(cfg)
	defer tr.Close()

	stream, err := tr.Stream(context.Background(), &Request{Operation: "stream", URL: server.URL})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer stream.Close()

	line, err := stream.Next()
	if err != nil || line != "data: first" {
		t.Fatalf("Next() = %q, %v", line, err)
	}

	_, err = stream.Next()
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if timeoutErr.Phase != PhaseExchange {
		t.Errorf("Phase = %q, want %q", timeoutErr.Phase, PhaseExchange)
	}

	// The error is sticky.
	if _, again := stream.Next(); again != err {
		t.Errorf("second Next() = %v, want %v", again, err)
	}
}

func TestTransport_StreamCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	tr := New(testConfig())
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := tr.Stream(ctx, &Request{Operation: "stream", URL: server.URL})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer stream.Close()

	time.AfterFunc(20*time.Millisecond, cancel)
	if _, err := stream.Next(); !errors.Is(err, context.Canceled) {
		t.Errorf("Next() error = %v, want context.Canceled", err)
	}
}

func TestTransport_StreamCloseReleasesRequest(t *testing.T) {
	tests := []struct {
		name          string
		streamTimeout time.Duration
	}{
		{"exchange ceiling", 5 * time.Second},
		{"no exchange ceiling", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := make(chan struct{})
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.(http.Flusher).Flush()
				<-r.Context().Done()
				close(done)
			}))
			defer server.Close()

			cfg := testConfig()
			cfg.StreamTimeout = tt.streamTimeout
			tr := New(cfg)
			defer tr.Close()

			stream, err := tr.Stream(context.Background(), &Request{Operation: "stream", URL: server.URL})
			if err != nil {
				t.Fatalf("Stream() error = %v", err)
			}
			stream.Close()

			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("upstream request still open after Close")
			}
		})
	}
}

func TestTransport_Close(t *testing.T) {
	t.Run("never used", func(t *testing.T) {
		tr := New(testConfig())
		if err := tr.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
		if err := tr.Close(); err != nil {
			t.Errorf("second Close() error = %v", err)
		}
	})

	t.Run("calls after close", func(t *testing.T) {
		tr := New(testConfig())
		_ = tr.Close()

		if _, err := tr.Do(context.Background(), &Request{Operation: "login", URL: "http://127.0.0.1:1"}); !errors.Is(err, ErrTransportClosed) {
			t.Errorf("Do() error = %v, want ErrTransportClosed", err)
		}
		if _, err := tr.Stream(context.Background(), &Request{Operation: "stream", URL: "http://127.0.0.1:1"}); !errors.Is(err, ErrTransportClosed) {
			t.Errorf("Stream() error = %v, want ErrTransportClosed", err)
		}
	})
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"500", &StatusError{StatusCode: 500}, true},
		{"429", &StatusError{StatusCode: 429}, true},
		{"404", &StatusError{StatusCode: 404}, false},
		{"connect timeout", &TimeoutError{Phase: PhaseConnect}, true},
		{"read timeout", &TimeoutError{Phase: PhaseRead}, true},
		{"exchange timeout", &TimeoutError{Phase: PhaseExchange}, false},
		{"pool timeout", &PoolTimeoutError{}, false},
		{"parse", &ParseError{Cause: errors.New("bad")}, false},
		{"canceled", context.Canceled, false},
		{"closed", ErrTransportClosed, false},
		{"connection", &connectionError{op: "x", cause: errors.New("reset")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
