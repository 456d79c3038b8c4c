package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"kiira-hq/gateway/pkg/config"
	"kiira-hq/gateway/pkg/telemetry/metrics"
	"kiira-hq/gateway/pkg/telemetry/tracing"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/http2"
)

// maxBodyBytes caps unary response bodies.
const maxBodyBytes = 32 << 20

// maxErrorBody caps the body kept in StatusError and ParseError.
const maxErrorBody = 512

// errRequestTimeout is the cancellation cause of a unary call whose
// end-to-end ceiling elapsed.
var errRequestTimeout = errors.New("upstream request ceiling reached")

// Config contains the pool and timeout settings of a Transport.
type Config struct {
	// ConnectTimeout bounds TCP connect and TLS handshake.
	ConnectTimeout time.Duration

	// ReadTimeout bounds each read from a connection and the wait for
	// response headers.
	ReadTimeout time.Duration

	// WriteTimeout bounds each write to a connection.
	WriteTimeout time.Duration

	// PoolTimeout bounds the wait for a free connection slot.
	PoolTimeout time.Duration

	// RequestTimeout is the ceiling for a unary call, body included.
	RequestTimeout time.Duration

	// StreamTimeout is the ceiling for one streamed exchange.
	StreamTimeout time.Duration

	// MaxConns is the number of concurrent upstream requests.
	MaxConns int

	// MaxIdleConns is the number of idle keep-alive connections kept.
	MaxIdleConns int

	// IdleConnTimeout is how long an idle connection stays pooled.
	IdleConnTimeout time.Duration

	// MaxRetries is the number of retries for idempotent requests.
	MaxRetries int

	// RetryBackoff is the first retry delay; later delays double.
	RetryBackoff time.Duration

	// UserAgent is set on requests that do not carry one.
	UserAgent string
}

// ConfigFrom converts the upstream configuration section.
func ConfigFrom(c config.UpstreamConfig) Config {
	return Config{
		ConnectTimeout:  c.ConnectTimeout,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		PoolTimeout:     c.PoolTimeout,
		RequestTimeout:  c.RequestTimeout,
		StreamTimeout:   c.StreamTimeout,
		MaxConns:        c.MaxConns,
		MaxIdleConns:    c.MaxIdleConns,
		IdleConnTimeout: c.IdleConnTimeout,
		MaxRetries:      c.MaxRetries,
		UserAgent:       c.UserAgent,
	}
}

// Request describes one upstream call.
type Request struct {
	// Operation names the call in logs, metrics and spans (e.g., "login").
	Operation string

	Method string
	URL    string
	Header http.Header
	Body   []byte

	// Idempotent allows retries on connection errors and 5xx/429 answers.
	Idempotent bool
}

// Response is a fully read, decompressed upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(t *Transport) { t.metrics = c }
}

// WithTracer sets the tracer.
func WithTracer(tr *tracing.Tracer) Option {
	return func(t *Transport) { t.tracer = tr }
}

// Transport is the shared, pooled HTTP client for every upstream call.
// The underlying connection pool is created on first use; Close is
// idempotent and safe when the transport was never used.
type Transport struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  *tracing.Tracer

	initOnce sync.Once
	inited   atomic.Bool
	base     *http.Transport
	client   *http.Client

	// slots bounds concurrent requests; waiting longer than PoolTimeout
	// fails with PoolTimeoutError.
	slots chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
}

// New creates a Transport. No connection is opened until the first call.
func New(cfg Config, opts ...Option) *Transport {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = config.DefaultUpstreamMaxConns
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 250 * time.Millisecond
	}

	t := &Transport{
		cfg:    cfg,
		logger: slog.Default(),
		slots:  make(chan struct{}, cfg.MaxConns),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "upstream")
	return t
}

func (t *Transport) init() {
	t.initOnce.Do(func() {
		dialer := &net.Dialer{
			Timeout:   t.cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}

		base := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				conn, err := dialer.DialContext(ctx, network, addr)
				if err != nil {
					return nil, err
				}
				return &deadlineConn{Conn: conn, read: t.cfg.ReadTimeout, write: t.cfg.WriteTimeout}, nil
			},
			TLSHandshakeTimeout:   t.cfg.ConnectTimeout,
			ResponseHeaderTimeout: t.cfg.ReadTimeout,
			ExpectContinueTimeout: time.Second,
			MaxIdleConns:          t.cfg.MaxIdleConns,
			MaxIdleConnsPerHost:   t.cfg.MaxIdleConns,
			MaxConnsPerHost:       t.cfg.MaxConns,
			IdleConnTimeout:       t.cfg.IdleConnTimeout,
		}

		// HTTP/2 multiplexing with ping health checks on idle connections.
		if h2, err := http2.ConfigureTransports(base); err != nil {
			t.logger.Warn("http2 unavailable, using http/1.1", "error", err)
		} else {
			h2.ReadIdleTimeout = 30 * time.Second
			h2.PingTimeout = 15 * time.Second
		}

		t.base = base
		t.client = &http.Client{Transport: base}
		t.inited.Store(true)
	})
}

// Close releases idle connections. Calls made afterwards fail with
// ErrTransportClosed.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		if t.inited.Load() {
			t.base.CloseIdleConnections()
		}
	})
	return nil
}

// Do performs a unary call and returns the fully read, decompressed body.
// Non-2xx answers fail with *StatusError. Idempotent requests are retried
// with exponential backoff while IsRetryable holds.
func (t *Transport) Do(ctx context.Context, req *Request) (*Response, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}
	t.init()

	attempts := 1
	if req.Idempotent {
		attempts += t.cfg.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := t.cfg.RetryBackoff << (attempt - 1)
			t.metrics.RecordUpstreamRetry(req.Operation)
			t.logger.Debug("retrying upstream request",
				"operation", req.Operation,
				"attempt", attempt,
				"backoff", backoff,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := t.doOnce(ctx, req, attempt)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == attempts-1 {
			break
		}
		t.logger.Warn("upstream request failed, will retry",
			"operation", req.Operation,
			"attempt", attempt+1,
			"error", err,
		)
	}

	return nil, lastErr
}

func (t *Transport) doOnce(ctx context.Context, req *Request, attempt int) (resp *Response, err error) {
	ctx, span := t.tracer.Start(ctx, "upstream."+req.Operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tracing.AttrOperation.String(req.Operation), tracing.AttrAttempt.Int(attempt)),
	)
	defer func() { tracing.End(span, err) }()

	if err = t.acquire(ctx, req.Operation); err != nil {
		return nil, err
	}
	defer t.release()

	reqCtx, cancel := ctx, context.CancelFunc(func() {})
	if t.cfg.RequestTimeout > 0 {
		reqCtx, cancel = context.WithTimeoutCause(ctx, t.cfg.RequestTimeout, errRequestTimeout)
	}
	defer cancel()

	httpReq, err := t.newHTTPRequest(reqCtx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { t.record(req.Operation, err, start) }()

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, t.classify(reqCtx, req.Operation, err)
	}
	defer httpResp.Body.Close()

	body, err := t.readBody(reqCtx, req.Operation, httpResp)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &StatusError{
			Operation:  req.Operation,
			StatusCode: httpResp.StatusCode,
			Body:       truncate(body, maxErrorBody),
		}
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

// DoJSON marshals payload as the request body, performs the call and
// returns the parsed JSON response. A body that is not valid JSON fails
// with *ParseError.
func (t *Transport) DoJSON(ctx context.Context, req *Request, payload any) (gjson.Result, error) {
	r := *req
	r.Header = req.Header.Clone()
	if r.Header == nil {
		r.Header = make(http.Header)
	}

	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("failed to marshal %s request: %w", req.Operation, err)
		}
		r.Body = body
		if r.Header.Get("Content-Type") == "" {
			r.Header.Set("Content-Type", "application/json")
		}
	}

	resp, err := t.Do(ctx, &r)
	if err != nil {
		return gjson.Result{}, err
	}

	if !gjson.ValidBytes(resp.Body) {
		return gjson.Result{}, &ParseError{
			Operation: req.Operation,
			Raw:       truncate(resp.Body, maxErrorBody),
			Cause:     errors.New("invalid JSON"),
		}
	}
	return gjson.ParseBytes(resp.Body), nil
}

// Stream opens a streamed exchange and returns a line reader over the
// response body. The exchange as a whole is bounded by StreamTimeout;
// exceeding it fails the next read with a *TimeoutError in the exchange
// phase. The caller must Close the stream.
func (t *Transport) Stream(ctx context.Context, req *Request) (*LineStream, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}
	t.init()

	ctx, span := t.tracer.Start(ctx, "upstream."+req.Operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tracing.AttrOperation.String(req.Operation), tracing.AttrStream.Bool(true)),
	)

	fail := func(err error) (*LineStream, error) {
		tracing.End(span, err)
		return nil, err
	}

	if err := t.acquire(ctx, req.Operation); err != nil {
		return fail(err)
	}

	var (
		streamCtx context.Context
		cancel    context.CancelFunc
	)
	if t.cfg.StreamTimeout > 0 {
		streamCtx, cancel = context.WithTimeoutCause(ctx, t.cfg.StreamTimeout, errExchangeTimeout)
	} else {
		streamCtx, cancel = context.WithCancel(ctx)
	}

	abort := func(err error) (*LineStream, error) {
		cancel()
		t.release()
		return fail(err)
	}

	httpReq, err := t.newHTTPRequest(streamCtx, req)
	if err != nil {
		return abort(err)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	start := time.Now()
	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		err = t.classify(streamCtx, req.Operation, err)
		t.record(req.Operation, err, start)
		return abort(err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		httpResp.Body.Close()
		err = &StatusError{Operation: req.Operation, StatusCode: httpResp.StatusCode, Body: string(body)}
		t.record(req.Operation, err, start)
		return abort(err)
	}

	body, err := decodeBody(httpResp.Header.Get("Content-Encoding"), httpResp.Body)
	if err != nil {
		httpResp.Body.Close()
		err = &ParseError{Operation: req.Operation, Cause: err}
		t.record(req.Operation, err, start)
		return abort(err)
	}

	t.record(req.Operation, nil, start)
	t.metrics.UpstreamInFlight(1)

	return newLineStream(t, req.Operation, streamCtx, cancel, body, span), nil
}

func (t *Transport) newHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", req.Operation, err)
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" && t.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", t.cfg.UserAgent)
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept-Encoding", acceptEncoding)

	return httpReq, nil
}

func (t *Transport) readBody(ctx context.Context, op string, resp *http.Response) ([]byte, error) {
	body, err := decodeBody(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return nil, &ParseError{Operation: op, Cause: err}
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		classified := t.classify(ctx, op, err)
		var connErr *connectionError
		if errors.As(classified, &connErr) {
			var netErr net.Error
			if !errors.As(err, &netErr) {
				// Decoder failures (bad checksum, corrupt frame) are not
				// connection problems.
				return nil, &ParseError{Operation: op, Raw: truncate(data, maxErrorBody), Cause: err}
			}
		}
		return nil, classified
	}
	return data, nil
}

// acquire takes a connection slot, waiting at most PoolTimeout.
func (t *Transport) acquire(ctx context.Context, op string) error {
	start := time.Now()

	select {
	case t.slots <- struct{}{}:
		t.metrics.RecordPoolWait(0, false)
		return nil
	default:
	}

	var timeout <-chan time.Time
	if t.cfg.PoolTimeout > 0 {
		timer := time.NewTimer(t.cfg.PoolTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case t.slots <- struct{}{}:
		t.metrics.RecordPoolWait(time.Since(start), false)
		return nil
	case <-timeout:
		wait := time.Since(start)
		t.metrics.RecordPoolWait(wait, true)
		t.logger.Warn("upstream pool exhausted", "operation", op, "wait", wait)
		return &PoolTimeoutError{Operation: op, Wait: wait}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) release() {
	<-t.slots
}

// classify maps a transport error onto the package's error types.
func (t *Transport) classify(ctx context.Context, op string, err error) error {
	switch cause := context.Cause(ctx); {
	case cause == nil:
	case errors.Is(cause, errRequestTimeout):
		return &TimeoutError{Operation: op, Phase: PhaseRequest, Timeout: t.cfg.RequestTimeout, Cause: err}
	case errors.Is(cause, errExchangeTimeout):
		return &TimeoutError{Operation: op, Phase: PhaseExchange, Timeout: t.cfg.StreamTimeout, Cause: err}
	case errors.Is(cause, context.Canceled):
		return fmt.Errorf("upstream %s: %w", op, cause)
	case errors.Is(cause, context.DeadlineExceeded):
		// The caller's own deadline.
		return &TimeoutError{Operation: op, Phase: PhaseRequest, Cause: err}
	}

	// From here the request context is still live, so a deadline error
	// came from an I/O deadline on the connection.
	if errors.Is(err, context.Canceled) {
		return err
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		if opErr.Timeout() {
			return &TimeoutError{Operation: op, Phase: PhaseConnect, Timeout: t.cfg.ConnectTimeout, Cause: err}
		}
		return &connectionError{op: op, cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		switch {
		case strings.Contains(err.Error(), "TLS handshake timeout"):
			return &TimeoutError{Operation: op, Phase: PhaseConnect, Timeout: t.cfg.ConnectTimeout, Cause: err}
		case opErr != nil && opErr.Op == "write":
			return &TimeoutError{Operation: op, Phase: PhaseWrite, Timeout: t.cfg.WriteTimeout, Cause: err}
		default:
			return &TimeoutError{Operation: op, Phase: PhaseRead, Timeout: t.cfg.ReadTimeout, Cause: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Operation: op, Phase: PhaseRead, Timeout: t.cfg.ReadTimeout, Cause: err}
	}

	return &connectionError{op: op, cause: err}
}

func (t *Transport) record(op string, err error, start time.Time) {
	t.metrics.RecordUpstreamCall(op, outcome(err), time.Since(start))
}

// outcome labels an upstream result for metrics.
func outcome(err error) string {
	var statusErr *StatusError
	var parseErr *ParseError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case IsTimeout(err):
		return "timeout"
	case errors.As(err, &statusErr):
		return "status_error"
	case errors.As(err, &parseErr):
		return "parse_error"
	default:
		return "transport_error"
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// deadlineConn applies the read and write timeouts to every individual
// I/O operation on the connection.
type deadlineConn struct {
	net.Conn
	read  time.Duration
	write time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if c.read > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.read)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if c.write > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.write)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(p)
}
