package upstream

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"kiira-hq/gateway/pkg/telemetry/tracing"

	"go.opentelemetry.io/otel/trace"
)

// LineStream reads a streamed upstream body one line at a time. It holds a
// connection slot until Close.
type LineStream struct {
	t      *Transport
	op     string
	ctx    context.Context
	cancel context.CancelFunc
	body   io.ReadCloser
	reader *bufio.Reader
	span   trace.Span

	mu        sync.Mutex
	err       error
	closeOnce sync.Once
}

func newLineStream(t *Transport, op string, ctx context.Context, cancel context.CancelFunc, body io.ReadCloser, span trace.Span) *LineStream {
	return &LineStream{
		t:      t,
		op:     op,
		ctx:    ctx,
		cancel: cancel,
		body:   body,
		reader: bufio.NewReaderSize(body, 64*1024),
		span:   span,
	}
}

// Next returns the next line without its line terminator. It returns
// io.EOF after the last line; a final line without terminator is still
// returned. Any other error is terminal and is returned by every later
// call: a *TimeoutError when a read or the exchange ceiling elapsed,
// context.Canceled when the caller went away.
func (s *LineStream) Next() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return "", s.err
	}

	line, err := s.reader.ReadString('\n')
	if err == nil {
		return trimEOL(line), nil
	}

	if errors.Is(err, io.EOF) {
		s.err = io.EOF
		if line != "" {
			return trimEOL(line), nil
		}
		return "", io.EOF
	}

	s.err = s.t.classify(s.ctx, s.op, err)
	return "", s.err
}

// Close aborts the exchange if it is still running and releases the
// connection slot. Safe to call more than once.
func (s *LineStream) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.cancel()
		closeErr = s.body.Close()
		s.t.release()
		s.t.metrics.UpstreamInFlight(-1)

		s.mu.Lock()
		endErr := s.err
		s.mu.Unlock()
		if errors.Is(endErr, io.EOF) {
			endErr = nil
		}
		tracing.End(s.span, endErr)
	})
	return closeErr
}

func trimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
