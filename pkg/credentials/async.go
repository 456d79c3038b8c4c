package credentials

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"kiira-hq/gateway/pkg/telemetry/metrics"
)

// writeTimeout bounds one background write.
const writeTimeout = 10 * time.Second

// AsyncSink hands records to a background writer so request paths never
// wait on the database. When the buffer is full the record is dropped
// and counted.
type AsyncSink struct {
	next    Sink
	logger  *slog.Logger
	metrics *metrics.Collector

	records chan Record
	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
}

// NewAsyncSink starts a writer draining into next.
func NewAsyncSink(next Sink, bufferSize int, logger *slog.Logger, m *metrics.Collector) *AsyncSink {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &AsyncSink{
		next:    next,
		logger:  logger.With("component", "credentials"),
		metrics: m,
		records: make(chan Record, bufferSize),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Save enqueues rec. It never blocks; a full buffer drops the record.
func (s *AsyncSink) Save(_ context.Context, rec Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	select {
	case s.records <- rec:
	default:
		s.metrics.RecordCredentialWrite("dropped")
		s.logger.Warn("account record dropped, writer is behind",
			"user_name", rec.UserName,
			"group_id", rec.GroupID,
		)
	}
	return nil
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for rec := range s.records {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := s.next.Save(ctx, rec)
		cancel()

		if err != nil {
			s.metrics.RecordCredentialWrite("error")
			s.logger.Error("failed to save account record",
				"user_name", rec.UserName,
				"group_id", rec.GroupID,
				"error", err,
			)
			continue
		}
		s.metrics.RecordCredentialWrite("success")
		s.logger.Debug("account record saved",
			"user_name", rec.UserName,
			"group_id", rec.GroupID,
		)
	}
}

// Close stops accepting records and waits for the buffer to drain or ctx
// to end.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.records)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
