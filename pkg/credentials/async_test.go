package credentials

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kiira-hq/gateway/pkg/config"
	"kiira-hq/gateway/pkg/telemetry/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type memorySink struct {
	mu      sync.Mutex
	records []Record
	block   chan struct{}
	err     error
}

func (m *memorySink) Save(_ context.Context, rec Record) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memorySink) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func newCollector() *metrics.Collector {
	return metrics.NewCollector(&config.MetricsConfig{Enabled: true}, nil)
}

func TestAsyncSink_DrainsOnClose(t *testing.T) {
	next := &memorySink{}
	collector := newCollector()
	sink := NewAsyncSink(next, 16, nil, collector)

	for i := 0; i < 5; i++ {
		if err := sink.Save(context.Background(), Record{UserName: "u", GroupID: "g"}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sink.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if next.len() != 5 {
		t.Errorf("saved %d records, want 5", next.len())
	}
	count, err := testutil.GatherAndCount(collector.Registry(), "kiira_gateway_credential_writes_total")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("credential write series = %d, want 1 (success)", count)
	}
}

func TestAsyncSink_DropsWhenFull(t *testing.T) {
	next := &memorySink{block: make(chan struct{})}
	collector := newCollector()
	sink := NewAsyncSink(next, 1, nil, collector)

	// The writer takes the first record and blocks; one more fills the
	// buffer and the rest are dropped.
	_ = sink.Save(context.Background(), Record{UserName: "u", GroupID: "g"})
	for len(sink.records) > 0 {
		time.Sleep(time.Millisecond)
	}
	for i := 0; i < 4; i++ {
		_ = sink.Save(context.Background(), Record{UserName: "u", GroupID: "g"})
	}
	close(next.block)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sink.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if next.len() != 2 {
		t.Errorf("saved %d records, want 2", next.len())
	}
	count, err := testutil.GatherAndCount(collector.Registry(), "kiira_gateway_credential_writes_total")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("credential write series = %d, want 2 (success, dropped)", count)
	}
}

func TestAsyncSink_SaveAfterClose(t *testing.T) {
	sink := NewAsyncSink(Nop{}, 4, nil, nil)
	if err := sink.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := sink.Save(context.Background(), Record{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Save() after Close error = %v, want ErrClosed", err)
	}
}

func TestAsyncSink_CountsErrors(t *testing.T) {
	next := &memorySink{err: errors.New("disk full")}
	collector := newCollector()
	sink := NewAsyncSink(next, 4, nil, collector)

	_ = sink.Save(context.Background(), Record{UserName: "u", GroupID: "g"})
	if err := sink.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if next.len() != 0 {
		t.Errorf("saved %d records, want 0", next.len())
	}
}

func TestAsyncSink_WithStore(t *testing.T) {
	store := newTestStore(t)
	sink := NewAsyncSink(store, 4, nil, nil)

	if err := sink.Save(context.Background(), Record{UserName: "u", GroupID: "g", Token: "t"}); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatal(err)
	}

	got, err := store.List(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("len(List()) = %d, want 1", len(got))
	}
}
