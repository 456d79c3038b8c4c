package translate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"kiira-hq/gateway/pkg/proxy/types"
	"kiira-hq/gateway/pkg/telemetry/metrics"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// LineSource yields the upstream stream line by line. Next returns io.EOF
// at the clean end of the stream.
type LineSource interface {
	Next() (string, error)
	Close() error
}

// Chunk is one translated increment.
type Chunk struct {
	// Text is the incremental assistant text.
	Text string

	// Media are images and videos referenced by this increment.
	Media []Media

	// Resources are the raw upstream resource objects of this increment.
	Resources []json.RawMessage

	// Final marks the single terminal chunk.
	Final bool

	// FinishReason is set on the terminal chunk.
	FinishReason string
}

// Option configures a Translator.
type Option func(*Translator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Translator) { t.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(t *Translator) { t.metrics = c }
}

// Translator turns upstream stream lines into chunks. Each data event with
// text or media yields one chunk; blank lines, comments and events with
// neither yield nothing; malformed lines are counted and skipped. The
// stream ends with exactly one Final chunk, at [DONE] or at a clean end of
// input, after which Next returns io.EOF. A transport failure is returned
// as an error and is never reported as a normal end.
type Translator struct {
	src     LineSource
	logger  *slog.Logger
	metrics *metrics.Collector

	finished  bool
	closeOnce sync.Once
}

// New creates a Translator reading from src. The caller must Close it.
func New(src LineSource, opts ...Option) *Translator {
	t := &Translator{
		src:    src,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Next returns the next chunk. When ctx is done the source is closed and
// ctx's error returned.
func (t *Translator) Next(ctx context.Context) (Chunk, error) {
	if t.finished {
		return Chunk{}, io.EOF
	}

	for {
		if err := ctx.Err(); err != nil {
			t.Close()
			return Chunk{}, err
		}

		line, err := t.src.Next()
		if errors.Is(err, io.EOF) {
			return t.finish(), nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				t.Close()
				return Chunk{}, ctxErr
			}
			t.metrics.RecordStreamFailure("transport")
			return Chunk{}, err
		}

		ev := ParseLine(line)
		switch ev.Kind {
		case EventBlank, EventComment:
			continue
		case EventMalformed:
			t.metrics.RecordMalformedLine()
			t.logger.Debug("skipping malformed stream line", "line", truncate(line, 200))
			continue
		case EventDone:
			return t.finish(), nil
		}

		chunk, ok := t.translate(ev.Payload)
		if !ok {
			continue
		}
		return chunk, nil
	}
}

func (t *Translator) translate(payload gjson.Result) (Chunk, bool) {
	media, resources := extractResources(payload)
	text := extractText(payload)
	if text == "" && len(media) == 0 && len(resources) == 0 {
		return Chunk{}, false
	}

	if text != "" {
		t.metrics.RecordChunk("text")
	}
	for _, m := range media {
		t.metrics.RecordMedia(m.Type)
	}
	return Chunk{Text: text, Media: media, Resources: resources}, true
}

func (t *Translator) finish() Chunk {
	t.finished = true
	t.metrics.RecordChunk("final")
	return Chunk{Final: true, FinishReason: types.FinishReasonStop}
}

// Close closes the source. Safe to call more than once.
func (t *Translator) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.src.Close()
	})
	return err
}

// Result is a drained stream.
type Result struct {
	Text      string
	Media     []Media
	Resources []json.RawMessage
}

// Empty reports whether the stream produced neither text nor media.
func (r Result) Empty() bool {
	return r.Text == "" && len(r.Media) == 0 && len(r.Resources) == 0
}

// ResourcesJSON returns the collected raw resources as a JSON array, or
// nil when there are none.
func (r Result) ResourcesJSON() json.RawMessage {
	if len(r.Resources) == 0 {
		return nil
	}
	data := []byte("[]")
	for _, res := range r.Resources {
		next, err := sjson.SetRawBytes(data, "-1", res)
		if err != nil {
			continue
		}
		data = next
	}
	return data
}

// Aggregate drains tr, concatenating text and collecting media and raw
// resources.
func Aggregate(ctx context.Context, tr *Translator) (Result, error) {
	var res Result
	var text strings.Builder

	for {
		chunk, err := tr.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, err
		}
		if chunk.Final {
			continue
		}
		text.WriteString(chunk.Text)
		res.Media = append(res.Media, chunk.Media...)
		res.Resources = append(res.Resources, chunk.Resources...)
	}

	res.Text = text.String()
	return res, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
