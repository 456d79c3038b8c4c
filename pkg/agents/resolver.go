package agents

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"kiira-hq/gateway/pkg/config"
	"kiira-hq/gateway/pkg/telemetry/metrics"

	"golang.org/x/sync/singleflight"
)

// Entry is one agent of the upstream catalog.
type Entry struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	AccountNo   string `json:"account_no"`
	Description string `json:"description"`
}

// Source fetches the agent catalog. Empty filters mean the full catalog.
type Source interface {
	FetchAgents(ctx context.Context, categoryIDs []string, keyword string) ([]Entry, error)
}

// snapshot is an immutable copy of the full catalog.
type snapshot struct {
	entries    []Entry
	capturedAt time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTTL sets how long a catalog snapshot is served before refetching.
func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.ttl = ttl }
}

// WithThreshold sets the minimum similarity for fuzzy matches.
func WithThreshold(threshold float64) Option {
	return func(r *Resolver) { r.SetThreshold(threshold) }
}

// WithTieBreak sets how equally similar catalog entries are ordered.
func WithTieBreak(tie TieBreak) Option {
	return func(r *Resolver) {
		if tie != "" {
			r.tieBreak = tie
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Resolver) { r.metrics = c }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// Resolver maps caller-facing model names onto upstream catalog entries.
//
// The unfiltered catalog is cached as an immutable snapshot that is
// swapped atomically when older than the TTL. Concurrent refreshes are
// coalesced into one fetch. Filtered lookups always go to the source and
// never touch the cache.
type Resolver struct {
	source    Source
	ttl       time.Duration
	threshold atomic.Uint64
	tieBreak  TieBreak
	logger    *slog.Logger
	metrics   *metrics.Collector
	now       func() time.Time

	current atomic.Pointer[snapshot]
	group   singleflight.Group
}

// NewResolver creates a Resolver over source.
func NewResolver(source Source, opts ...Option) *Resolver {
	r := &Resolver{
		source:   source,
		ttl:      config.DefaultCatalogTTL,
		tieBreak: TieFirst,
		logger:   slog.Default(),
		now:      time.Now,
	}
	r.SetThreshold(config.DefaultSimilarityThreshold)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetThreshold changes the fuzzy match threshold. Safe for concurrent use.
func (r *Resolver) SetThreshold(threshold float64) {
	r.threshold.Store(math.Float64bits(threshold))
}

// Threshold returns the current fuzzy match threshold.
func (r *Resolver) Threshold() float64 {
	return math.Float64frombits(r.threshold.Load())
}

// TieBreak returns how equally similar names are ordered.
func (r *Resolver) TieBreak() TieBreak {
	return r.tieBreak
}

// Invalidate drops the cached snapshot.
func (r *Resolver) Invalidate() {
	r.current.Store(nil)
}

// Catalog returns agent entries. Without filters the cached snapshot is
// served while fresh; the returned slice is shared and must not be
// modified. When a refresh fails and a stale snapshot exists, the stale
// entries are returned.
func (r *Resolver) Catalog(ctx context.Context, categoryIDs []string, keyword string) ([]Entry, error) {
	if len(categoryIDs) > 0 || keyword != "" {
		return r.source.FetchAgents(ctx, categoryIDs, keyword)
	}

	if snap := r.fresh(); snap != nil {
		r.metrics.RecordCatalogHit()
		return snap.entries, nil
	}
	r.metrics.RecordCatalogMiss()

	// The fetch is shared, so one caller going away must not fail the rest.
	ch := r.group.DoChan("catalog", func() (any, error) {
		if snap := r.fresh(); snap != nil {
			return snap.entries, nil
		}
		return r.refresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Entry), nil
	}
}

func (r *Resolver) fresh() *snapshot {
	snap := r.current.Load()
	if snap == nil || r.now().Sub(snap.capturedAt) >= r.ttl {
		return nil
	}
	return snap
}

func (r *Resolver) refresh(ctx context.Context) ([]Entry, error) {
	entries, err := r.source.FetchAgents(ctx, nil, "")
	r.metrics.RecordCatalogRefresh(len(entries), err)

	if err != nil {
		if stale := r.current.Load(); stale != nil {
			r.logger.Warn("agent catalog refresh failed, serving stale snapshot",
				"error", err,
				"age", r.now().Sub(stale.capturedAt),
			)
			return stale.entries, nil
		}
		return nil, err
	}

	r.current.Store(&snapshot{entries: entries, capturedAt: r.now()})
	r.logger.Debug("agent catalog refreshed", "entries", len(entries))
	return entries, nil
}

// Resolve finds the catalog entry for alias: an exact label match
// (ignoring case and punctuation) first, then the most similar label at
// or above the threshold. Fails with ErrEmptyAlias or a *NotFoundError.
func (r *Resolver) Resolve(ctx context.Context, alias string) (Entry, error) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return Entry{}, ErrEmptyAlias
	}

	entries, err := r.Catalog(ctx, nil, "")
	if err != nil {
		return Entry{}, err
	}

	normalized := Normalize(alias)
	for _, e := range entries {
		if strings.EqualFold(strings.TrimSpace(e.Label), alias) ||
			(normalized != "" && Normalize(e.Label) == normalized) {
			r.metrics.RecordAgentResolution("exact")
			return e, nil
		}
	}

	labels := make([]string, len(entries))
	for i, e := range entries {
		labels[i] = e.Label
	}

	threshold := r.Threshold()
	i, score := BestBy(alias, labels, r.tieBreak)
	if i >= 0 && score >= threshold {
		r.metrics.RecordAgentResolution("fuzzy")
		r.logger.Info("agent resolved by similarity",
			"alias", alias,
			"label", entries[i].Label,
			"score", score,
		)
		return entries[i], nil
	}

	r.metrics.RecordAgentResolution("not_found")
	nf := &NotFoundError{Alias: alias, Score: score, Threshold: threshold}
	if i >= 0 {
		nf.Closest = labels[i]
	}
	return Entry{}, nf
}
