package main

import (
	"fmt"
	"log/slog"

	"kiira-hq/gateway/pkg/agents"
	"kiira-hq/gateway/pkg/cli"
	"kiira-hq/gateway/pkg/config"
	"kiira-hq/gateway/pkg/kiira"
	"kiira-hq/gateway/pkg/telemetry/metrics"
	"kiira-hq/gateway/pkg/telemetry/tracing"
	"kiira-hq/gateway/pkg/upstream"
)

// upstreamStack is the transport, client and agent resolver every command
// that talks to Kiira needs.
type upstreamStack struct {
	transport *upstream.Transport
	client    *kiira.Client
	resolver  *agents.Resolver
}

func (u *upstreamStack) Close() error {
	return u.transport.Close()
}

// loadConfig reads the --config file (or defaults) with environment
// overrides, outside the global singleton.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg, nil
}

func newUpstreamStack(cfg *config.Config, logger *slog.Logger, collector *metrics.Collector, tracer *tracing.Tracer) *upstreamStack {
	tr := upstream.New(upstream.ConfigFrom(cfg.Upstream),
		upstream.WithLogger(logger),
		upstream.WithMetrics(collector),
		upstream.WithTracer(tracer),
	)
	client := kiira.NewClient(kiira.ConfigFrom(cfg.Upstream), tr,
		kiira.WithLogger(logger),
		kiira.WithLocalFiles(cfg.Upstream.AllowLocalFiles),
	)
	resolver := agents.NewResolver(kiira.NewCatalogSource(client),
		agents.WithTTL(cfg.Agents.CatalogTTL),
		agents.WithThreshold(cfg.Agents.SimilarityThreshold),
		agents.WithTieBreak(agents.TieBreak(cfg.Agents.TieBreak)),
		agents.WithLogger(logger),
		agents.WithMetrics(collector),
	)
	return &upstreamStack{transport: tr, client: client, resolver: resolver}
}
