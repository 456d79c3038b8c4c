package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"kiira-hq/gateway/pkg/cli"
	"kiira-hq/gateway/pkg/config"
	"kiira-hq/gateway/pkg/credentials"
	"kiira-hq/gateway/pkg/gateway"
	"kiira-hq/gateway/pkg/server"
	"kiira-hq/gateway/pkg/session"
	"kiira-hq/gateway/pkg/telemetry/logging"
	"kiira-hq/gateway/pkg/telemetry/metrics"
	"kiira-hq/gateway/pkg/telemetry/tracing"
	"kiira-hq/gateway/pkg/usage"

	"github.com/spf13/cobra"
)

// configDebounce coalesces editor write bursts into one reload.
const configDebounce = 500 * time.Millisecond

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gateway",
	Long: `Start the gateway with the specified configuration.

Configuration comes from the --config file when given, then from .env and
the environment. A configuration file is watched and agent list, fuzzy
threshold, group binding and log level changes apply without a restart.

Examples:
  # Start from environment variables only
  kiira-gateway run

  # Start with a config file
  kiira-gateway run --config /etc/kiira/gateway.yaml

  # Override listen address
  kiira-gateway run --listen 127.0.0.1:9000

  # Validate config without starting the server
  kiira-gateway run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError("", err.Error())
	}

	if runFlags.dryRun {
		cli.Success(out, "Configuration valid")
		return nil
	}

	cli.Banner(out, "Kiira Gateway", "v"+Version)
	if cfgFile != "" {
		cli.Success(out, "Configuration loaded from %s", cfgFile)
	} else {
		cli.Success(out, "Configuration loaded from environment")
	}

	logger, err := logging.New(logging.Config{
		Level:         cfg.Telemetry.Logging.Level,
		Format:        cfg.Telemetry.Logging.Format,
		AddSource:     cfg.Telemetry.Logging.AddSource,
		RedactSecrets: cfg.Telemetry.Logging.RedactSecrets,
		Writer:        os.Stderr,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	defer logger.Shutdown()
	log := logger.Slog()

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to start tracing: %w", err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracer.Shutdown(ctx)
	}()

	up := newUpstreamStack(cfg, log, collector, tracer)
	defer up.Close()

	store := session.NewStore(cfg.Sessions.TTL, session.WithMetrics(collector))

	gwOpts := []gateway.Option{
		gateway.WithLogger(log),
		gateway.WithMetrics(collector),
		gateway.WithTracer(tracer),
		gateway.WithUsage(usage.New(cfg.Usage.Encoding, log)),
		gateway.WithAgentList(cfg.Agents.List),
		gateway.WithBindConfigured(cfg.Agents.BindConfigured),
	}

	if cfg.Credentials.Enabled {
		accounts, err := credentials.OpenStore(credentials.StoreConfig{
			Path:        cfg.Credentials.Path,
			BusyTimeout: cfg.Credentials.BusyTimeout,
		})
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("failed to open account store: %w", err))
		}
		defer accounts.Close()

		sink := credentials.NewAsyncSink(accounts, cfg.Credentials.BufferSize, log, collector)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sink.Close(ctx); err != nil {
				log.Warn("account writes not flushed", "error", err)
			}
		}()
		gwOpts = append(gwOpts, gateway.WithCredentialSink(sink))
		cli.Success(out, "Account store at %s", accounts.Path())
	}

	gw := gateway.New(up.client, store, up.resolver, gwOpts...)

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

	if cfg.Sessions.SweepSchedule != "" {
		sweeper := session.NewSweeper(store, cfg.Sessions.SweepSchedule, log)
		if err := sweeper.Start(ctx); err != nil {
			log.Warn("session sweeper not started", "error", err)
		} else {
			defer sweeper.Stop()
		}
	}

	if cfgFile != "" {
		watchConfig(ctx, cfgFile, gw, logger)
	}

	srv := server.NewServer(cfg, gw,
		server.WithLogger(log),
		server.WithMetrics(collector),
		server.WithTracer(tracer),
		server.WithVersion(Version),
	)

	printEndpoints(cmd, cfg)

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	cli.Success(out, "Server stopped")
	return nil
}

// watchConfig applies reloadable settings whenever the config file changes.
// Listener, upstream and storage settings need a restart.
func watchConfig(ctx context.Context, path string, gw *gateway.Gateway, logger *logging.Logger) {
	config.Subscribe(func(c *config.Config) {
		gw.SetAgentList(c.Agents.List)
		gw.SetBindConfigured(c.Agents.BindConfigured)
		gw.Resolver().SetThreshold(c.Agents.SimilarityThreshold)
		if err := logger.SetLevel(c.Telemetry.Logging.Level); err != nil {
			logger.Warn("log level not applied", "error", err)
		}
		logger.Info("configuration applied",
			"agents", len(c.Agents.List),
			"similarity_threshold", c.Agents.SimilarityThreshold,
		)
	})

	w, err := config.NewWatcher(path, configDebounce, logger.Slog())
	if err != nil {
		logger.Warn("config watcher not started", "error", err)
		return
	}
	go func() {
		defer w.Stop()
		if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("config watcher stopped", "error", err)
		}
	}()
}

func printEndpoints(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.OutOrStdout()
	addr := cfg.Server.ListenAddress

	cli.Success(out, "Listening on %s", addr)
	cli.Success(out, "Chat completions: http://%s/v1/chat/completions", addr)
	if cfg.Telemetry.Metrics.Enabled {
		cli.Success(out, "Metrics: http://%s%s", addr, cfg.Telemetry.Metrics.Path)
	}
	if cfg.Auth.AuthDisabled() {
		cli.Warn(out, "API key check disabled; set API_KEY to require one")
	} else {
		cli.Success(out, "API key required (%s)", logging.RedactAPIKey(cfg.Auth.APIKey))
	}
	if len(cfg.Agents.List) > 0 {
		cli.Success(out, "Agents: %v", cfg.Agents.List)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")
}
