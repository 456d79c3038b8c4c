package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "0.0.0.0:8999"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 5 * time.Minute
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// CORS defaults
	DefaultCORSEnabled = true
	DefaultCORSMaxAge  = 3600

	// Auth defaults. The sentinel key disables authentication.
	DefaultAPIKey = "sk-123456"

	// Upstream defaults
	DefaultKiiraBaseURL         = "https://www.kiira.ai"
	DefaultSeaArtAPIBaseURL     = "https://app-matrix-api.api.seaart.ai"
	DefaultUploaderBaseURL      = "https://aiart-uploader.api.seaart.dev"
	DefaultUpstreamConnect      = 10 * time.Second
	DefaultUpstreamRead         = 60 * time.Second
	DefaultUpstreamWrite        = 30 * time.Second
	DefaultUpstreamPool         = 10 * time.Second
	DefaultUpstreamRequest      = 60 * time.Second
	DefaultUpstreamStream       = 180 * time.Second
	DefaultUpstreamMaxConns     = 100
	DefaultUpstreamMaxIdleConns = 20
	DefaultUpstreamIdleConn     = 90 * time.Second
	DefaultUpstreamMaxRetries   = 2
	DefaultUpstreamUserAgent    = "Mozilla/5.0 (iPhone; CPU iPhone OS 13_2_3 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/13.0.3 Mobile/15E148 Safari/604.1"

	// Agent defaults
	DefaultAgentName           = "Nano Banana Pro🔥"
	DefaultSimilarityThreshold = 0.7
	DefaultCatalogTTL          = 60 * time.Second
	DefaultTieBreak            = "first"

	// Session defaults
	DefaultSessionTTL    = 24 * time.Hour
	DefaultSweepSchedule = "@every 1h"

	// Credential store defaults
	DefaultCredentialsEnabled     = true
	DefaultCredentialsPath        = "data/accounts.db"
	DefaultCredentialsBusyTimeout = 5 * time.Second
	DefaultCredentialsBufferSize  = 256

	// Usage defaults
	DefaultUsageEncoding = "cl100k_base"

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsEnabled   = true
	DefaultPrometheusPath   = "/metrics"
	DefaultMetricsNamespace = "kiira"
	DefaultMetricsSubsystem = "gateway"
	DefaultTracingService   = "kiira-gateway"
	DefaultTracingSampling  = 1.0
)

// Default returns a configuration with every default applied.
// Booleans whose default is true are set here rather than in ApplyDefaults,
// since a YAML false is indistinguishable from an unset field there.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.CORS.Enabled = DefaultCORSEnabled
	cfg.Credentials.Enabled = DefaultCredentialsEnabled
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Telemetry.Logging.RedactSecrets = true
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	applyCORSDefaults(&cfg.Server.CORS)

	// Auth defaults
	if cfg.Auth.APIKey == "" {
		cfg.Auth.APIKey = DefaultAPIKey
	}

	// Upstream defaults
	up := &cfg.Upstream
	if up.KiiraBaseURL == "" {
		up.KiiraBaseURL = DefaultKiiraBaseURL
	}
	if up.SeaArtAPIBaseURL == "" {
		up.SeaArtAPIBaseURL = DefaultSeaArtAPIBaseURL
	}
	if up.UploaderBaseURL == "" {
		up.UploaderBaseURL = DefaultUploaderBaseURL
	}
	if up.ConnectTimeout == 0 {
		up.ConnectTimeout = DefaultUpstreamConnect
	}
	if up.ReadTimeout == 0 {
		up.ReadTimeout = DefaultUpstreamRead
	}
	if up.WriteTimeout == 0 {
		up.WriteTimeout = DefaultUpstreamWrite
	}
	if up.PoolTimeout == 0 {
		up.PoolTimeout = DefaultUpstreamPool
	}
	if up.RequestTimeout == 0 {
		up.RequestTimeout = DefaultUpstreamRequest
	}
	if up.StreamTimeout == 0 {
		up.StreamTimeout = DefaultUpstreamStream
	}
	if up.MaxConns == 0 {
		up.MaxConns = DefaultUpstreamMaxConns
	}
	if up.MaxIdleConns == 0 {
		up.MaxIdleConns = DefaultUpstreamMaxIdleConns
	}
	if up.IdleConnTimeout == 0 {
		up.IdleConnTimeout = DefaultUpstreamIdleConn
	}
	if up.MaxRetries == 0 {
		up.MaxRetries = DefaultUpstreamMaxRetries
	}
	if up.UserAgent == "" {
		up.UserAgent = DefaultUpstreamUserAgent
	}

	// Agent defaults
	if cfg.Agents.DefaultAgent == "" {
		cfg.Agents.DefaultAgent = DefaultAgentName
	}
	if cfg.Agents.SimilarityThreshold == 0 {
		cfg.Agents.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.Agents.CatalogTTL == 0 {
		cfg.Agents.CatalogTTL = DefaultCatalogTTL
	}
	if cfg.Agents.TieBreak == "" {
		cfg.Agents.TieBreak = DefaultTieBreak
	}

	// Session defaults
	if cfg.Sessions.TTL == 0 {
		cfg.Sessions.TTL = DefaultSessionTTL
	}
	if cfg.Sessions.SweepSchedule == "" {
		cfg.Sessions.SweepSchedule = DefaultSweepSchedule
	}

	// Credential store defaults
	if cfg.Credentials.Path == "" {
		cfg.Credentials.Path = DefaultCredentialsPath
	}
	if cfg.Credentials.BusyTimeout == 0 {
		cfg.Credentials.BusyTimeout = DefaultCredentialsBusyTimeout
	}
	if cfg.Credentials.BufferSize == 0 {
		cfg.Credentials.BufferSize = DefaultCredentialsBufferSize
	}

	// Usage defaults
	if cfg.Usage.Encoding == "" {
		cfg.Usage.Encoding = DefaultUsageEncoding
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingService
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampling
	}
}

// applyCORSDefaults fills the CORS lists when CORS is enabled but unconfigured.
func applyCORSDefaults(cors *CORSConfig) {
	if !cors.Enabled {
		return
	}
	if len(cors.AllowedOrigins) == 0 {
		cors.AllowedOrigins = []string{"*"}
	}
	if len(cors.AllowedMethods) == 0 {
		cors.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cors.AllowedHeaders) == 0 {
		cors.AllowedHeaders = []string{"Content-Type", "Authorization", "X-API-Key", "X-Request-ID"}
	}
	if cors.MaxAge == 0 {
		cors.MaxAge = DefaultCORSMaxAge
	}
}
