package config

import "time"

// Config is the root configuration structure for the Kiira gateway.
// It contains all configuration sections for the HTTP server, the upstream
// Kiira provider, agent resolution, session affinity, credential persistence
// and telemetry.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts, and CORS.
	Server ServerConfig `yaml:"server"`

	// Auth contains the shared-secret authentication settings for /v1 routes.
	Auth AuthConfig `yaml:"auth"`

	// Upstream contains the Kiira/SeaArt endpoints and the pooled transport
	// settings used to reach them.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Agents contains the model alias to upstream agent mapping settings.
	Agents AgentsConfig `yaml:"agents"`

	// Sessions contains conversation session affinity settings.
	Sessions SessionsConfig `yaml:"sessions"`

	// Credentials contains settings for the upstream account record store.
	Credentials CredentialsConfig `yaml:"credentials"`

	// Usage contains token usage estimation settings.
	Usage UsageConfig `yaml:"usage"`

	// Telemetry contains configuration for observability including logging,
	// metrics, and distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port for the gateway to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8999", "0.0.0.0:8999").
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	// Streaming responses can run for minutes, so this must exceed the upstream
	// stream timeout.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum time to wait for in-flight requests
	// during graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will read
	// parsing the request header.
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS configuration for the HTTP server.
type CORSConfig struct {
	// Enabled determines whether CORS headers are added to responses.
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is the list of origins allowed to make cross-origin requests.
	// Use ["*"] to allow all origins.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is the list of HTTP methods allowed for cross-origin requests.
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is the list of headers allowed in cross-origin requests.
	AllowedHeaders []string `yaml:"allowed_headers"`

	// MaxAge is how long (in seconds) the results of a preflight request can be cached.
	MaxAge int `yaml:"max_age"`
}

// AuthConfig contains the shared-secret settings.
type AuthConfig struct {
	// APIKey is the secret callers must present as a bearer token or in the
	// X-API-Key header. The sentinel value DefaultAPIKey (or an empty key)
	// disables the check entirely; that is an insecure default meant for
	// local use.
	APIKey string `yaml:"api_key"`
}

// UpstreamConfig contains the upstream endpoints and transport settings.
type UpstreamConfig struct {
	// KiiraBaseURL is the Kiira web API base URL (chat groups, messages, streams).
	KiiraBaseURL string `yaml:"kiira_base_url"`

	// SeaArtAPIBaseURL is the SeaArt account API base URL (guest login).
	SeaArtAPIBaseURL string `yaml:"seaart_api_base_url"`

	// UploaderBaseURL is the SeaArt uploader base URL (pre-sign/complete).
	UploaderBaseURL string `yaml:"uploader_base_url"`

	// ConnectTimeout bounds TCP connect and TLS handshake.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// ReadTimeout bounds each individual read from an upstream connection
	// and the wait for response headers.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds each individual write to an upstream connection.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// PoolTimeout bounds the wait for a free connection slot.
	PoolTimeout time.Duration `yaml:"pool_timeout"`

	// RequestTimeout is the end-to-end ceiling for unary upstream calls.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// StreamTimeout is the end-to-end ceiling for one streamed exchange.
	StreamTimeout time.Duration `yaml:"stream_timeout"`

	// MaxConns is the maximum number of concurrent upstream connections.
	MaxConns int `yaml:"max_conns"`

	// MaxIdleConns is the maximum number of idle keep-alive connections.
	MaxIdleConns int `yaml:"max_idle_conns"`

	// IdleConnTimeout is how long an idle connection remains in the pool.
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`

	// MaxRetries is the number of retries for idempotent upstream calls.
	MaxRetries int `yaml:"max_retries"`

	// UserAgent is sent on every upstream request.
	UserAgent string `yaml:"user_agent"`

	// AllowLocalFiles lets image references in chat messages name files on
	// the gateway host. Off by default: any caller could read server files.
	AllowLocalFiles bool `yaml:"allow_local_files"`
}

// AgentsConfig controls model alias resolution.
type AgentsConfig struct {
	// DefaultAgent is used when a request does not name a model.
	DefaultAgent string `yaml:"default_agent"`

	// List is the set of model aliases the gateway accepts. An empty list
	// accepts any model name.
	List []string `yaml:"list"`

	// SimilarityThreshold is the minimum fuzzy score (0..1) for a match.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// TieBreak picks between catalog entries with equal similarity:
	// "first" keeps catalog order, "shortest" prefers the shorter name.
	TieBreak string `yaml:"tie_break"`

	// CatalogTTL is how long an unfiltered upstream agent catalog is cached.
	CatalogTTL time.Duration `yaml:"catalog_ttl"`

	// BindConfigured creates chat groups for every configured agent when a
	// new upstream identity is established.
	BindConfigured bool `yaml:"bind_configured"`
}

// SessionsConfig controls conversation session affinity.
type SessionsConfig struct {
	// TTL is the idle time after which a session expires.
	TTL time.Duration `yaml:"ttl"`

	// SweepSchedule is the cron expression for the periodic sweep
	// (e.g. "@every 1h"). Empty disables the periodic sweep.
	SweepSchedule string `yaml:"sweep_schedule"`
}

// CredentialsConfig controls the upstream account record store.
type CredentialsConfig struct {
	// Enabled turns on account persistence.
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite database file path.
	Path string `yaml:"path"`

	// BusyTimeout is how long SQLite waits on a locked database.
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// BufferSize is the number of pending records held by the async writer.
	BufferSize int `yaml:"buffer_size"`
}

// UsageConfig controls token usage estimation in aggregated responses.
type UsageConfig struct {
	// Encoding is the tiktoken encoding name ("cl100k_base", "o200k_base")
	// or "words" for whitespace counting.
	Encoding string `yaml:"encoding"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains OpenTelemetry tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the output format ("json", "text", "console").
	Format string `yaml:"format"`

	// AddSource includes file and line number in logs.
	AddSource bool `yaml:"add_source"`

	// RedactSecrets masks upstream tokens and API keys in log attributes.
	RedactSecrets bool `yaml:"redact_secrets"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled determines whether metrics are collected and exposed.
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the metrics endpoint.
	Path string `yaml:"path"`

	// Namespace is the Prometheus metric namespace.
	Namespace string `yaml:"namespace"`

	// Subsystem is the Prometheus metric subsystem.
	Subsystem string `yaml:"subsystem"`
}

// TracingConfig contains OpenTelemetry configuration.
type TracingConfig struct {
	// Enabled determines whether spans are exported.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint ("host:port").
	Endpoint string `yaml:"endpoint"`

	// ServiceName is reported as the service.name resource attribute.
	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of traces sampled (0..1).
	SampleRatio float64 `yaml:"sample_ratio"`

	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure"`
}

// AuthDisabled reports whether the configured key disables authentication.
func (a AuthConfig) AuthDisabled() bool {
	return a.APIKey == "" || a.APIKey == DefaultAPIKey
}
