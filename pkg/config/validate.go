package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// scheduleParser accepts standard five-field specs and descriptors such as
// "@every 1h" or "@daily", matching what cron.New accepts by default.
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether spec is a schedule the session sweeper can run.
func ValidateSchedule(spec string) error {
	if _, err := scheduleParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateUpstream(&cfg.Upstream)...)
	errs = append(errs, validateAgents(&cfg.Agents)...)
	errs = append(errs, validateSessions(&cfg.Sessions)...)
	errs = append(errs, validateCredentials(&cfg.Credentials)...)
	errs = append(errs, validateUsage(&cfg.Usage)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid host:port: %v", err),
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.idle_timeout", Message: "idle timeout must be positive"})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.shutdown_timeout", Message: "shutdown timeout must be positive"})
	}

	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}
	if cfg.MaxHeaderBytes > 10*1024*1024 { // 10MB is excessive
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes exceeds reasonable limit (10MB)",
		})
	}

	if cfg.CORS.MaxAge < 0 {
		errs = append(errs, FieldError{Field: "server.cors.max_age", Message: "max age must be non-negative"})
	}

	return errs
}

// validateUpstream validates upstream endpoints and transport limits.
func validateUpstream(cfg *UpstreamConfig) []FieldError {
	var errs []FieldError

	urls := []struct {
		field string
		value string
	}{
		{"upstream.kiira_base_url", cfg.KiiraBaseURL},
		{"upstream.seaart_api_base_url", cfg.SeaArtAPIBaseURL},
		{"upstream.uploader_base_url", cfg.UploaderBaseURL},
	}
	for _, u := range urls {
		if err := validateBaseURL(u.value); err != "" {
			errs = append(errs, FieldError{Field: u.field, Message: err})
		}
	}

	durations := []struct {
		field string
		value int64
	}{
		{"upstream.connect_timeout", int64(cfg.ConnectTimeout)},
		{"upstream.read_timeout", int64(cfg.ReadTimeout)},
		{"upstream.write_timeout", int64(cfg.WriteTimeout)},
		{"upstream.pool_timeout", int64(cfg.PoolTimeout)},
		{"upstream.request_timeout", int64(cfg.RequestTimeout)},
		{"upstream.stream_timeout", int64(cfg.StreamTimeout)},
		{"upstream.idle_conn_timeout", int64(cfg.IdleConnTimeout)},
	}
	for _, d := range durations {
		if d.value < 0 {
			errs = append(errs, FieldError{Field: d.field, Message: "timeout must be positive"})
		}
	}

	if cfg.MaxConns < 1 {
		errs = append(errs, FieldError{Field: "upstream.max_conns", Message: "max conns must be at least 1"})
	}
	if cfg.MaxIdleConns < 0 {
		errs = append(errs, FieldError{Field: "upstream.max_idle_conns", Message: "max idle conns must be non-negative"})
	}
	if cfg.MaxIdleConns > cfg.MaxConns && cfg.MaxConns > 0 {
		errs = append(errs, FieldError{Field: "upstream.max_idle_conns", Message: "max idle conns cannot exceed max conns"})
	}
	if cfg.MaxRetries < 0 {
		errs = append(errs, FieldError{Field: "upstream.max_retries", Message: "max retries must be non-negative"})
	}
	if cfg.MaxRetries > 10 {
		errs = append(errs, FieldError{Field: "upstream.max_retries", Message: "max retries exceeds reasonable limit (10)"})
	}

	return errs
}

func validateBaseURL(raw string) string {
	if raw == "" {
		return "base URL is required"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Sprintf("invalid URL format: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "scheme must be http or https"
	}
	if u.Host == "" {
		return "host is required"
	}
	return ""
}

// validateAgents validates agent resolution settings.
func validateAgents(cfg *AgentsConfig) []FieldError {
	var errs []FieldError

	if strings.TrimSpace(cfg.DefaultAgent) == "" {
		errs = append(errs, FieldError{Field: "agents.default_agent", Message: "default agent is required"})
	}
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		errs = append(errs, FieldError{
			Field:   "agents.similarity_threshold",
			Message: fmt.Sprintf("must be in (0, 1], got %v", cfg.SimilarityThreshold),
		})
	}
	if cfg.TieBreak != "first" && cfg.TieBreak != "shortest" {
		errs = append(errs, FieldError{
			Field:   "agents.tie_break",
			Message: fmt.Sprintf("must be first or shortest, got %q", cfg.TieBreak),
		})
	}
	if cfg.CatalogTTL < 0 {
		errs = append(errs, FieldError{Field: "agents.catalog_ttl", Message: "catalog TTL must be non-negative"})
	}
	for i, name := range cfg.List {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("agents.list[%d]", i),
				Message: "agent name cannot be empty",
			})
		}
	}

	return errs
}

// validateSessions validates session affinity settings.
func validateSessions(cfg *SessionsConfig) []FieldError {
	var errs []FieldError

	if cfg.TTL <= 0 {
		errs = append(errs, FieldError{Field: "sessions.ttl", Message: "TTL must be positive"})
	}
	if cfg.SweepSchedule != "" {
		if err := ValidateSchedule(cfg.SweepSchedule); err != nil {
			errs = append(errs, FieldError{Field: "sessions.sweep_schedule", Message: err.Error()})
		}
	}

	return errs
}

// validateCredentials validates the account store settings.
func validateCredentials(cfg *CredentialsConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return errs
	}
	if cfg.Path == "" {
		errs = append(errs, FieldError{Field: "credentials.path", Message: "path is required when credentials are enabled"})
	}
	if cfg.BusyTimeout < 0 {
		errs = append(errs, FieldError{Field: "credentials.busy_timeout", Message: "busy timeout must be non-negative"})
	}
	if cfg.BufferSize < 1 {
		errs = append(errs, FieldError{Field: "credentials.buffer_size", Message: "buffer size must be at least 1"})
	}

	return errs
}

// validateUsage validates the token counting settings.
func validateUsage(cfg *UsageConfig) []FieldError {
	validEncodings := map[string]bool{
		"cl100k_base": true,
		"o200k_base":  true,
		"p50k_base":   true,
		"r50k_base":   true,
		"words":       true,
	}
	if !validEncodings[cfg.Encoding] {
		return []FieldError{{
			Field:   "usage.encoding",
			Message: fmt.Sprintf("invalid encoding %q (must be cl100k_base, o200k_base, p50k_base, r50k_base or words)", cfg.Encoding),
		}}
	}
	return nil
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn, or error)", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json, text, or console)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "endpoint is required when tracing is enabled",
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: fmt.Sprintf("sample ratio must be in [0, 1], got %v", cfg.Tracing.SampleRatio),
		})
	}

	return errs
}
