package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DotEnvFile is the dotenv file read before environment overrides are applied.
const DotEnvFile = ".env"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML on top of the defaults. Fields absent from the document
// keep their default values.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. An empty path skips the file and starts
// from defaults, so the gateway can run from environment variables alone.
//
// The loading sequence is:
// 1. Load variables from .env (a missing file is ignored)
// 2. Load YAML from file (or defaults)
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	if err := loadDotEnv(DotEnvFile); err != nil {
		return nil, err
	}

	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		var err error
		cfg, err = LoadConfig(path)
		if err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// loadDotEnv exports the variables of a dotenv file without overriding
// variables that are already set.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

// ParseAgentList parses an agent list given either as a JSON array
// (["A", "B"]) or as a comma separated list (A,B). Blank items are dropped.
func ParseAgentList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		var items []string
		if err := json.Unmarshal([]byte(raw), &items); err == nil {
			return compactList(items)
		}
	}

	return compactList(strings.Split(raw, ","))
}

func compactList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Variables use the format KIIRA_SECTION_FIELD; the short legacy names
// (BASE_URL_KIIRA, API_KEY, AGENT_LIST, ...) are honoured as well and lose
// to the prefixed form when both are set.
func applyEnvOverrides(cfg *Config) {
	// Legacy names first, so prefixed names win.
	if val := os.Getenv("PORT"); val != "" {
		host, _, err := net.SplitHostPort(cfg.Server.ListenAddress)
		if err != nil || host == "" {
			host = "0.0.0.0"
		}
		cfg.Server.ListenAddress = net.JoinHostPort(host, val)
	}
	if val := os.Getenv("BASE_URL_KIIRA"); val != "" {
		cfg.Upstream.KiiraBaseURL = val
	}
	if val := os.Getenv("BASE_URL_SEAART_API"); val != "" {
		cfg.Upstream.SeaArtAPIBaseURL = val
	}
	if val := os.Getenv("BASE_URL_SEAART_UPLOADER"); val != "" {
		cfg.Upstream.UploaderBaseURL = val
	}
	if val := os.Getenv("API_KEY"); val != "" {
		cfg.Auth.APIKey = val
	}
	if val := os.Getenv("DEFAULT_AGENT_NAME"); val != "" {
		cfg.Agents.DefaultAgent = val
	}
	if val, ok := os.LookupEnv("AGENT_LIST"); ok {
		cfg.Agents.List = ParseAgentList(val)
	}

	// Server overrides
	setString(&cfg.Server.ListenAddress, "KIIRA_SERVER_LISTEN_ADDRESS")
	setDuration(&cfg.Server.ReadTimeout, "KIIRA_SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "KIIRA_SERVER_WRITE_TIMEOUT")
	setDuration(&cfg.Server.IdleTimeout, "KIIRA_SERVER_IDLE_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "KIIRA_SERVER_SHUTDOWN_TIMEOUT")
	setBool(&cfg.Server.CORS.Enabled, "KIIRA_SERVER_CORS_ENABLED")

	// Auth overrides
	setString(&cfg.Auth.APIKey, "KIIRA_AUTH_API_KEY")

	// Upstream overrides
	setString(&cfg.Upstream.KiiraBaseURL, "KIIRA_UPSTREAM_KIIRA_BASE_URL")
	setString(&cfg.Upstream.SeaArtAPIBaseURL, "KIIRA_UPSTREAM_SEAART_API_BASE_URL")
	setString(&cfg.Upstream.UploaderBaseURL, "KIIRA_UPSTREAM_UPLOADER_BASE_URL")
	setDuration(&cfg.Upstream.ConnectTimeout, "KIIRA_UPSTREAM_CONNECT_TIMEOUT")
	setDuration(&cfg.Upstream.ReadTimeout, "KIIRA_UPSTREAM_READ_TIMEOUT")
	setDuration(&cfg.Upstream.WriteTimeout, "KIIRA_UPSTREAM_WRITE_TIMEOUT")
	setDuration(&cfg.Upstream.PoolTimeout, "KIIRA_UPSTREAM_POOL_TIMEOUT")
	setDuration(&cfg.Upstream.RequestTimeout, "KIIRA_UPSTREAM_REQUEST_TIMEOUT")
	setDuration(&cfg.Upstream.StreamTimeout, "KIIRA_UPSTREAM_STREAM_TIMEOUT")
	setInt(&cfg.Upstream.MaxConns, "KIIRA_UPSTREAM_MAX_CONNS")
	setInt(&cfg.Upstream.MaxIdleConns, "KIIRA_UPSTREAM_MAX_IDLE_CONNS")
	setInt(&cfg.Upstream.MaxRetries, "KIIRA_UPSTREAM_MAX_RETRIES")
	setBool(&cfg.Upstream.AllowLocalFiles, "KIIRA_UPSTREAM_ALLOW_LOCAL_FILES")

	// Agent overrides
	setString(&cfg.Agents.DefaultAgent, "KIIRA_AGENTS_DEFAULT_AGENT")
	if val, ok := os.LookupEnv("KIIRA_AGENTS_LIST"); ok {
		cfg.Agents.List = ParseAgentList(val)
	}
	if val := os.Getenv("KIIRA_AGENTS_SIMILARITY_THRESHOLD"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Agents.SimilarityThreshold = f
		}
	}
	setDuration(&cfg.Agents.CatalogTTL, "KIIRA_AGENTS_CATALOG_TTL")
	setString(&cfg.Agents.TieBreak, "KIIRA_AGENTS_TIE_BREAK")
	setBool(&cfg.Agents.BindConfigured, "KIIRA_AGENTS_BIND_CONFIGURED")

	// Session overrides
	setDuration(&cfg.Sessions.TTL, "KIIRA_SESSIONS_TTL")
	setString(&cfg.Sessions.SweepSchedule, "KIIRA_SESSIONS_SWEEP_SCHEDULE")

	// Credential overrides
	setBool(&cfg.Credentials.Enabled, "KIIRA_CREDENTIALS_ENABLED")
	setString(&cfg.Credentials.Path, "KIIRA_CREDENTIALS_PATH")

	// Usage overrides
	setString(&cfg.Usage.Encoding, "KIIRA_USAGE_ENCODING")

	// Telemetry overrides
	setString(&cfg.Telemetry.Logging.Level, "KIIRA_TELEMETRY_LOGGING_LEVEL")
	setString(&cfg.Telemetry.Logging.Format, "KIIRA_TELEMETRY_LOGGING_FORMAT")
	setBool(&cfg.Telemetry.Metrics.Enabled, "KIIRA_TELEMETRY_METRICS_ENABLED")
	setString(&cfg.Telemetry.Metrics.Path, "KIIRA_TELEMETRY_METRICS_PATH")
	setBool(&cfg.Telemetry.Tracing.Enabled, "KIIRA_TELEMETRY_TRACING_ENABLED")
	setString(&cfg.Telemetry.Tracing.Endpoint, "KIIRA_TELEMETRY_TRACING_ENDPOINT")
	if val := os.Getenv("KIIRA_TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setDuration(dst *time.Duration, key string) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func setInt(dst *int, key string) {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func setBool(dst *bool, key string) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}
