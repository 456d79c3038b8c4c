package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "127.0.0.1:9000"
  read_timeout: "45s"

auth:
  api_key: "sk-real-key"

agents:
  default_agent: "Sora 2"
  list: ["Sora 2", "Nano Banana Pro"]
  similarity_threshold: 0.8

sessions:
  ttl: 2h

telemetry:
  logging:
    level: "debug"
    format: "text"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "127.0.0.1:9000" {
		t.Errorf("expected listen address %q, got %q", "127.0.0.1:9000", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout != 45*time.Second {
		t.Errorf("expected read timeout 45s, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Auth.APIKey != "sk-real-key" {
		t.Errorf("expected api key to be loaded, got %q", cfg.Auth.APIKey)
	}
	if cfg.Auth.AuthDisabled() {
		t.Error("expected auth to be enabled for a non-sentinel key")
	}
	if !reflect.DeepEqual(cfg.Agents.List, []string{"Sora 2", "Nano Banana Pro"}) {
		t.Errorf("unexpected agent list %v", cfg.Agents.List)
	}
	if cfg.Agents.SimilarityThreshold != 0.8 {
		t.Errorf("expected threshold 0.8, got %v", cfg.Agents.SimilarityThreshold)
	}
	if cfg.Sessions.TTL != 2*time.Hour {
		t.Errorf("expected session TTL 2h, got %v", cfg.Sessions.TTL)
	}

	// Untouched sections keep their defaults.
	if cfg.Upstream.StreamTimeout != DefaultUpstreamStream {
		t.Errorf("expected default stream timeout, got %v", cfg.Upstream.StreamTimeout)
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("expected metrics to stay enabled by default")
	}
}

func TestLoadConfig_FalseOverridesTrueDefault(t *testing.T) {
	path := writeConfig(t, `
credentials:
  enabled: false
telemetry:
  metrics:
    enabled: false
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Credentials.Enabled {
		t.Error("expected credentials to be disabled")
	}
	if cfg.Telemetry.Metrics.Enabled {
		t.Error("expected metrics to be disabled")
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "invalid yaml",
			content: "server: [unclosed",
			wantErr: "failed to parse",
		},
		{
			name: "invalid threshold",
			content: `
agents:
  similarity_threshold: 1.5
`,
			wantErr: "agents.similarity_threshold",
		},
		{
			name: "invalid schedule",
			content: `
sessions:
  sweep_schedule: "every hour please"
`,
			wantErr: "sessions.sweep_schedule",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())

	path := writeConfig(t, `
server:
  listen_address: "127.0.0.1:9000"
agents:
  list: ["From File"]
`)

	t.Setenv("KIIRA_SERVER_LISTEN_ADDRESS", "0.0.0.0:7000")
	t.Setenv("KIIRA_UPSTREAM_MAX_RETRIES", "4")
	t.Setenv("KIIRA_UPSTREAM_ALLOW_LOCAL_FILES", "true")
	t.Setenv("KIIRA_SESSIONS_TTL", "30m")
	t.Setenv("AGENT_LIST", `["Env A", "Env B"]`)
	t.Setenv("API_KEY", "sk-legacy")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:7000" {
		t.Errorf("expected env listen address, got %q", cfg.Server.ListenAddress)
	}
	if cfg.Upstream.MaxRetries != 4 {
		t.Errorf("expected max retries 4, got %d", cfg.Upstream.MaxRetries)
	}
	if !cfg.Upstream.AllowLocalFiles {
		t.Error("expected local files allowed from env")
	}
	if cfg.Sessions.TTL != 30*time.Minute {
		t.Errorf("expected TTL 30m, got %v", cfg.Sessions.TTL)
	}
	if !reflect.DeepEqual(cfg.Agents.List, []string{"Env A", "Env B"}) {
		t.Errorf("expected env agent list, got %v", cfg.Agents.List)
	}
	if cfg.Auth.APIKey != "sk-legacy" {
		t.Errorf("expected legacy api key, got %q", cfg.Auth.APIKey)
	}
}

func TestLoadConfigWithEnvOverrides_NoFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "8123")
	t.Setenv("BASE_URL_KIIRA", "http://127.0.0.1:1234")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Server.ListenAddress != "0.0.0.0:8123" {
		t.Errorf("expected PORT to set listen address, got %q", cfg.Server.ListenAddress)
	}
	if cfg.Upstream.KiiraBaseURL != "http://127.0.0.1:1234" {
		t.Errorf("expected legacy base url, got %q", cfg.Upstream.KiiraBaseURL)
	}
	if !cfg.Auth.AuthDisabled() {
		t.Error("expected sentinel default key to disable auth")
	}
}

func TestLoadConfigWithEnvOverrides_PrefixedWinsOverLegacy(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("API_KEY", "sk-legacy")
	t.Setenv("KIIRA_AUTH_API_KEY", "sk-prefixed")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Auth.APIKey != "sk-prefixed" {
		t.Errorf("expected prefixed variable to win, got %q", cfg.Auth.APIKey)
	}
}

func TestLoadConfigWithEnvOverrides_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	if err := os.WriteFile(filepath.Join(dir, DotEnvFile), []byte("KIIRA_AGENTS_DEFAULT_AGENT=Dotenv Agent\n"), 0644); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("KIIRA_AGENTS_DEFAULT_AGENT") })

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Agents.DefaultAgent != "Dotenv Agent" {
		t.Errorf("expected agent from .env, got %q", cfg.Agents.DefaultAgent)
	}
}

func TestParseAgentList(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "empty", raw: "  ", want: nil},
		{name: "json array", raw: `["A", " B ", ""]`, want: []string{"A", "B"}},
		{name: "comma list", raw: "A, B,,C", want: []string{"A", "B", "C"}},
		{name: "unicode", raw: "Nano Banana Pro🔥", want: []string{"Nano Banana Pro🔥"}},
		{name: "broken json falls back to commas", raw: `[A, B]`, want: []string{"[A", "B]"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseAgentList(tt.raw)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseAgentList(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}
