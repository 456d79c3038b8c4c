package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kiira-hq/gateway/pkg/agents"
	"kiira-hq/gateway/pkg/cli"
	"kiira-hq/gateway/pkg/credentials"
	"kiira-hq/gateway/pkg/kiira/kiiratest"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cfgFile = ""
	verbose = false
	agentsFlags.keyword, agentsFlags.categories, agentsFlags.format = "", nil, "text"
	accountsFlags.limit, accountsFlags.format, accountsFlags.showTokens = 50, "text", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func withUpstream(t *testing.T) *kiiratest.Server {
	t.Helper()
	srv := kiiratest.NewServer()
	t.Cleanup(srv.Close)
	srv.Agents = []agents.Entry{
		{ID: "1", Label: "Nano Banana Pro🔥", AccountNo: "acc-banana", Description: "Image\nmodel"},
		{ID: "2", Label: "Veo 3", AccountNo: "acc-veo"},
	}
	t.Setenv("BASE_URL_KIIRA", srv.URL)
	t.Setenv("BASE_URL_SEAART_API", srv.URL)
	t.Setenv("BASE_URL_SEAART_UPLOADER", srv.URL)
	return srv
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"run", "validate", "agents", "accounts", "version", "completion"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestCompletion(t *testing.T) {
	out, err := execute(t, "completion", "bash")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "kiira-gateway") {
		t.Error("bash completion does not mention the binary")
	}

	if _, err := execute(t, "completion", "tcsh"); err == nil {
		t.Error("unsupported shell accepted")
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(good, []byte("server:\n  listen_address: 127.0.0.1:9000\nagents:\n  list: [\"Veo 3\"]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("server:\n  listen_address: nope\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "validate", "--config", good)
	if err != nil {
		t.Fatalf("validate good config: %v", err)
	}
	for _, s := range []string{"Configuration valid", "127.0.0.1:9000", "Veo 3", "API key check disabled"} {
		if !strings.Contains(out, s) {
			t.Errorf("output missing %q:\n%s", s, out)
		}
	}

	_, err = execute(t, "validate", "--config", bad)
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("bad config exit code = %d, want %d (%v)", cli.ExitCode(err), cli.ExitConfig, err)
	}
}

func TestRunDryRun(t *testing.T) {
	out, err := execute(t, "run", "--dry-run")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Errorf("output = %q", out)
	}
}

func TestAgentsList(t *testing.T) {
	withUpstream(t)

	out, err := execute(t, "agents", "list", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}

	var rows []map[string]string
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if len(rows) != 2 || rows[0]["label"] != "Nano Banana Pro🔥" || rows[0]["description"] != "Image model" {
		t.Errorf("rows = %v", rows)
	}
}

func TestAgentsResolve(t *testing.T) {
	withUpstream(t)

	out, err := execute(t, "agents", "resolve", "nano banana pro", "--format", "csv")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "nano banana pro,Nano Banana Pro🔥,acc-banana,") {
		t.Errorf("output = %q", out)
	}

	_, err = execute(t, "agents", "resolve", "completely unrelated words")
	if err == nil || !strings.Contains(err.Error(), "no agent matches") {
		t.Errorf("err = %v", err)
	}
}

func TestAgentsBadFormat(t *testing.T) {
	if _, err := execute(t, "agents", "list", "--format", "xml"); err == nil {
		t.Error("xml format accepted")
	}
}

func TestAccountsList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.db")
	store, err := credentials.OpenStore(credentials.StoreConfig{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	if err := store.Save(context.Background(), credentials.Record{
		UserName:    "guest-1",
		GroupID:     "g-1",
		Token:       "eyJhbGciOiJIUzI1NiJ9.payload.sig",
		DeviceID:    "dev-1",
		Agent:       "Veo 3",
		AtAccountNo: "acc-veo",
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		t.Fatal(err)
	}
	store.Close()

	t.Setenv("KIIRA_CREDENTIALS_ENABLED", "true")
	t.Setenv("KIIRA_CREDENTIALS_PATH", path)

	out, err := execute(t, "accounts", "list", "--format", "csv")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "guest-1,g-1,Veo 3,eyJh***,dev-1,") {
		t.Errorf("output = %q", out)
	}

	out, err = execute(t, "accounts", "list", "--format", "csv", "--show-tokens")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "eyJhbGciOiJIUzI1NiJ9.payload.sig") {
		t.Errorf("token not shown: %q", out)
	}
}

func TestAccountsListDisabled(t *testing.T) {
	t.Setenv("KIIRA_CREDENTIALS_ENABLED", "false")

	_, err := execute(t, "accounts", "list")
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("exit code = %d, want %d (%v)", cli.ExitCode(err), cli.ExitConfig, err)
	}
}
