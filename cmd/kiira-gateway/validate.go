package main

import (
	"kiira-hq/gateway/pkg/cli"
	"kiira-hq/gateway/pkg/telemetry/logging"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration the way run does (file, .env, environment) and
report the effective settings without contacting the upstream.

Examples:
  kiira-gateway validate
  kiira-gateway validate --config gateway.yaml`,
	Args: cobra.NoArgs,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err != nil {
		cli.Fail(out, "Configuration invalid")
		return err
	}

	cli.Success(out, "Configuration valid")
	cli.Success(out, "Listen address: %s", cfg.Server.ListenAddress)
	cli.Success(out, "Kiira API: %s", cfg.Upstream.KiiraBaseURL)
	if cfg.Auth.AuthDisabled() {
		cli.Warn(out, "API key check disabled")
	} else {
		cli.Success(out, "API key: %s", logging.RedactAPIKey(cfg.Auth.APIKey))
	}
	if len(cfg.Agents.List) == 0 {
		cli.Success(out, "Agents: any (default %s)", cfg.Agents.DefaultAgent)
	} else {
		cli.Success(out, "Agents: %v", cfg.Agents.List)
	}
	cli.Success(out, "Session TTL: %s", cfg.Sessions.TTL)
	if cfg.Credentials.Enabled {
		cli.Success(out, "Account store: %s", cfg.Credentials.Path)
	}
	return nil
}
