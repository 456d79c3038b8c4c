package main

import (
	"fmt"
	"time"

	"kiira-hq/gateway/pkg/cli"
	"kiira-hq/gateway/pkg/credentials"
	"kiira-hq/gateway/pkg/telemetry/logging"

	"github.com/spf13/cobra"
)

var accountsFlags struct {
	limit      int
	format     string
	showTokens bool
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Inspect persisted upstream accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List guest accounts recorded by the gateway",
	Long: `List the guest identities and chat groups the gateway has established,
newest first. Requires credentials.enabled.

Tokens are redacted unless --show-tokens is given.

Examples:
  kiira-gateway accounts list --limit 20
  kiira-gateway accounts list --format csv --show-tokens > accounts.csv`,
	Args: cobra.NoArgs,
	RunE: listAccounts,
}

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsListCmd)

	accountsListCmd.Flags().IntVar(&accountsFlags.limit, "limit", 50, "maximum records (0 for all)")
	accountsListCmd.Flags().StringVar(&accountsFlags.format, "format", "text", "output format: text, json, csv")
	accountsListCmd.Flags().BoolVar(&accountsFlags.showTokens, "show-tokens", false, "print tokens unredacted")
}

func listAccounts(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(accountsFlags.format)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Credentials.Enabled {
		return cli.NewConfigError("credentials.enabled", "account persistence is disabled")
	}

	store, err := credentials.OpenStore(credentials.StoreConfig{
		Path:        cfg.Credentials.Path,
		BusyTimeout: cfg.Credentials.BusyTimeout,
	})
	if err != nil {
		return cli.NewCommandError("accounts list", fmt.Errorf("open %s: %w", cfg.Credentials.Path, err))
	}
	defer store.Close()

	records, err := store.List(cmd.Context(), accountsFlags.limit)
	if err != nil {
		return cli.NewCommandError("accounts list", err)
	}

	tbl := &cli.Table{Headers: []string{"User", "Group", "Agent", "Token", "Device", "Updated"}}
	for _, r := range records {
		token := r.Token
		if !accountsFlags.showTokens {
			token = logging.RedactAPIKey(token)
		}
		tbl.Append(r.UserName, r.GroupID, r.Agent, token, r.DeviceID, r.UpdatedAt.Format(time.RFC3339))
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), tbl)
}
