package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"kiira-hq/gateway/pkg/agents"
	"kiira-hq/gateway/pkg/cli"

	"github.com/spf13/cobra"
)

var agentsFlags struct {
	keyword    string
	categories []string
	format     string
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Inspect the upstream agent catalog",
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List upstream agents",
	Long: `Fetch the agent catalog as a fresh guest and print it.

Examples:
  kiira-gateway agents list
  kiira-gateway agents list --keyword banana --format json`,
	Args: cobra.NoArgs,
	RunE: listAgents,
}

var agentsResolveCmd = &cobra.Command{
	Use:   "resolve <model>",
	Short: "Show which agent a model name selects",
	Long: `Resolve a model name against the catalog with the configured fuzzy
threshold, the same way a chat completion request would.

Examples:
  kiira-gateway agents resolve "nano banana pro"`,
	Args: cobra.ExactArgs(1),
	RunE: resolveAgent,
}

func init() {
	rootCmd.AddCommand(agentsCmd)
	agentsCmd.AddCommand(agentsListCmd, agentsResolveCmd)

	agentsCmd.PersistentFlags().StringVar(&agentsFlags.format, "format", "text", "output format: text, json, csv")
	agentsListCmd.Flags().StringVar(&agentsFlags.keyword, "keyword", "", "filter by keyword")
	agentsListCmd.Flags().StringSliceVar(&agentsFlags.categories, "category", nil, "filter by category id")
}

func quietLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func listAgents(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(agentsFlags.format)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	up := newUpstreamStack(cfg, quietLogger(), nil, nil)
	defer up.Close()

	entries, err := up.resolver.Catalog(cmd.Context(), agentsFlags.categories, agentsFlags.keyword)
	if err != nil {
		return cli.NewCommandError("agents list", err)
	}

	tbl := &cli.Table{Headers: []string{"ID", "Label", "Account", "Description"}}
	for _, e := range entries {
		tbl.Append(e.ID, e.Label, e.AccountNo, oneLine(e.Description))
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), tbl)
}

func resolveAgent(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(agentsFlags.format)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	up := newUpstreamStack(cfg, quietLogger(), nil, nil)
	defer up.Close()

	alias := args[0]
	entry, err := up.resolver.Resolve(cmd.Context(), alias)
	var nf *agents.NotFoundError
	if errors.As(err, &nf) {
		msg := fmt.Sprintf("no agent matches %q (threshold %.2f)", alias, nf.Threshold)
		if nf.Closest != "" {
			msg += fmt.Sprintf("; closest is %q at %.2f", nf.Closest, nf.Score)
		}
		return cli.NewCommandError("agents resolve", errors.New(msg))
	}
	if err != nil {
		return cli.NewCommandError("agents resolve", err)
	}

	score := agents.Similarity(alias, entry.Label)
	tbl := &cli.Table{Headers: []string{"Model", "Agent", "Account", "Score"}}
	tbl.Append(alias, entry.Label, entry.AccountNo, fmt.Sprintf("%.2f", score))
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), tbl)
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 60 {
		return string(r[:57]) + "..."
	}
	return s
}
