package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for the Kiira gateway.

To load completions:

Bash:
  $ source <(kiira-gateway completion bash)
  # To load permanently:
  $ kiira-gateway completion bash > /etc/bash_completion.d/kiira-gateway

Zsh:
  $ kiira-gateway completion zsh > "${fpath[1]}/_kiira-gateway"
  $ compinit

Fish:
  $ kiira-gateway completion fish | source
  # To load permanently:
  $ kiira-gateway completion fish > ~/.config/fish/completions/kiira-gateway.fish

PowerShell:
  PS> kiira-gateway completion powershell | Out-String | Invoke-Expression
  # To load permanently, add to your PowerShell profile
`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(out)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletion(out)
		default:
			return fmt.Errorf("unsupported shell: %s", args[0])
		}
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
