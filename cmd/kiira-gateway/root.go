package main

import (
	"fmt"
	"os"

	"kiira-hq/gateway/pkg/cli"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "kiira-gateway",
	Short: "Kiira gateway - OpenAI-compatible front end for Kiira agents",
	Long: `Kiira gateway exposes the Kiira agent chat service through the OpenAI
chat completions API.

Each conversation is bound to an anonymous upstream identity and chat
group. Model names select upstream agents by fuzzy name match, replies
stream back as chat completion chunks, and generated images and videos
are rendered as Markdown links.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (environment only when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
