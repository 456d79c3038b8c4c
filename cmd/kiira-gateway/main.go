// Kiira gateway serves the OpenAI chat completions API on top of the Kiira
// agent chat service.
//
// It accepts OpenAI-style requests, binds each conversation to an
// anonymous upstream identity and chat group, and translates the upstream
// stream back into chat completion chunks.
//
// Usage:
//
//	# Start with defaults and environment variables
//	kiira-gateway run
//
//	# Start with a configuration file (reloaded on change)
//	kiira-gateway run --config /etc/kiira/gateway.yaml
//
//	# Check a configuration file
//	kiira-gateway validate --config gateway.yaml
//
//	# Inspect the upstream agent catalog
//	kiira-gateway agents list
//	kiira-gateway agents resolve "nano banana"
//
//	# List persisted upstream accounts
//	kiira-gateway accounts list --format csv
package main

import (
	_ "go.uber.org/automaxprocs"
)

func main() {
	Execute()
}
