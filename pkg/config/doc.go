// Package config provides configuration management for the Kiira gateway.
//
// Configuration comes from an optional YAML file, a .env file and
// environment variables, in that order of increasing precedence:
//
//  1. Default values (defined in defaults.go)
//  2. Values from the YAML file, when one is given
//  3. Variables from .env (never overriding the real environment)
//  4. Environment variable overrides
//  5. Validation (fails fast if invalid)
//
// # Environment Variable Overrides
//
// Variables follow the naming convention KIIRA_SECTION_FIELD, for example:
//
//   - KIIRA_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - KIIRA_AGENTS_SIMILARITY_THRESHOLD overrides agents.similarity_threshold
//   - KIIRA_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// The short names used by earlier deployments are also accepted: PORT,
// API_KEY, BASE_URL_KIIRA, BASE_URL_SEAART_API, BASE_URL_SEAART_UPLOADER,
// DEFAULT_AGENT_NAME and AGENT_LIST (a JSON array or a comma list).
//
// # Reloading
//
// Watcher observes the configuration file and calls ReloadConfig after each
// burst of writes. Components that support live changes (agent list,
// similarity threshold, log level) register with Subscribe.
//
// # Example Configuration
//
//	server:
//	  listen_address: "0.0.0.0:8999"
//
//	auth:
//	  api_key: "sk-change-me"
//
//	agents:
//	  default_agent: "Nano Banana Pro🔥"
//	  list: ["Nano Banana Pro🔥", "Sora 2"]
//	  similarity_threshold: 0.7
//
//	sessions:
//	  ttl: 24h
//	  sweep_schedule: "@every 1h"
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
package config
