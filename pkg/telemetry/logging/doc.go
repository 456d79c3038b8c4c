// Package logging provides structured logging with secret redaction.
//
// The package wraps log/slog to provide:
//   - JSON, text and console output
//   - Redaction of upstream tokens, bearer credentials and sk- keys, applied
//     in the handler so slog.Default() is covered once installed
//   - Context fields (request_id, session, model, agent, task_id)
//   - A level that can be changed at runtime through SetLevel
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:         "info",
//	    Format:        "json",
//	    RedactSecrets: true,
//	})
//	slog.SetDefault(logger.Slog())
//
//	ctx = logging.WithSession(ctx, handle)
//	logger.InfoContext(ctx, "session created", "agent", agent)
package logging
