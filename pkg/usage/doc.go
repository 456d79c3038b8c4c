// Package usage estimates token usage for aggregated chat completions.
//
// The upstream provider returns no token accounting, so the gateway counts
// prompt and completion tokens itself with a tiktoken encoding, or a word
// count when the encoding is unavailable:
//
//	est := usage.New(cfg.Usage.Encoding, logger)
//	resp.Usage = est.Usage(req.Messages, text)
package usage
