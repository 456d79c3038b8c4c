// Package handlers provides the HTTP endpoint handlers of the gateway.
//
//   - ChatHandler: POST /v1/chat/completions, JSON or Server-Sent Events
//   - ModelsHandler: GET /v1/models, from the agent catalog
//   - HealthHandler: GET /health, always {"status":"healthy"}
//   - ReadyHandler: GET /ready, 503 while the agent catalog is unreachable
//   - RootHandler: GET /, service info
//
// Handlers stay thin: they decode, call the gateway and encode. Session
// affinity, agent binding and stream translation all happen in the
// gateway package.
package handlers
