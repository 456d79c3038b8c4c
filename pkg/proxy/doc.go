// Package proxy is the OpenAI-compatible HTTP surface of the gateway.
//
// The package root holds the wire helpers shared by the handlers: request
// body parsing, API key extraction, error envelopes and Server-Sent Events
// framing. Routing and per-endpoint behavior live in the handlers
// subpackage; cross-cutting concerns (request ids, logging, auth, CORS,
// panic recovery) in middleware; the OpenAI data structures in types.
//
// # Request Flow
//
//  1. Client sends a request to /v1/chat/completions
//  2. Middleware chain runs (recovery → logging → request id → CORS → auth)
//  3. The chat handler parses the body and hands it to the gateway
//  4. The gateway answers with a completion or a stream of chunks
//  5. The handler writes JSON or SSE events back
//
// # Streaming
//
// A streamed completion is a sequence of events, ending in [DONE]:
//
//	data: {"id":"chatcmpl-…","conversation_id":"…","choices":[{"delta":{},…}]}
//	data: {"id":"chatcmpl-…","choices":[{"delta":{"content":"Hello"},…}]}
//	data: {"id":"chatcmpl-…","choices":[{"delta":{"content":"\n\n[CONVERSATION_ID:…]"},"finish_reason":"stop"}]}
//	data: [DONE]
//
// A failure after the first event is sent as an error event, since the
// status line is already out.
//
// # Error Handling
//
// All errors follow the OpenAI error format:
//
//	{
//	  "error": {
//	    "message": "model is required",
//	    "type": "invalid_request_error",
//	    "param": "model",
//	    "code": "missing_field"
//	  }
//	}
package proxy
