package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"

	"kiira-hq/gateway/pkg/proxy/types"
)

// WriteJSONResponse writes a JSON response to the HTTP response writer.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}

	return nil
}

// WriteErrorResponse writes an OpenAI-compatible error response.
// It extracts the appropriate HTTP status code from the error type.
func WriteErrorResponse(w http.ResponseWriter, errResp *types.ErrorResponse) error {
	return WriteJSONResponse(w, errResp.Error.HTTPStatusCode(), errResp)
}

// WriteSSEChunk writes a single chunk in Server-Sent Events format:
//
//	data: {"id":"chatcmpl-123","object":"chat.completion.chunk",...}
//
// followed by a blank line, and flushes it.
func WriteSSEChunk(w http.ResponseWriter, chunk *types.ChatCompletionChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE chunk: %w", err)
	}
	return writeSSEData(w, data)
}

// WriteSSEDone writes the final "[DONE]" marker for SSE streams.
func WriteSSEDone(w http.ResponseWriter) error {
	return writeSSEData(w, []byte("[DONE]"))
}

// WriteSSEError writes an error event mid-stream. The status line has
// already gone out, so the error travels in the event body.
func WriteSSEError(w http.ResponseWriter, errResp *types.ErrorResponse) error {
	data, err := json.Marshal(errResp)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE error: %w", err)
	}
	return writeSSEData(w, data)
}

func writeSSEData(w http.ResponseWriter, data []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write SSE event: %w", err)
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

// SetSSEHeaders sets the headers for a Server-Sent Events response.
// X-Accel-Buffering stops nginx from holding back chunks.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
