package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kiira-hq/gateway/pkg/proxy/types"
)

func TestWriteErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		errResp    *types.ErrorResponse
		wantStatus int
	}{
		{"invalid request", types.NewInvalidRequestError("model is required", "model", types.CodeMissingField), http.StatusBadRequest},
		{"authentication", types.NewAuthenticationError("Invalid API Key"), http.StatusUnauthorized},
		{"not found", types.NewNotFoundError("agent not found", types.CodeAgentNotFound), http.StatusNotFound},
		{"bad gateway", types.NewBadGatewayError("send failed", types.CodeUpstreamError), http.StatusBadGateway},
		{"timeout", types.NewGatewayTimeoutError("stream timed out"), http.StatusGatewayTimeout},
		{"server", types.NewServerError("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			if err := WriteErrorResponse(w, tt.errResp); err != nil {
				t.Fatal(err)
			}
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var got types.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatal(err)
			}
			if got.Error.Message != tt.errResp.Error.Message || got.Error.Type != tt.errResp.Error.Type {
				t.Errorf("body = %+v", got)
			}
		})
	}
}

func TestWriteSSE(t *testing.T) {
	w := httptest.NewRecorder()
	SetSSEHeaders(w)

	stop := types.FinishReasonStop
	chunk := &types.ChatCompletionChunk{
		ID:             "chatcmpl-1",
		Object:         types.ObjectChatCompletionChunk,
		Model:          "m",
		ConversationID: "abc",
		Choices:        []types.StreamChoice{{Delta: types.Delta{Content: "hi"}, FinishReason: &stop}},
	}
	if err := WriteSSEChunk(w, chunk); err != nil {
		t.Fatal(err)
	}
	if err := WriteSSEError(w, types.NewStreamError("stream broke")); err != nil {
		t.Fatal(err)
	}
	if err := WriteSSEDone(w); err != nil {
		t.Fatal(err)
	}

	for header, want := range map[string]string{
		"Content-Type":      "text/event-stream",
		"Cache-Control":     "no-cache",
		"X-Accel-Buffering": "no",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if !w.Flushed {
		t.Error("events were not flushed")
	}

	events := strings.Split(strings.TrimSuffix(w.Body.String(), "\n\n"), "\n\n")
	if len(events) != 3 {
		t.Fatalf("got %d events: %q", len(events), w.Body.String())
	}

	var decoded types.ChatCompletionChunk
	if err := json.Unmarshal([]byte(strings.TrimPrefix(events[0], "data: ")), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.ConversationID != "abc" || decoded.Choices[0].Delta.Content != "hi" {
		t.Errorf("chunk = %+v", decoded)
	}
	if !strings.Contains(events[1], `"type":"server_error"`) || !strings.Contains(events[1], "stream broke") {
		t.Errorf("error event = %q", events[1])
	}
	if events[2] != "data: [DONE]" {
		t.Errorf("last event = %q", events[2])
	}
}

func TestHandleError(t *testing.T) {
	if got := HandleError(context.Canceled).Error.Type; got != types.ErrorTypeServerError {
		t.Errorf("canceled type = %q", got)
	}
	if got := HandleError(errors.New("secret")).Error.Message; strings.Contains(got, "secret") {
		t.Errorf("unclassified error leaked: %q", got)
	}
	reqErr := &RequestError{Message: "bad", Code: types.CodeInvalidJSON, Param: "body"}
	if got := HandleError(reqErr); got.Error.Param != "body" || got.Error.Code != types.CodeInvalidJSON {
		t.Errorf("request error = %+v", got.Error)
	}
}
