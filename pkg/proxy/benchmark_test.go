package proxy

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"kiira-hq/gateway/pkg/proxy/types"
)

func BenchmarkParseChatCompletionRequest(b *testing.B) {
	reqBody := types.ChatCompletionRequest{
		Model: "Nano Banana Pro",
		Messages: []types.Message{
			{Role: types.RoleSystem, Content: types.TextContent("You are a helpful assistant")},
			{Role: types.RoleUser, Content: types.TextContent("Draw a cat")},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
		if _, err := ParseChatCompletionRequest(req); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkWriteSSEChunk(b *testing.B) {
	chunk := &types.ChatCompletionChunk{
		ID:      "chatcmpl-123",
		Object:  types.ObjectChatCompletionChunk,
		Created: 1234567890,
		Model:   "Nano Banana Pro",
		Choices: []types.StreamChoice{{Delta: types.Delta{Content: "Hello"}}},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		if err := WriteSSEChunk(w, chunk); err != nil {
			b.Fatal(err)
		}
	}
}
