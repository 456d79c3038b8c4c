package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"kiira-hq/gateway/pkg/gateway"
	"kiira-hq/gateway/pkg/proxy"
	"kiira-hq/gateway/pkg/proxy/types"
	"kiira-hq/gateway/pkg/telemetry/logging"
)

// ChatHandler serves POST /v1/chat/completions.
type ChatHandler struct {
	gateway *gateway.Gateway
	logger  *slog.Logger
}

// NewChatHandler creates a chat handler backed by gw.
func NewChatHandler(gw *gateway.Gateway, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{gateway: gw, logger: logger}
}

// ServeHTTP implements http.Handler.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := proxy.ParseChatCompletionRequest(r)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	ctx = logging.WithModel(ctx, req.Model)
	if req.ConversationID != "" {
		ctx = logging.WithSession(ctx, req.ConversationID)
	}

	h.logger.InfoContext(ctx, "processing chat completion request",
		append(logging.Attrs(ctx),
			"messages", len(req.Messages),
			"stream", req.Stream,
		)...)

	if req.Stream {
		h.stream(ctx, w, req)
		return
	}

	resp, err := h.gateway.Complete(ctx, req)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	if err := proxy.WriteJSONResponse(w, http.StatusOK, resp); err != nil {
		h.logger.WarnContext(ctx, "failed to write response", append(logging.Attrs(ctx), "error", err)...)
	}
}

// stream writes the exchange as Server-Sent Events. Failures before the
// first event get a normal JSON error response; later ones an error event.
func (h *ChatHandler) stream(ctx context.Context, w http.ResponseWriter, req *types.ChatCompletionRequest) {
	ex, err := h.gateway.Start(ctx, req)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	defer ex.Close()

	if id := ex.ConversationID(); id != "" {
		ctx = logging.WithSession(ctx, id)
	}

	proxy.SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	chunks := 0
	for {
		chunk, err := ex.Next(ctx)
		if errors.Is(err, io.EOF) {
			if err := proxy.WriteSSEDone(w); err != nil {
				h.logger.DebugContext(ctx, "client gone before [DONE]", logging.Attrs(ctx)...)
			}
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				h.logger.InfoContext(ctx, "client disconnected during streaming",
					append(logging.Attrs(ctx), "chunks_sent", chunks)...)
				return
			}
			errResp := proxy.HandleError(err)
			streamErr := types.NewStreamError(errResp.Error.Message)
			streamErr.Error.Code = errResp.Error.Code
			if werr := proxy.WriteSSEError(w, streamErr); werr != nil {
				h.logger.DebugContext(ctx, "failed to write SSE error", append(logging.Attrs(ctx), "error", werr)...)
			}
			return
		}

		if err := proxy.WriteSSEChunk(w, chunk); err != nil {
			h.logger.InfoContext(ctx, "client disconnected during streaming",
				append(logging.Attrs(ctx), "chunks_sent", chunks, "error", err)...)
			return
		}
		chunks++
	}
}

func (h *ChatHandler) fail(ctx context.Context, w http.ResponseWriter, err error) {
	errResp := proxy.HandleError(err)
	status := errResp.Error.HTTPStatusCode()

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, "chat completion failed",
		append(logging.Attrs(ctx), "status", status, "error", err)...)

	if werr := proxy.WriteErrorResponse(w, errResp); werr != nil {
		h.logger.DebugContext(ctx, "failed to write error response", append(logging.Attrs(ctx), "error", werr)...)
	}
}
