package gateway

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"kiira-hq/gateway/pkg/convtag"
	"kiira-hq/gateway/pkg/proxy/types"
	"kiira-hq/gateway/pkg/translate"
)

// Exchange is one dispatched turn waiting to be drained, either all at
// once with Aggregate or chunk by chunk with Next. It must be closed.
type Exchange struct {
	g        *Gateway
	id       string
	model    string
	handle   string
	created  int64
	stream   bool
	messages []types.Message
	tr       *translate.Translator
	started  time.Time

	// canned is the fixed reply of a liveness probe; tr is nil then.
	canned string

	metaSent bool
	done     bool
	media    []translate.Media

	recordOnce sync.Once
	closeOnce  sync.Once
	endStream  func()
}

func (g *Gateway) newExchange(req *types.ChatCompletionRequest, handle, id string, messages []types.Message, tr *translate.Translator, canned string) *Exchange {
	now := g.now()
	ex := &Exchange{
		g:         g,
		id:        id,
		model:     req.Model,
		handle:    handle,
		created:   now.Unix(),
		stream:    req.Stream,
		messages:  messages,
		tr:        tr,
		started:   now,
		canned:    canned,
		endStream: func() {},
	}
	// A liveness reply has no conversation to announce.
	ex.metaSent = canned != ""
	if req.Stream {
		ex.endStream = g.metrics.StreamStarted()
	}
	return ex
}

// ConversationID returns the session handle, empty for a liveness reply.
func (e *Exchange) ConversationID() string {
	return e.handle
}

// ID returns the completion id.
func (e *Exchange) ID() string {
	return e.id
}

// Aggregate drains the exchange into a single completion. The content is
// the concatenated text, then the media markdown, then the conversation
// tag.
func (e *Exchange) Aggregate(ctx context.Context) (resp *types.ChatCompletionResponse, err error) {
	defer func() {
		e.done = true
		e.record(err)
	}()

	if e.tr == nil {
		return e.response(e.canned, nil, nil), nil
	}

	res, err := translate.Aggregate(ctx, e.tr)
	if err != nil {
		return nil, upstreamFailure("read reply stream", err)
	}
	if res.Empty() {
		return nil, &Error{
			Kind:    KindUpstream,
			Code:    types.CodeEmptyResponse,
			Message: "upstream returned an empty response",
		}
	}

	content := res.Text + translate.MediaMarkdown(res.Media)
	u := e.g.usage.Usage(e.messages, content)
	e.g.sessions.Touch(e.handle)

	return e.response(convtag.InjectText(content, e.handle), res.ResourcesJSON(), u), nil
}

func (e *Exchange) response(content string, resources []byte, u *types.Usage) *types.ChatCompletionResponse {
	return &types.ChatCompletionResponse{
		ID:      e.id,
		Object:  types.ObjectChatCompletion,
		Created: e.created,
		Model:   e.model,
		Choices: []types.Choice{{
			Index: 0,
			Message: types.ResponseMessage{
				Role:        types.RoleAssistant,
				Content:     content,
				SAResources: resources,
			},
			FinishReason: types.FinishReasonStop,
		}},
		Usage:          u,
		ConversationID: e.handle,
	}
}

// Next returns the next streaming chunk: a first chunk announcing the
// conversation id, one chunk per text increment, and a final chunk with
// the media markdown and conversation tag. After the final chunk Next
// returns io.EOF. A failed upstream read is returned as an error and ends
// the exchange.
func (e *Exchange) Next(ctx context.Context) (*types.ChatCompletionChunk, error) {
	if e.done {
		return nil, io.EOF
	}

	if !e.metaSent {
		e.metaSent = true
		c := e.chunk(types.Delta{}, nil)
		c.ConversationID = e.handle
		return c, nil
	}

	if e.tr == nil {
		return e.nextCanned(), nil
	}

	for {
		c, err := e.tr.Next(ctx)
		if errors.Is(err, io.EOF) {
			e.done = true
			e.record(nil)
			return nil, io.EOF
		}
		if err != nil {
			e.done = true
			err = upstreamFailure("read reply stream", err)
			e.record(err)
			return nil, err
		}

		if c.Final {
			e.done = true
			e.g.sessions.Touch(e.handle)
			e.record(nil)
			suffix := strings.TrimRight(translate.MediaMarkdown(e.media), " \t\r\n")
			stop := types.FinishReasonStop
			return e.chunk(types.Delta{Content: convtag.InjectText(suffix, e.handle)}, &stop), nil
		}

		e.media = append(e.media, c.Media...)
		if c.Text == "" {
			continue
		}
		return e.chunk(types.Delta{Content: c.Text}, nil), nil
	}
}

// nextCanned streams a liveness reply as a content chunk and a final chunk.
func (e *Exchange) nextCanned() *types.ChatCompletionChunk {
	if e.canned != "" {
		text := e.canned
		e.canned = ""
		return e.chunk(types.Delta{Role: types.RoleAssistant, Content: text}, nil)
	}
	e.done = true
	e.record(nil)
	stop := types.FinishReasonStop
	return e.chunk(types.Delta{}, &stop)
}

func (e *Exchange) chunk(delta types.Delta, finish *string) *types.ChatCompletionChunk {
	return &types.ChatCompletionChunk{
		ID:      e.id,
		Object:  types.ObjectChatCompletionChunk,
		Created: e.created,
		Model:   e.model,
		Choices: []types.StreamChoice{{
			Index:        0,
			Delta:        delta,
			FinishReason: finish,
		}},
	}
}

func (e *Exchange) record(err error) {
	e.recordOnce.Do(func() {
		e.g.metrics.RecordCompletion(e.model, mode(e.stream), outcome(err))
		if err != nil && !errors.Is(err, context.Canceled) {
			e.g.logger.Warn("completion failed",
				"model", e.model,
				"session", e.handle,
				"id", e.id,
				"error", err,
			)
			return
		}
		e.g.logger.Debug("completion finished",
			"model", e.model,
			"session", e.handle,
			"id", e.id,
			"duration", e.g.now().Sub(e.started),
		)
	})
}

// Close releases the upstream stream. It is safe to call more than once
// and stops the upstream read when the caller goes away mid-stream.
func (e *Exchange) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.endStream()
		if e.tr != nil {
			err = e.tr.Close()
		}
		if !e.done {
			e.record(context.Canceled)
		}
	})
	return err
}
