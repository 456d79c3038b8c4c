package gateway

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"kiira-hq/gateway/pkg/agents"
	"kiira-hq/gateway/pkg/convtag"
	"kiira-hq/gateway/pkg/credentials"
	"kiira-hq/gateway/pkg/kiira"
	"kiira-hq/gateway/pkg/proxy/types"
	"kiira-hq/gateway/pkg/session"
	"kiira-hq/gateway/pkg/telemetry/logging"
	"kiira-hq/gateway/pkg/telemetry/metrics"
	"kiira-hq/gateway/pkg/telemetry/tracing"
	"kiira-hq/gateway/pkg/translate"
	"kiira-hq/gateway/pkg/usage"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(g *Gateway) { g.metrics = c }
}

// WithTracer sets the tracer.
func WithTracer(t *tracing.Tracer) Option {
	return func(g *Gateway) { g.tracer = t }
}

// WithCredentialSink sets where new upstream accounts are recorded.
func WithCredentialSink(sink credentials.Sink) Option {
	return func(g *Gateway) { g.sink = sink }
}

// WithUsage sets the token usage estimator for aggregated responses.
func WithUsage(est *usage.Estimator) Option {
	return func(g *Gateway) { g.usage = est }
}

// WithAgentList restricts the accepted models to the given aliases.
func WithAgentList(list []string) Option {
	return func(g *Gateway) { g.SetAgentList(list) }
}

// WithBindConfigured creates chat groups for every configured agent when
// a new upstream identity is established.
func WithBindConfigured(enabled bool) Option {
	return func(g *Gateway) { g.bindConfigured.Store(enabled) }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// Gateway runs chat completions against the upstream provider. Each
// request goes through
//
//	RESOLVE_SESSION -> ENSURE_IDENTITY -> DISPATCH -> AGGREGATE | STREAM -> RESPOND
//
// Start covers the first three states; the returned Exchange covers the
// rest.
type Gateway struct {
	client   *kiira.Client
	sessions *session.Store
	resolver *agents.Resolver
	sink     credentials.Sink
	usage    *usage.Estimator

	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  *tracing.Tracer
	now     func() time.Time

	agentList      atomic.Pointer[[]string]
	bindConfigured atomic.Bool
}

// New creates a Gateway.
func New(client *kiira.Client, sessions *session.Store, resolver *agents.Resolver, opts ...Option) *Gateway {
	g := &Gateway{
		client:   client,
		sessions: sessions,
		resolver: resolver,
		sink:     credentials.Nop{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	g.agentList.Store(&[]string{})
	for _, opt := range opts {
		opt(g)
	}
	if g.usage == nil {
		g.usage = usage.New(usage.EncodingWords, g.logger)
	}
	g.logger = g.logger.With("component", "gateway")
	return g
}

// SetAgentList replaces the accepted model aliases. An empty list accepts
// any model.
func (g *Gateway) SetAgentList(list []string) {
	cp := append([]string(nil), list...)
	g.agentList.Store(&cp)
}

// AgentList returns the accepted model aliases.
func (g *Gateway) AgentList() []string {
	return append([]string(nil), (*g.agentList.Load())...)
}

// SetBindConfigured toggles group creation for configured agents.
func (g *Gateway) SetBindConfigured(enabled bool) {
	g.bindConfigured.Store(enabled)
}

// Resolver returns the agent resolver.
func (g *Gateway) Resolver() *agents.Resolver {
	return g.resolver
}

// Sessions returns the session store.
func (g *Gateway) Sessions() *session.Store {
	return g.sessions
}

// validate rejects caller errors before any upstream call.
func (g *Gateway) validate(req *types.ChatCompletionRequest) error {
	if err := req.Validate(); err != nil {
		field := ""
		if ve, ok := err.(*types.ValidationError); ok {
			field = ve.Field
		}
		code := types.CodeInvalidValue
		if field == "model" || field == "messages" {
			code = types.CodeMissingField
		}
		return invalidRequest(field, code, err.Error())
	}

	list := *g.agentList.Load()
	if len(list) == 0 {
		return nil
	}
	threshold := g.resolver.Threshold()
	for _, alias := range list {
		if agents.Match(req.Model, alias, threshold) {
			return nil
		}
	}
	return invalidRequest("model", types.CodeModelNotFound,
		"unknown model "+req.Model+"; see /v1/models for the available models")
}

// Complete runs a non-streaming completion.
func (g *Gateway) Complete(ctx context.Context, req *types.ChatCompletionRequest) (*types.ChatCompletionResponse, error) {
	ex, err := g.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	defer ex.Close()
	return ex.Aggregate(ctx)
}

// Start validates req, resolves its session, establishes the upstream
// identity when needed and dispatches the turn. The caller drains the
// returned Exchange with Aggregate or Next and must Close it.
func (g *Gateway) Start(ctx context.Context, req *types.ChatCompletionRequest) (ex *Exchange, err error) {
	ctx = logging.WithModel(ctx, req.Model)
	ctx, span := g.tracer.Start(ctx, "gateway.start",
		trace.WithAttributes(tracing.AttrModel.String(req.Model), tracing.AttrStream.Bool(req.Stream)),
	)
	defer func() {
		tracing.End(span, err)
		if err != nil {
			g.metrics.RecordCompletion(req.Model, mode(req.Stream), outcome(err))
		}
	}()

	if err := g.validate(req); err != nil {
		return nil, err
	}

	handle, messages := convtag.Extract(req.Messages)
	if id := strings.TrimSpace(req.ConversationID); id != "" {
		handle = id
	}

	if isLiveness(messages) {
		g.logger.Debug("liveness probe answered locally", logging.Attrs(ctx)...)
		return g.newExchange(req, "", "chatcmpl-"+uuid.NewString(), nil, nil, livenessPrompt), nil
	}

	// RESOLVE_SESSION
	sess, isNew := g.sessions.ResolveOrCreate(handle, req.Model)
	ctx = logging.WithSession(ctx, sess.Handle)
	span.SetAttributes(tracing.AttrSession.String(sess.Handle), tracing.AttrNewSess.Bool(isNew))
	if handle != "" && isNew {
		g.logger.Info("conversation not resumable, starting a new one",
			append(logging.Attrs(ctx), "requested", handle)...)
	}

	pending := sess.Handle
	rollback := func() {
		if isNew {
			g.sessions.Delete(pending)
		}
	}

	turn := turnMessages(messages, isNew)
	prompt := buildPrompt(turn)
	if prompt == "" {
		rollback()
		return nil, invalidRequest("messages", types.CodeEmptyPrompt, "message content must not be empty")
	}

	// ENSURE_IDENTITY
	if isNew || !sess.HasIdentity() {
		if sess, err = g.ensureIdentity(ctx, sess); err != nil {
			rollback()
			return nil, err
		}
	}

	// DISPATCH
	taskID, tr, err := g.dispatch(ctx, sess, prompt, imageRefs(turn))
	if err != nil {
		rollback()
		return nil, err
	}

	return g.newExchange(req, sess.Handle, "chatcmpl-"+taskID, turn, tr, ""), nil
}

// dispatch uploads the turn's images, sends the prompt and opens the
// reply stream.
func (g *Gateway) dispatch(ctx context.Context, sess session.Session, prompt string, refs []string) (taskID string, tr *translate.Translator, err error) {
	ctx, span := g.tracer.Start(ctx, "gateway.dispatch",
		trace.WithAttributes(tracing.AttrGroupID.String(sess.RoutingID)),
	)
	defer func() { tracing.End(span, err) }()

	id := kiira.Identity{DeviceID: sess.DeviceID, Token: sess.Token}

	var resources []kiira.Resource
	for _, ref := range refs {
		res, err := g.client.Upload(ctx, id, ref)
		if err != nil {
			g.logger.Warn("image upload failed, sending without it",
				append(logging.Attrs(ctx), "error", err)...)
			continue
		}
		resources = append(resources, res)
	}

	taskID, err = g.client.SendMessage(ctx, id, kiira.Message{
		GroupID:     sess.RoutingID,
		AtAccountNo: sess.AtAccountNo,
		Text:        prompt,
		Resources:   resources,
	})
	if err != nil {
		return "", nil, upstreamFailure("send message", err)
	}
	ctx = logging.WithTaskID(ctx, taskID)
	span.SetAttributes(tracing.AttrTaskID.String(taskID))

	stream, err := g.client.StreamCompletion(ctx, id, taskID)
	if err != nil {
		return "", nil, upstreamFailure("open reply stream", err)
	}

	g.logger.Info("message dispatched",
		append(logging.Attrs(ctx), "group_id", sess.RoutingID, "resources", len(resources))...)

	return taskID, translate.New(stream,
		translate.WithLogger(g.logger.With(logging.Attrs(ctx)...)),
		translate.WithMetrics(g.metrics),
	), nil
}

func mode(stream bool) string {
	if stream {
		return "stream"
	}
	return "batch"
}
