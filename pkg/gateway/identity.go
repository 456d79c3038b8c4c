package gateway

import (
	"context"
	"fmt"

	"kiira-hq/gateway/pkg/agents"
	"kiira-hq/gateway/pkg/credentials"
	"kiira-hq/gateway/pkg/kiira"
	"kiira-hq/gateway/pkg/proxy/types"
	"kiira-hq/gateway/pkg/session"
	"kiira-hq/gateway/pkg/telemetry/logging"
	"kiira-hq/gateway/pkg/telemetry/tracing"

	"go.opentelemetry.io/otel/trace"
)

// binding is the chat group a session talks through.
type binding struct {
	groupID     string
	atAccountNo string
	how         string
}

// ensureIdentity logs in a fresh guest, binds it to a chat group with the
// session's agent and saves the result into the session. Nothing is saved
// when any required step fails.
func (g *Gateway) ensureIdentity(ctx context.Context, sess session.Session) (_ session.Session, err error) {
	ctx, span := g.tracer.Start(ctx, "gateway.ensure_identity",
		trace.WithAttributes(tracing.AttrAgent.String(sess.Agent)),
	)
	defer func() { tracing.End(span, err) }()

	ctx = logging.WithAgent(ctx, sess.Agent)

	deviceID := kiira.NewDeviceID()
	token, err := g.client.LoginGuest(ctx, deviceID)
	if err != nil {
		return session.Session{}, upstreamFailure("guest login", err)
	}
	id := kiira.Identity{DeviceID: deviceID, Token: token}

	userName := ""
	if info, err := g.client.MyInfo(ctx, id); err != nil {
		g.logger.Warn("failed to read guest profile",
			append(logging.Attrs(ctx), "error", err)...)
	} else {
		userName = info.Name
	}

	b, err := g.bindGroup(ctx, id, sess.Agent)
	if err != nil {
		return session.Session{}, err
	}
	span.SetAttributes(tracing.AttrGroupID.String(b.groupID))

	if g.bindConfigured.Load() {
		g.bindConfiguredAgents(ctx, id, b.atAccountNo)
	}

	sess.Token = token
	sess.DeviceID = deviceID
	sess.UserName = userName
	sess.RoutingID = b.groupID
	sess.AtAccountNo = b.atAccountNo
	if err := g.sessions.Save(sess); err != nil {
		return session.Session{}, &Error{Kind: KindInternal, Code: types.CodeInternalError, Message: "session vanished during setup", Cause: err}
	}

	g.logger.Info("upstream identity established",
		append(logging.Attrs(ctx), "group_id", b.groupID, "user_name", userName, "match", b.how)...)

	if userName != "" {
		rec := credentials.Record{
			UserName:    userName,
			GroupID:     b.groupID,
			Token:       token,
			DeviceID:    deviceID,
			Agent:       sess.Agent,
			AtAccountNo: b.atAccountNo,
		}
		if err := g.sink.Save(ctx, rec); err != nil {
			g.logger.Warn("failed to record account", append(logging.Attrs(ctx), "error", err)...)
		}
	}
	return sess, nil
}

// bindGroup finds the chat group for agent: an existing group with a
// member named exactly agent, then the most similar member name at or
// above the threshold, then a new group with the catalog agent the
// resolver picks.
func (g *Gateway) bindGroup(ctx context.Context, id kiira.Identity, agent string) (binding, error) {
	groups, err := g.client.ChatGroups(ctx, id)
	if err != nil {
		return binding{}, upstreamFailure("list chat groups", err)
	}

	var (
		names   []string
		members []binding
	)
	for _, grp := range groups {
		for _, m := range grp.Members {
			if m.Nickname == agent {
				return binding{groupID: grp.ID, atAccountNo: m.AccountNo, how: "exact"}, nil
			}
			if m.Nickname != "" {
				names = append(names, m.Nickname)
				members = append(members, binding{groupID: grp.ID, atAccountNo: m.AccountNo, how: "fuzzy"})
			}
		}
	}

	if i, score := agents.BestBy(agent, names, g.resolver.TieBreak()); i >= 0 && score > 0 && score >= g.resolver.Threshold() {
		return members[i], nil
	}

	entry, err := g.resolver.Resolve(ctx, agent)
	if err != nil {
		return binding{}, upstreamFailure("resolve agent", err)
	}
	if entry.AccountNo == "" {
		return binding{}, &Error{
			Kind:    KindUpstream,
			Code:    types.CodeUpstreamError,
			Message: fmt.Sprintf("agent %q has no account number", entry.Label),
		}
	}

	grp, err := g.client.CreateChatGroup(ctx, id, []string{entry.AccountNo})
	if err != nil {
		return binding{}, upstreamFailure("create chat group", err)
	}
	atAccountNo := entry.AccountNo
	if len(grp.Members) > 0 && grp.Members[0].AccountNo != "" {
		atAccountNo = grp.Members[0].AccountNo
	}
	return binding{groupID: grp.ID, atAccountNo: atAccountNo, how: "created:" + entry.Label}, nil
}

// bindConfiguredAgents creates a chat group for every catalog agent that
// matches a configured alias, except the one already bound. Failures are
// logged only.
func (g *Gateway) bindConfiguredAgents(ctx context.Context, id kiira.Identity, boundAccountNo string) {
	list := g.AgentList()
	if len(list) == 0 {
		return
	}

	catalog, err := g.resolver.Catalog(ctx, nil, "")
	if err != nil {
		g.logger.Warn("failed to load catalog for configured agents",
			append(logging.Attrs(ctx), "error", err)...)
		return
	}

	threshold := g.resolver.Threshold()
	for _, entry := range catalog {
		if entry.Label == "" || entry.AccountNo == "" || entry.AccountNo == boundAccountNo {
			continue
		}
		configured := false
		for _, alias := range list {
			if agents.Match(entry.Label, alias, threshold) {
				configured = true
				break
			}
		}
		if !configured {
			continue
		}
		if _, err := g.client.CreateChatGroup(ctx, id, []string{entry.AccountNo}); err != nil {
			g.logger.Warn("failed to create group for configured agent",
				append(logging.Attrs(ctx), "label", entry.Label, "error", err)...)
		}
	}
}
