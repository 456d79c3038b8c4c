package kiira

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"kiira-hq/gateway/pkg/agents"
	"kiira-hq/gateway/pkg/config"
	"kiira-hq/gateway/pkg/upstream"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Upstream request constants.
const (
	appID                 = "gen.seagen.app"
	defaultAcceptLanguage = "zh,zh-CN;q=0.9,en;q=0.8,ja;q=0.7"
	groupPageSize         = 999
	messageIDDigits       = 17
	agentType             = "agent"
	atAccountType         = "bot"
)

// Config holds the upstream endpoints.
type Config struct {
	KiiraBaseURL     string
	SeaArtAPIBaseURL string
	UploaderBaseURL  string
	UserAgent        string
}

// ConfigFrom converts the upstream configuration section.
func ConfigFrom(c config.UpstreamConfig) Config {
	return Config{
		KiiraBaseURL:     strings.TrimRight(c.KiiraBaseURL, "/"),
		SeaArtAPIBaseURL: strings.TrimRight(c.SeaArtAPIBaseURL, "/"),
		UploaderBaseURL:  strings.TrimRight(c.UploaderBaseURL, "/"),
		UserAgent:        c.UserAgent,
	}
}

// Identity is the guest identity calls are made as.
type Identity struct {
	DeviceID string
	Token    string
}

// NewDeviceID returns a fresh x-device-id.
func NewDeviceID() string {
	return uuid.NewString()
}

// Group is a chat group of the current user.
type Group struct {
	ID      string
	Members []Member
}

// Member is one participant of a chat group.
type Member struct {
	Nickname  string
	AccountNo string
}

// UserInfo is the subset of /api/v1/my the gateway uses.
type UserInfo struct {
	Name string
}

// Message is an outgoing chat message.
type Message struct {
	// ID is a 17 digit message id; generated when empty.
	ID          string
	GroupID     string
	AtAccountNo string
	Text        string
	Resources   []Resource
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithLocalFiles allows FetchMedia to read local file paths.
func WithLocalFiles(allow bool) Option {
	return func(c *Client) { c.allowLocalFiles = allow }
}

// Client calls the Kiira, SeaArt and uploader APIs through the shared
// upstream transport.
type Client struct {
	cfg             Config
	transport       *upstream.Transport
	logger          *slog.Logger
	now             func() time.Time
	allowLocalFiles bool
}

// NewClient creates a Client.
func NewClient(cfg Config, transport *upstream.Transport, opts ...Option) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = config.DefaultUpstreamUserAgent
	}
	c := &Client{
		cfg:       cfg,
		transport: transport,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "kiira")
	return c
}

// headerOptions are the per-endpoint header variations.
type headerOptions struct {
	referer        string
	accept         string
	acceptLanguage string
	secFetchSite   string
}

// headers returns the browser-like headers every upstream call carries.
func (c *Client) headers(id Identity, o headerOptions) http.Header {
	h := make(http.Header)
	h.Set("Accept", or(o.accept, "*/*"))
	h.Set("Accept-Language", or(o.acceptLanguage, defaultAcceptLanguage))
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	h.Set("Priority", "u=1, i")
	h.Set("Content-Type", "application/json")
	h.Set("Origin", c.cfg.KiiraBaseURL)
	h.Set("Referer", or(o.referer, c.cfg.KiiraBaseURL))
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", or(o.secFetchSite, "same-origin"))
	h.Set("User-Agent", c.cfg.UserAgent)
	h.Set("X-App-Id", appID)
	h.Set("X-Device-Id", id.DeviceID)
	h.Set("X-Language", "en")
	h.Set("X-Platform", "web")
	if id.Token != "" {
		h.Set("Token", id.Token)
	}
	return h
}

// call POSTs payload and returns the envelope's data field.
func (c *Client) call(ctx context.Context, op, url string, id Identity, ho headerOptions, payload any, idempotent bool) (gjson.Result, error) {
	res, err := c.transport.DoJSON(ctx, &upstream.Request{
		Operation:  op,
		Method:     http.MethodPost,
		URL:        url,
		Header:     c.headers(id, ho),
		Idempotent: idempotent,
	}, payload)
	if err != nil {
		return gjson.Result{}, err
	}

	data := res.Get("data")
	if !data.Exists() || data.Type == gjson.Null {
		return gjson.Result{}, &APIError{
			Operation: op,
			Code:      res.Get("status.code").Int(),
			Message:   res.Get("status.msg").String(),
		}
	}
	return data, nil
}

// LoginGuest obtains a guest token for deviceID.
func (c *Client) LoginGuest(ctx context.Context, deviceID string) (string, error) {
	data, err := c.call(ctx, "login_guest", c.cfg.SeaArtAPIBaseURL+"/api/v1/login-guest",
		Identity{DeviceID: deviceID},
		headerOptions{referer: c.cfg.KiiraBaseURL + "/", secFetchSite: "cross-site"},
		struct{}{}, true)
	if err != nil {
		return "", err
	}

	token := data.Get("token").String()
	if token == "" {
		return "", &MissingFieldError{Operation: "login_guest", Field: "data.token"}
	}
	return token, nil
}

// MyInfo returns the current user.
func (c *Client) MyInfo(ctx context.Context, id Identity) (UserInfo, error) {
	if id.Token == "" {
		return UserInfo{}, ErrNoToken
	}
	data, err := c.call(ctx, "my_info", c.cfg.KiiraBaseURL+"/api/v1/my", id,
		headerOptions{referer: c.cfg.KiiraBaseURL + "/chat"},
		struct{}{}, true)
	if err != nil {
		return UserInfo{}, err
	}
	return UserInfo{Name: data.Get("name").String()}, nil
}

// ChatGroups lists the chat groups of the current user.
func (c *Client) ChatGroups(ctx context.Context, id Identity) ([]Group, error) {
	if id.Token == "" {
		return nil, ErrNoToken
	}
	data, err := c.call(ctx, "chat_group_list", c.cfg.KiiraBaseURL+"/api/v1/my-chat-group-list", id,
		headerOptions{acceptLanguage: "en"},
		map[string]int{"page": 1, "page_size": groupPageSize}, true)
	if err != nil {
		return nil, err
	}

	var groups []Group
	data.Get("items").ForEach(func(_, item gjson.Result) bool {
		groups = append(groups, parseGroup(item))
		return true
	})
	return groups, nil
}

func parseGroup(item gjson.Result) Group {
	g := Group{ID: item.Get("id").String()}
	item.Get("user_list").ForEach(func(_, user gjson.Result) bool {
		g.Members = append(g.Members, Member{
			Nickname:  user.Get("nickname").String(),
			AccountNo: user.Get("account_no").String(),
		})
		return true
	})
	return g
}

// CreateChatGroup creates a chat group with the given agent accounts.
func (c *Client) CreateChatGroup(ctx context.Context, id Identity, accountNos []string) (Group, error) {
	if id.Token == "" {
		return Group{}, ErrNoToken
	}
	data, err := c.call(ctx, "create_chat_group", c.cfg.KiiraBaseURL+"/api/v1/create-chat-group", id,
		headerOptions{referer: c.cfg.KiiraBaseURL + "/search"},
		map[string][]string{"agent_account_nos": accountNos}, false)
	if err != nil {
		return Group{}, err
	}

	g := parseGroup(data)
	if g.ID == "" {
		return Group{}, &MissingFieldError{Operation: "create_chat_group", Field: "data.id"}
	}
	return g, nil
}

// AgentList fetches the agent catalog, optionally filtered.
func (c *Client) AgentList(ctx context.Context, id Identity, categoryIDs []string, keyword string) ([]agents.Entry, error) {
	if categoryIDs == nil {
		categoryIDs = []string{}
	}
	data, err := c.call(ctx, "agent_list", c.cfg.KiiraBaseURL+"/api/v1/agent-list", id,
		headerOptions{referer: c.cfg.KiiraBaseURL + "/search"},
		map[string]any{"category_ids": categoryIDs, "keyword": keyword}, true)
	if err != nil {
		return nil, err
	}

	var entries []agents.Entry
	data.Get("items").ForEach(func(_, item gjson.Result) bool {
		entries = append(entries, agents.Entry{
			ID:          item.Get("id").String(),
			Label:       item.Get("label").String(),
			AccountNo:   item.Get("account_no").String(),
			Description: item.Get("description").String(),
		})
		return true
	})
	return entries, nil
}

// SendMessage posts msg to its group and returns the exchange (task) id
// used to stream the reply.
func (c *Client) SendMessage(ctx context.Context, id Identity, msg Message) (string, error) {
	if id.Token == "" {
		return "", ErrNoToken
	}
	if msg.ID == "" {
		msg.ID = NewMessageID()
	}
	resources := msg.Resources
	if resources == nil {
		resources = []Resource{}
	}

	payload := map[string]any{
		"id":                 msg.ID,
		"at_account_no":      msg.AtAccountNo,
		"at_account_no_type": atAccountType,
		"resources":          resources,
		"group_id":           msg.GroupID,
		"message":            msg.Text,
		"agent_type":         agentType,
	}

	data, err := c.call(ctx, "send_message", c.cfg.KiiraBaseURL+"/api/v1/send-message", id,
		headerOptions{acceptLanguage: "zh"}, payload, false)
	if err != nil {
		return "", err
	}

	// data is an object, or a list whose first element holds the id.
	taskID := data.Get("task_id").String()
	if data.IsArray() {
		taskID = data.Get("0.task_id").String()
	}
	if taskID == "" {
		return "", &MissingFieldError{Operation: "send_message", Field: "data.task_id"}
	}

	c.logger.Debug("message sent",
		"group_id", msg.GroupID,
		"task_id", taskID,
		"resources", len(resources),
	)
	return taskID, nil
}

// StreamCompletion opens the reply stream of an exchange.
func (c *Client) StreamCompletion(ctx context.Context, id Identity, taskID string) (*upstream.LineStream, error) {
	if id.Token == "" {
		return nil, ErrNoToken
	}
	body, err := jsonBody(map[string]string{"message_id": taskID})
	if err != nil {
		return nil, err
	}
	return c.transport.Stream(ctx, &upstream.Request{
		Operation: "stream",
		Method:    http.MethodPost,
		URL:       c.cfg.KiiraBaseURL + "/api/v1/stream/chat/completions",
		Header: c.headers(id, headerOptions{
			accept:         "text/event-stream",
			acceptLanguage: "zh",
		}),
		Body: body,
	})
}

// NewMessageID returns a 17 digit decimal message id.
func NewMessageID() string {
	u := uuid.New()
	digits := new(big.Int).SetBytes(u[:]).String()
	if len(digits) < messageIDDigits {
		digits = strings.Repeat("1", messageIDDigits-len(digits)) + digits
	}
	return digits[:messageIDDigits]
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func jsonBody(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return body, nil
}
