// Package kiiratest provides an in-memory Kiira provider for tests.
package kiiratest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"kiira-hq/gateway/pkg/agents"
)

// SentMessage is a send-message call received by the server.
type SentMessage struct {
	Token       string
	GroupID     string
	AtAccountNo string
	Message     string
	MessageID   string
	Resources   []json.RawMessage
	TaskID      string
}

// Group is a chat group held by the server.
type Group struct {
	ID      string
	Members []Member
}

// Member is one participant of a Group.
type Member struct {
	Nickname  string
	AccountNo string
}

// Server is a fake provider. Exported fields must be set before the
// first request.
type Server struct {
	*httptest.Server

	// Agents is the catalog served by agent-list.
	Agents []agents.Entry

	// StreamLines returns the raw lines streamed for a message. The
	// default echoes the message in two deltas followed by [DONE].
	StreamLines func(msg SentMessage) []string

	mu       sync.Mutex
	seq      int
	groups   map[string][]Group
	names    map[string]string
	revoked  map[string]bool
	sent     []SentMessage
	uploads  map[string][]byte
	logins   int
	failSend int
	images   map[string][]byte
}

// NewServer starts a fake provider. Close it when done.
func NewServer() *Server {
	s := &Server{
		groups:  make(map[string][]Group),
		names:   make(map[string]string),
		revoked: make(map[string]bool),
		uploads: make(map[string][]byte),
		images:  make(map[string][]byte),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/login-guest", s.loginGuest)
	mux.HandleFunc("POST /api/v1/my", s.auth(s.my))
	mux.HandleFunc("POST /api/v1/my-chat-group-list", s.auth(s.groupList))
	mux.HandleFunc("POST /api/v1/create-chat-group", s.auth(s.createGroup))
	mux.HandleFunc("POST /api/v1/agent-list", s.auth(s.agentList))
	mux.HandleFunc("POST /api/v1/send-message", s.auth(s.sendMessage))
	mux.HandleFunc("POST /api/v1/stream/chat/completions", s.auth(s.stream))
	mux.HandleFunc("POST /api/upload/pre-sign", s.auth(s.preSign))
	mux.HandleFunc("PUT /signed/{id}", s.put)
	mux.HandleFunc("POST /api/upload/complete", s.auth(s.complete))
	mux.HandleFunc("GET /images/{name}", s.image)
	s.Server = httptest.NewServer(mux)
	return s
}

// AddImage serves data at /images/{name} with contentType.
func (s *Server) AddImage(name, contentType string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[name] = append([]byte(contentType+"\n"), data...)
	return s.URL + "/images/" + name
}

// AddGroup gives token an existing chat group.
func (s *Server) AddGroup(token string, g Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[token] = append(s.groups[token], g)
}

// Revoke makes the server reject token with 401.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[token] = true
}

// FailNextSends makes the next n send-message calls answer 500.
func (s *Server) FailNextSends(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSend = n
}

// Sent returns the messages received so far.
func (s *Server) Sent() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SentMessage(nil), s.sent...)
}

// Logins returns the number of guest logins served.
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// Groups returns the chat groups of token.
func (s *Server) Groups(token string) []Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Group(nil), s.groups[token]...)
}

// Upload returns the bytes PUT for an upload id.
func (s *Server) Upload(id string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads[id]
}

func (s *Server) next(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *Server) auth(h func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Token")
		s.mu.Lock()
		revoked := s.revoked[token]
		s.mu.Unlock()
		if token == "" || revoked {
			http.Error(w, `{"status":{"code":401,"msg":"unauthorized"}}`, http.StatusUnauthorized)
			return
		}
		h(w, r, token)
	}
}

func ok(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": map[string]any{"code": 10000, "msg": "success"},
		"data":   data,
	})
}

func decode(r *http.Request, v any) {
	_ = json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) loginGuest(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Device-Id") == "" {
		http.Error(w, "missing device id", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.logins++
	token := s.next("token")
	s.names[token] = s.next("guest")
	s.mu.Unlock()
	ok(w, map[string]string{"token": token})
}

func (s *Server) my(w http.ResponseWriter, _ *http.Request, token string) {
	s.mu.Lock()
	name := s.names[token]
	s.mu.Unlock()
	ok(w, map[string]string{"name": name})
}

func groupJSON(g Group) map[string]any {
	users := make([]map[string]string, 0, len(g.Members))
	for _, m := range g.Members {
		users = append(users, map[string]string{"nickname": m.Nickname, "account_no": m.AccountNo})
	}
	return map[string]any{"id": g.ID, "user_list": users}
}

func (s *Server) groupList(w http.ResponseWriter, _ *http.Request, token string) {
	s.mu.Lock()
	items := make([]map[string]any, 0, len(s.groups[token]))
	for _, g := range s.groups[token] {
		items = append(items, groupJSON(g))
	}
	s.mu.Unlock()
	ok(w, map[string]any{"items": items})
}

func (s *Server) createGroup(w http.ResponseWriter, r *http.Request, token string) {
	var req struct {
		AgentAccountNos []string `json:"agent_account_nos"`
	}
	decode(r, &req)

	s.mu.Lock()
	g := Group{ID: s.next("group")}
	for _, acc := range req.AgentAccountNos {
		nickname := acc
		for _, a := range s.Agents {
			if a.AccountNo == acc {
				nickname = a.Label
			}
		}
		g.Members = append(g.Members, Member{Nickname: nickname, AccountNo: acc})
	}
	s.groups[token] = append(s.groups[token], g)
	s.mu.Unlock()
	ok(w, groupJSON(g))
}

func (s *Server) agentList(w http.ResponseWriter, r *http.Request, _ string) {
	var req struct {
		Keyword string `json:"keyword"`
	}
	decode(r, &req)

	s.mu.Lock()
	items := make([]agents.Entry, 0, len(s.Agents))
	for _, a := range s.Agents {
		if req.Keyword == "" || strings.Contains(strings.ToLower(a.Label), strings.ToLower(req.Keyword)) {
			items = append(items, a)
		}
	}
	s.mu.Unlock()
	ok(w, map[string]any{"items": items})
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request, token string) {
	var req struct {
		ID          string            `json:"id"`
		AtAccountNo string            `json:"at_account_no"`
		GroupID     string            `json:"group_id"`
		Message     string            `json:"message"`
		Resources   []json.RawMessage `json:"resources"`
	}
	decode(r, &req)

	s.mu.Lock()
	if s.failSend > 0 {
		s.failSend--
		s.mu.Unlock()
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
		return
	}
	msg := SentMessage{
		Token:       token,
		GroupID:     req.GroupID,
		AtAccountNo: req.AtAccountNo,
		Message:     req.Message,
		MessageID:   req.ID,
		Resources:   req.Resources,
		TaskID:      s.next("task"),
	}
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	ok(w, []map[string]string{{"task_id": msg.TaskID}})
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, _ string) {
	var req struct {
		MessageID string `json:"message_id"`
	}
	decode(r, &req)

	var msg SentMessage
	s.mu.Lock()
	for _, m := range s.sent {
		if m.TaskID == req.MessageID {
			msg = m
		}
	}
	lines := s.StreamLines
	s.mu.Unlock()
	if lines == nil {
		lines = EchoLines
	}

	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for _, line := range lines(msg) {
		_, _ = io.WriteString(w, line+"\n")
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// EchoLines streams "echo: <message>" in two deltas.
func EchoLines(msg SentMessage) []string {
	return []string{
		DeltaLine("echo: "),
		"",
		DeltaLine(msg.Message),
		"",
		"data: [DONE]",
	}
}

// DeltaLine renders one stream line carrying a content delta.
func DeltaLine(text string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"delta": map[string]string{"content": text}}},
	})
	return "data: " + string(b)
}

func (s *Server) preSign(w http.ResponseWriter, r *http.Request, _ string) {
	var req struct {
		ContentType string `json:"content_type"`
		FileName    string `json:"file_name"`
	}
	decode(r, &req)

	s.mu.Lock()
	id := s.next("upload")
	s.mu.Unlock()
	ok(w, map[string]any{
		"id": id,
		"pre_signs": []map[string]any{{
			"url":     s.URL + "/signed/" + id,
			"headers": map[string]string{"X-Upload-Name": req.FileName},
		}},
	})
}

func (s *Server) put(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Upload-Name") == "" {
		http.Error(w, "missing signed header", http.StatusForbidden)
		return
	}
	data, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.uploads[r.PathValue("id")] = data
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) complete(w http.ResponseWriter, r *http.Request, _ string) {
	var req struct {
		ID string `json:"id"`
	}
	decode(r, &req)

	s.mu.Lock()
	_, found := s.uploads[req.ID]
	s.mu.Unlock()
	if !found {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":{"code":40004,"msg":"upload not found"}}`)
		return
	}
	ok(w, map[string]string{
		"url":  s.URL + "/cdn/" + req.ID,
		"path": "uploads/" + req.ID,
	})
}

func (s *Server) image(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	stored, found := s.images[r.PathValue("name")]
	s.mu.Unlock()
	if !found {
		http.NotFound(w, r)
		return
	}
	contentType, data, _ := strings.Cut(string(stored), "\n")
	w.Header().Set("Content-Type", contentType)
	_, _ = io.WriteString(w, data)
}
