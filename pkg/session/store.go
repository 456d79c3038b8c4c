package session

import (
	"errors"
	"sync"
	"time"

	"kiira-hq/gateway/pkg/config"
	"kiira-hq/gateway/pkg/telemetry/metrics"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned by Save for an unknown or expired handle.
var ErrSessionNotFound = errors.New("session not found")

// Session binds a conversation handle to the upstream identity that serves
// it. The bound agent never changes for the life of the session.
type Session struct {
	Handle string

	// RoutingID is the upstream chat group id.
	RoutingID string

	// Token is the upstream guest token.
	Token string

	// DeviceID is the x-device-id the token was issued to.
	DeviceID string

	// AtAccountNo is the upstream bot account messages are addressed to.
	AtAccountNo string

	// UserName is the upstream guest user name, when known.
	UserName string

	Agent        string
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// HasIdentity reports whether the upstream identity has been established.
func (s Session) HasIdentity() bool {
	return s.RoutingID != "" && s.Token != "" && s.AtAccountNo != ""
}

// Stats is a point-in-time view of the store.
type Stats struct {
	// Total is the number of stored records, expired ones included.
	Total int

	// Active is the number of records that have not expired.
	Active int
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Store) { s.metrics = c }
}

// Store keeps sessions in memory. A session expires when it has not been
// active for longer than the TTL; expiry is applied lazily on access and
// in bulk by Sweep. All operations are serialized by one mutex.
type Store struct {
	mu       sync.Mutex
	sessions map[string]Session
	ttl      time.Duration
	now      func() time.Time
	metrics  *metrics.Collector
}

// NewStore creates a Store. A non-positive ttl uses the default of 24h.
func NewStore(ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = config.DefaultSessionTTL
	}
	s := &Store{
		sessions: make(map[string]Session),
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the inactivity limit.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

func (s *Store) expired(sess Session, now time.Time) bool {
	return now.Sub(sess.LastActiveAt) > s.ttl
}

// lookup returns the live session for handle, removing it when expired.
// Caller holds s.mu.
func (s *Store) lookup(handle string, now time.Time) (Session, bool) {
	sess, ok := s.sessions[handle]
	if !ok {
		return Session{}, false
	}
	if s.expired(sess, now) {
		delete(s.sessions, handle)
		s.metrics.RecordSessionsExpired("lazy", 1)
		s.metrics.SetSessions(len(s.sessions))
		return Session{}, false
	}
	return sess, true
}

// create stores a fresh session. Caller holds s.mu.
func (s *Store) create(agent, routingID, token string, now time.Time) Session {
	sess := Session{
		Handle:       uuid.NewString(),
		RoutingID:    routingID,
		Token:        token,
		Agent:        agent,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	s.sessions[sess.Handle] = sess
	s.metrics.RecordSessionCreated()
	s.metrics.SetSessions(len(s.sessions))
	return sess
}

// ResolveOrCreate returns the live session for handle when it is bound to
// agent, refreshing its activity time. Otherwise (no handle, unknown or
// expired handle, different agent) it creates a new session bound to
// agent with no identity and reports isNew.
func (s *Store) ResolveOrCreate(handle, agent string) (sess Session, isNew bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if handle != "" {
		if existing, ok := s.lookup(handle, now); ok && existing.Agent == agent {
			existing.LastActiveAt = now
			s.sessions[handle] = existing
			s.metrics.RecordSessionReused()
			return existing, false
		}
	}
	return s.create(agent, "", "", now), true
}

// Create stores a new session with the given identity.
func (s *Store) Create(agent, routingID, token string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create(agent, routingID, token, s.now())
}

// Get returns the live session for handle without refreshing it.
func (s *Store) Get(handle string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(handle, s.now())
}

// Save replaces the stored record for sess.Handle. The bound agent and
// creation time are kept from the stored record and the activity time is
// refreshed.
func (s *Store) Save(sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	existing, ok := s.lookup(sess.Handle, now)
	if !ok {
		return ErrSessionNotFound
	}

	sess.Agent = existing.Agent
	sess.CreatedAt = existing.CreatedAt
	sess.LastActiveAt = now
	s.sessions[sess.Handle] = sess
	return nil
}

// Touch refreshes the activity time of a live session.
func (s *Store) Touch(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if sess, ok := s.lookup(handle, now); ok {
		sess.LastActiveAt = now
		s.sessions[handle] = sess
	}
}

// Delete removes a session.
func (s *Store) Delete(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, handle)
	s.metrics.SetSessions(len(s.sessions))
}

// Sweep removes every expired session and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for handle, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, handle)
			removed++
		}
	}

	s.metrics.RecordSessionsExpired("sweep", removed)
	s.metrics.SetSessions(len(s.sessions))
	return removed
}

// Len returns the number of stored records, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Stats counts stored and live sessions.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stats := Stats{Total: len(s.sessions)}
	for _, sess := range s.sessions {
		if !s.expired(sess, now) {
			stats.Active++
		}
	}
	return stats
}
