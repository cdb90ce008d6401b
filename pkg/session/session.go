// Package session keeps one conversation history per browser session.
//
// Sessions live in memory only. A session is created empty on first access
// and torn down when it is ended explicitly or sits idle past the TTL.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatterbox/pkg/conversation"
	"github.com/papercomputeco/chatterbox/pkg/llm"
)

// Session owns the history of one user session.
type Session struct {
	ID      string
	Created time.Time

	mu       sync.Mutex // guards store and lastSeen
	store    *conversation.Store
	lastSeen time.Time

	busy atomic.Bool
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:       id,
		Created:  now,
		store:    conversation.NewStore(),
		lastSeen: now,
	}
}

// Append adds a turn to the session history.
func (s *Session) Append(turn llm.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Append(turn)
}

// View returns the session history. The returned slice is never written to
// by later appends.
func (s *Session) View() []llm.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.View()
}

// Head returns the chain hash of the latest turn.
func (s *Session) Head() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Head()
}

// Len returns the number of stored turns.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Len()
}

// Acquire claims the session for one exchange. It returns false while another
// exchange is in flight.
func (s *Session) Acquire() bool {
	return s.busy.CompareAndSwap(false, true)
}

// Release ends the exchange claimed by Acquire.
func (s *Session) Release() {
	s.busy.Store(false)
}

// Busy reports whether an exchange is in flight.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Manager is the registry of live sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewManager creates a registry whose sessions expire after ttl without
// access. A zero ttl disables expiry.
func NewManager(ttl time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
}

// Get returns the live session with id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)

	s, ok := m.sessions[id]
	if ok {
		s.touch(now)
	}
	return s, ok
}

// Create starts a new, empty session.
func (m *Manager) Create() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)

	s := newSession(uuid.NewString(), now)
	m.sessions[s.ID] = s

	m.logger.Debug("session created", zap.String("session", s.ID))
	return s
}

// GetOrCreate returns the session with id, or a new session when id is empty,
// unknown or expired. created reports which.
func (m *Manager) GetOrCreate(id string) (s *Session, created bool) {
	if id != "" {
		if s, ok := m.Get(id); ok {
			return s, false
		}
	}
	return m.Create(), true
}

// End tears a session down. It reports whether the session existed.
func (m *Manager) End(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)

	m.logger.Debug("session ended", zap.String("session", id))
	return true
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// sweep drops idle sessions. A session with an exchange in flight is kept.
// Callers hold m.mu.
func (m *Manager) sweep(now time.Time) {
	if m.ttl <= 0 {
		return
	}
	for id, s := range m.sessions {
		if s.Busy() || now.Sub(s.idleSince()) < m.ttl {
			continue
		}
		delete(m.sessions, id)
		m.logger.Debug("session expired", zap.String("session", id))
	}
}
