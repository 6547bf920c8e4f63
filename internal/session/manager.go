// Package session owns the chat sessions held by one API process.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lever-lab/backend/internal/chat"
	"github.com/lever-lab/backend/internal/metrics"
	"github.com/lever-lab/backend/pkg/logger"
)

var ErrNotFound = errors.New("session not found")

type Session struct {
	ID        string
	UserEmail string
	CreatedAt time.Time
	History   *chat.History

	// turnMu serialises the turns of this session.
	turnMu sync.Mutex

	mu           sync.Mutex
	lastActivity time.Time
	messageCount int
}

// Lock serialises a chat turn; callers must Unlock when the turn is done.
func (s *Session) Lock()   { s.turnMu.Lock() }
func (s *Session) Unlock() { s.turnMu.Unlock() }

type Info struct {
	ID           string    `json:"session_id"`
	UserEmail    string    `json:"user_email"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
}

func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:           s.ID,
		UserEmail:    s.UserEmail,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.lastActivity,
		MessageCount: s.messageCount,
	}
}

type Stats struct {
	ActiveSessions     int     `json:"active_sessions"`
	TotalTurns         int     `json:"total_conversation_turns"`
	AvgTurnsPerSession float64 `json:"avg_turns_per_session"`
}

type Manager struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	ttl          time.Duration
	historyLimit int
	now          func() time.Time
}

func NewManager(ttl time.Duration, historyLimit int) *Manager {
	return &Manager{
		sessions:     make(map[string]*Session),
		ttl:          ttl,
		historyLimit: historyLimit,
		now:          time.Now,
	}
}

func (m *Manager) Create(userEmail string) *Session {
	now := m.now()
	s := &Session{
		ID:           uuid.New().String(),
		UserEmail:    userEmail,
		CreatedAt:    now,
		History:      chat.NewHistory(m.historyLimit),
		lastActivity: now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	logger.Info("Session created", zap.String("session_id", s.ID))
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Touch records one message on the session.
func (m *Manager) Touch(id string) (*Session, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastActivity = m.now()
	s.messageCount++
	s.mu.Unlock()

	return s, nil
}

// Sweep drops sessions idle for longer than the TTL.
func (m *Manager) Sweep(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}

	m.mu.Lock()
	removed := 0
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := now.Sub(s.lastActivity)
		s.mu.Unlock()

		if idle > m.ttl {
			delete(m.sessions, id)
			removed++
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	if removed > 0 {
		logger.Info("Expired sessions swept", zap.Int("removed", removed), zap.Int("remaining", n))
	}
	return removed
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Stats{ActiveSessions: len(m.sessions)}
	for _, s := range m.sessions {
		s.mu.Lock()
		st.TotalTurns += s.messageCount
		s.mu.Unlock()
	}
	if st.ActiveSessions > 0 {
		st.AvgTurnsPerSession = float64(int(float64(st.TotalTurns)/float64(st.ActiveSessions)*100+0.5)) / 100
	}
	return st
}
