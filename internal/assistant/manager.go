package assistant

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zeina-health/companion/internal/model"
	"github.com/zeina-health/companion/pkg/logger"
	"github.com/zeina-health/companion/pkg/metrics"
)

// ErrSessionNotFound is returned for unknown ids and for sessions owned by
// another account.
var ErrSessionNotFound = errors.New("session not found")

// Manager keeps the open sessions of this process.
type Manager struct {
	deps        Dependencies
	opts        Options
	idleTimeout time.Duration
	logger      *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a new session manager. A zero idleTimeout disables
// the idle sweep.
func NewManager(deps Dependencies, opts Options, idleTimeout time.Duration, log *logger.Logger) *Manager {
	return &Manager{
		deps:        deps,
		opts:        opts,
		idleTimeout: idleTimeout,
		logger:      log,
		sessions:    make(map[string]*Session),
	}
}

// Create opens a session for owner speaking lang, personalised with
// profile when it is not nil.
func (m *Manager) Create(owner, lang string, profile *model.User) *Session {
	s := NewSession(owner, lang, m.deps, m.opts, m.logger)
	s.SetUserProfile(profile)

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	metrics.IncrementSessions()
	m.logger.Info("assistant session opened",
		zap.String("session_id", s.ID()),
		zap.String("user_id", owner),
		zap.String("language", s.Language()),
	)
	return s
}

// Get returns the session id if it belongs to owner.
func (m *Manager) Get(id, owner string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok || s.Owner() != owner {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close closes and forgets the session id if it belongs to owner.
func (m *Manager) Close(id, owner string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || s.Owner() != owner {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	s.Close()
	metrics.DecrementSessions()
	return nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes every session idle since before now minus the idle timeout
// and returns how many were closed. A session in the middle of a turn is
// never idle.
func (m *Manager) Sweep(now time.Time) int {
	if m.idleTimeout <= 0 {
		return 0
	}
	cutoff := now.Add(-m.idleTimeout)

	var stale []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if !s.IdleSince().Before(cutoff) {
			continue
		}
		// Held until Close so no turn can start on a swept session.
		if !s.busy.TryLock() {
			continue
		}
		stale = append(stale, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.Close()
		s.busy.Unlock()
		metrics.DecrementSessions()
	}
	if len(stale) > 0 {
		m.logger.Info("idle assistant sessions closed", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// Run sweeps idle sessions until ctx is done, then closes the rest.
func (m *Manager) Run(ctx context.Context) {
	if m.idleTimeout <= 0 {
		<-ctx.Done()
		m.Shutdown()
		return
	}

	interval := m.idleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Shutdown()
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

// Shutdown closes every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
		metrics.DecrementSessions()
	}
}
