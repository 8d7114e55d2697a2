package session

import (
	"context"
	"sync"
	"time"
)

// BuildEvent is published on the bus whenever a new session is built.
type BuildEvent struct {
	TenantID  string
	WeekStart string
	Blocks    int
	Drivers   int
	Remaining int
	Degraded  bool
	Duration  time.Duration
}

// Manager owns the session cache. Sessions are keyed by tenant and week and
// reused across queries within one planning pass; callers invalidate
// explicitly when the underlying data changes outside the session. There is
// no automatic eviction.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions map[Key]*Session
}

// NewManager returns a Manager that builds sessions with the given
// collaborators.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg, sessions: make(map[Key]*Session)}
}

// GetOrCreate returns the cached session for the key, building one when
// none exists. Construction is idempotent per key.
func (m *Manager) GetOrCreate(ctx context.Context, tenantID, weekStart string) (*Session, error) {
	key := Key{TenantID: tenantID, WeekStart: weekStart}
	m.mu.Lock()
	if s, ok := m.sessions[key]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	started := time.Now()
	s, err := Build(ctx, key, m.cfg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.sessions[key]; ok {
		// A concurrent build won; keep the first session so all callers
		// share one scratchpad.
		m.mu.Unlock()
		return existing, nil
	}
	m.sessions[key] = s
	m.mu.Unlock()

	if m.cfg.Bus != nil {
		s.mu.Lock()
		remaining := len(s.remaining)
		s.mu.Unlock()
		m.cfg.Bus.Publish(BuildEvent{
			TenantID:  key.TenantID,
			WeekStart: key.WeekStart,
			Blocks:    len(s.blocks),
			Drivers:   len(s.drivers),
			Remaining: remaining,
			Degraded:  s.degraded,
			Duration:  time.Since(started),
		})
	}
	return s, nil
}

// Invalidate drops the cached session for the key, if any.
func (m *Manager) Invalidate(tenantID, weekStart string) {
	m.mu.Lock()
	delete(m.sessions, Key{TenantID: tenantID, WeekStart: weekStart})
	m.mu.Unlock()
}

// InvalidateAll drops every cached session.
func (m *Manager) InvalidateAll() {
	m.mu.Lock()
	m.sessions = make(map[Key]*Session)
	m.mu.Unlock()
}
