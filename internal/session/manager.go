package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Manager owns the live focus session of each user.
type Manager struct {
	mu                sync.RWMutex
	clock             clockwork.Clock
	sessionByUser     map[string]*Session
	inactivityTimeout time.Duration
	onExpire          func(*Session)
}

func NewManager(inactivityTimeout time.Duration, clock clockwork.Clock) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Second
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		clock:             clock,
		sessionByUser:     make(map[string]*Session),
		inactivityTimeout: inactivityTimeout,
	}
}

// SetExpireHook registers a callback for sessions ended by the janitor. It
// runs outside the manager lock.
func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) now() time.Time { return m.clock.Now().UTC() }

// ForUser returns the user's current session.
func (m *Manager) ForUser(userID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessionByUser[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// Create returns the user's session, creating one if none exists. created is
// false when a session was already there.
func (m *Manager) Create(userID string) (s *Session, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessionByUser[userID]; ok {
		cur.LastActivityAt = m.now()
		return clone(cur), false
	}
	return clone(m.createLocked(userID)), true
}

func (m *Manager) createLocked(userID string) *Session {
	now := m.now()
	s := &Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		Status:         StatusCreated,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	m.sessionByUser[userID] = s
	return s
}

// Start marks the user's session as running, creating it first if needed.
// started is false when it was already running.
func (m *Manager) Start(userID string) (s *Session, started bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessionByUser[userID]
	if !ok {
		cur = m.createLocked(userID)
	}
	now := m.now()
	cur.LastActivityAt = now
	if cur.Status == StatusRunning {
		return clone(cur), false
	}
	cur.Status = StatusRunning
	cur.StartedAt = now
	return clone(cur), true
}

// Touch records a heartbeat for the user's session.
func (m *Manager) Touch(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessionByUser[userID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = m.now()
	return nil
}

// End closes the user's session and returns its final state.
func (m *Manager) End(userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessionByUser[userID]
	if !ok {
		return nil, ErrNotFound
	}
	m.endLocked(s, m.now())
	return clone(s), nil
}

func (m *Manager) endLocked(s *Session, now time.Time) {
	s.Status = StatusEnded
	s.EndedAt = now
	s.LastActivityAt = now
	delete(m.sessionByUser, s.UserID)
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := m.clock.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				m.ExpireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessionByUser)
}

// ExpireInactive ends every session whose last heartbeat is older than the
// inactivity timeout and returns them.
func (m *Manager) ExpireInactive() []*Session {
	now := m.now()
	var expired []*Session

	m.mu.Lock()
	for _, s := range m.sessionByUser {
		if now.Sub(s.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		m.endLocked(s, now)
		expired = append(expired, clone(s))
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
	return expired
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
