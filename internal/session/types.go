package session

import (
	"errors"
	"time"
)

type Status string

const (
	StatusCreated Status = "created"
	StatusRunning Status = "running"
	StatusEnded   Status = "ended"
)

var ErrNotFound = errors.New("session not found")

// Session is a user's server-side focus session. A user has at most one
// session that is not ended.
type Session struct {
	ID             string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	StartedAt      time.Time `json:"started_at,omitempty"`
	EndedAt        time.Time `json:"ended_at,omitempty"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Started reports whether the focus timer was ever started for this session.
func (s *Session) Started() bool { return !s.StartedAt.IsZero() }

// Duration is the focused time between start and end. Zero when the session
// never started or has not ended.
func (s *Session) Duration() time.Duration {
	if !s.Started() || s.EndedAt.IsZero() || s.EndedAt.Before(s.StartedAt) {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}
