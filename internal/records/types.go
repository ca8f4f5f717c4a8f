package records

import (
	"context"
	"errors"
	"time"
)

const (
	TypeFocus = "focus"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrInvalidDuration = errors.New("invalid session duration")
	ErrNotEditable     = errors.New("only manually added sessions can be edited")
)

// Record is one completed focus session.
type Record struct {
	ID              string    `json:"id" yaml:"id"`
	UserID          string    `json:"user_id" yaml:"user_id"`
	SessionType     string    `json:"session_type" yaml:"session_type"`
	StartTime       time.Time `json:"start_time" yaml:"start_time"`
	EndTime         time.Time `json:"end_time" yaml:"end_time"`
	DurationSeconds int64     `json:"duration_seconds" yaml:"duration_seconds"`
	ManuallyAdded   bool      `json:"manually_added" yaml:"manually_added"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"updated_at"`
}

// Store persists focus records. Get, Update and Delete are scoped by user;
// a record owned by someone else is reported as ErrNotFound.
type Store interface {
	Save(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, userID, id string) (Record, error)
	// List returns records whose start time is in [from, to), newest first.
	// A zero bound is open.
	List(ctx context.Context, userID string, from, to time.Time) ([]Record, error)
	Update(ctx context.Context, rec Record) (Record, error)
	Delete(ctx context.Context, userID, id string) error
	Close() error
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

func stamp(rec Record, now time.Time) Record {
	if rec.SessionType == "" {
		rec.SessionType = TypeFocus
	}
	rec.StartTime = rec.StartTime.UTC()
	rec.EndTime = rec.EndTime.UTC()
	rec.DurationSeconds = int64(rec.EndTime.Sub(rec.StartTime) / time.Second)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	return rec
}
