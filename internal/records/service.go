package records

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const DefaultMaxManualDuration = 10 * time.Hour

// Service applies the ownership and validation rules on top of a Store.
type Service struct {
	store     Store
	maxManual time.Duration
}

func NewService(store Store, maxManual time.Duration) *Service {
	if maxManual <= 0 {
		maxManual = DefaultMaxManualDuration
	}
	return &Service{store: store, maxManual: maxManual}
}

func (s *Service) Store() Store { return s.store }

func (s *Service) validateManual(start, end time.Time) error {
	d := end.Sub(start)
	if d <= 0 {
		return fmt.Errorf("%w: end must be after start", ErrInvalidDuration)
	}
	if d > s.maxManual {
		return fmt.Errorf("%w: %s exceeds the %s limit", ErrInvalidDuration, d, s.maxManual)
	}
	return nil
}

// AddManual stores a user-entered session.
func (s *Service) AddManual(ctx context.Context, userID string, start, end time.Time) (Record, error) {
	if err := s.validateManual(start, end); err != nil {
		return Record{}, err
	}
	return s.store.Save(ctx, Record{
		UserID:        userID,
		SessionType:   TypeFocus,
		StartTime:     start,
		EndTime:       end,
		ManuallyAdded: true,
	})
}

// Edit changes the times of a manually added session. Tracked sessions are
// immutable.
func (s *Service) Edit(ctx context.Context, userID, id string, start, end time.Time) (Record, error) {
	cur, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return Record{}, err
	}
	if !cur.ManuallyAdded {
		return Record{}, ErrNotEditable
	}
	if err := s.validateManual(start, end); err != nil {
		return Record{}, err
	}
	cur.StartTime = start
	cur.EndTime = end
	return s.store.Update(ctx, cur)
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return s.store.Delete(ctx, userID, id)
}

func (s *Service) List(ctx context.Context, userID string, from, to time.Time) ([]Record, error) {
	return s.store.List(ctx, userID, from, to)
}

// Complete records a tracked session that ran from start to end. Sessions
// shorter than a second are not worth a row and are skipped with
// ErrInvalidDuration.
func (s *Service) Complete(ctx context.Context, userID string, start, end time.Time) (Record, error) {
	if end.Sub(start) < time.Second {
		return Record{}, fmt.Errorf("%w: tracked session too short", ErrInvalidDuration)
	}
	return s.store.Save(ctx, Record{
		UserID:      userID,
		SessionType: TypeFocus,
		StartTime:   start,
		EndTime:     end,
	})
}

// IsClientError reports whether err is caused by the request rather than the
// backend.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidDuration) || errors.Is(err, ErrNotEditable) || errors.Is(err, ErrNotFound)
}
