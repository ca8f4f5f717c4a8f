package records

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process record store for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]Record)}
}

func (s *InMemoryStore) Save(_ context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec = stamp(rec, time.Now().UTC())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return rec, nil
}

func (s *InMemoryStore) Get(_ context.Context, userID, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok || rec.UserID != userID {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *InMemoryStore) List(_ context.Context, userID string, from, to time.Time) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, rec := range s.records {
		if rec.UserID == userID && inRange(rec.StartTime, from, to) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (s *InMemoryStore) Update(_ context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[rec.ID]
	if !ok || cur.UserID != rec.UserID {
		return Record{}, ErrNotFound
	}
	rec.CreatedAt = cur.CreatedAt
	rec = stamp(rec, time.Now().UTC())
	s.records[rec.ID] = rec
	return rec, nil
}

func (s *InMemoryStore) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[id]
	if !ok || cur.UserID != userID {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
