package records

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func storeBackends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	backends := map[string]Store{"inmemory": NewInMemoryStore()}

	sqlite, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "focus.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	backends["sqlite"] = sqlite

	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		pg, err := NewPostgresStore(ctx, url)
		if err != nil {
			t.Fatalf("NewPostgresStore() error = %v", err)
		}
		backends["postgres"] = pg
	}
	for _, s := range backends {
		t.Cleanup(func() { _ = s.Close() })
	}
	return backends
}

var base = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func TestStoreSaveGetList(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			user := "user-" + name + "-" + time.Now().Format("150405.000000")

			first, err := store.Save(ctx, Record{UserID: user, StartTime: base, EndTime: base.Add(25 * time.Minute)})
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if first.ID == "" || first.DurationSeconds != 1500 || first.SessionType != TypeFocus {
				t.Fatalf("saved = %+v", first)
			}
			second, err := store.Save(ctx, Record{UserID: user, StartTime: base.Add(2 * time.Hour), EndTime: base.Add(3 * time.Hour), ManuallyAdded: true})
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if _, err := store.Save(ctx, Record{UserID: user + "-other", StartTime: base, EndTime: base.Add(time.Minute)}); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			got, err := store.Get(ctx, user, second.ID)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if !got.ManuallyAdded || !got.StartTime.Equal(second.StartTime) {
				t.Fatalf("Get() = %+v, want %+v", got, second)
			}

			all, err := store.List(ctx, user, time.Time{}, time.Time{})
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(all) != 2 || all[0].ID != second.ID || all[1].ID != first.ID {
				t.Fatalf("List() = %+v, want newest first", all)
			}

			ranged, err := store.List(ctx, user, base.Add(time.Hour), base.Add(2*time.Hour))
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(ranged) != 0 {
				t.Fatalf("List() with exclusive upper bound = %+v, want empty", ranged)
			}
			ranged, err = store.List(ctx, user, base.Add(time.Hour), time.Time{})
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(ranged) != 1 || ranged[0].ID != second.ID {
				t.Fatalf("List() from bound = %+v", ranged)
			}
		})
	}
}

func TestStoreScopesByUser(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec, err := store.Save(ctx, Record{UserID: "owner-" + name, StartTime: base, EndTime: base.Add(time.Minute)})
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if _, err := store.Get(ctx, "intruder", rec.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get() by other user error = %v, want ErrNotFound", err)
			}
			if err := store.Delete(ctx, "intruder", rec.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Delete() by other user error = %v, want ErrNotFound", err)
			}
			rec.UserID = "intruder"
			if _, err := store.Update(ctx, rec); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Update() by other user error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStoreUpdateAndDelete(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			user := "editor-" + name
			rec, err := store.Save(ctx, Record{UserID: user, StartTime: base, EndTime: base.Add(time.Hour), ManuallyAdded: true})
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			rec.EndTime = base.Add(90 * time.Minute)
			updated, err := store.Update(ctx, rec)
			if err != nil {
				t.Fatalf("Update() error = %v", err)
			}
			if updated.DurationSeconds != 5400 {
				t.Fatalf("DurationSeconds = %d, want 5400", updated.DurationSeconds)
			}
			if updated.UpdatedAt.Before(updated.CreatedAt) {
				t.Fatalf("UpdatedAt %v before CreatedAt %v", updated.UpdatedAt, updated.CreatedAt)
			}

			if err := store.Delete(ctx, user, rec.ID); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, err := store.Get(ctx, user, rec.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get() after Delete error = %v, want ErrNotFound", err)
			}
			if err := store.Delete(ctx, user, rec.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("second Delete() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestNewStoreSelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := NewStore(ctx, "")
	if err != nil {
		t.Fatalf("NewStore(\"\") error = %v", err)
	}
	if _, ok := s.(*InMemoryStore); !ok {
		t.Fatalf("NewStore(\"\") = %T, want *InMemoryStore", s)
	}

	s, err = NewStore(ctx, "sqlite:"+filepath.Join(t.TempDir(), "f.db"))
	if err != nil {
		t.Fatalf("NewStore(sqlite) error = %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Fatalf("NewStore(sqlite) = %T, want *SQLiteStore", s)
	}

	for _, bad := range []string{"mysql://x", "sqlite:"} {
		if _, err := NewStore(ctx, bad); err == nil {
			t.Fatalf("NewStore(%q) error = nil", bad)
		}
	}
}
