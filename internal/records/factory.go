package records

import (
	"context"
	"fmt"
	"strings"
)

// NewStore picks a backend from databaseURL: empty means in-memory,
// postgres:// or postgresql:// means Postgres, sqlite:<path> means SQLite.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	url := strings.TrimSpace(databaseURL)
	switch {
	case url == "":
		return NewInMemoryStore(), nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return NewPostgresStore(ctx, url)
	case strings.HasPrefix(url, "sqlite:"):
		path := strings.TrimPrefix(strings.TrimPrefix(url, "sqlite://"), "sqlite:")
		if path == "" {
			return nil, fmt.Errorf("sqlite DATABASE_URL needs a path")
		}
		return NewSQLiteStore(ctx, path)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme in %q (expected postgres://, postgresql:// or sqlite:)", url)
	}
}
