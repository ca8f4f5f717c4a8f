package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists focus records in a single SQLite file. Times are
// stored as unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates if needed) the database at path.
// ":memory:" gives a private in-process database.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc serializes writers anyway; one connection also keeps a
	// :memory: database alive and shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if err := initSQLiteSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initSQLiteSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS focus_sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			session_type TEXT NOT NULL DEFAULT 'focus',
			start_time INTEGER NOT NULL,
			end_time INTEGER NOT NULL,
			duration_seconds INTEGER NOT NULL,
			manually_added INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_focus_sessions_user_start ON focus_sessions (user_id, start_time)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const sqliteColumns = `id, user_id, session_type, start_time, end_time, duration_seconds, manually_added, created_at, updated_at`

func (s *SQLiteStore) Save(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec = stamp(rec, time.Now().UTC())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO focus_sessions (`+sqliteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.UserID,
		rec.SessionType,
		rec.StartTime.UnixMilli(),
		rec.EndTime.UnixMilli(),
		rec.DurationSeconds,
		rec.ManuallyAdded,
		rec.CreatedAt.UnixMilli(),
		rec.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return Record{}, fmt.Errorf("save record: %w", err)
	}
	return s.Get(ctx, rec.UserID, rec.ID)
}

func (s *SQLiteStore) Get(ctx context.Context, userID, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteColumns+` FROM focus_sessions WHERE id = ? AND user_id = ?`, id, userID)
	rec, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) List(ctx context.Context, userID string, from, to time.Time) ([]Record, error) {
	query := `SELECT ` + sqliteColumns + ` FROM focus_sessions WHERE user_id = ?`
	args := []any{userID}
	if !from.IsZero() {
		query += ` AND start_time >= ?`
		args = append(args, from.UnixMilli())
	}
	if !to.IsZero() {
		query += ` AND start_time < ?`
		args = append(args, to.UnixMilli())
	}
	query += ` ORDER BY start_time DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Update(ctx context.Context, rec Record) (Record, error) {
	rec = stamp(rec, time.Now().UTC())
	res, err := s.db.ExecContext(ctx,
		`UPDATE focus_sessions SET start_time = ?, end_time = ?, duration_seconds = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		rec.StartTime.UnixMilli(), rec.EndTime.UnixMilli(), rec.DurationSeconds, rec.UpdatedAt.UnixMilli(),
		rec.ID, rec.UserID,
	)
	if err != nil {
		return Record{}, fmt.Errorf("update record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Record{}, ErrNotFound
	}
	return s.Get(ctx, rec.UserID, rec.ID)
}

func (s *SQLiteStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM focus_sessions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row rowScanner) (Record, error) {
	var (
		r                            Record
		start, end, created, updated int64
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.SessionType, &start, &end,
		&r.DurationSeconds, &r.ManuallyAdded, &created, &updated); err != nil {
		return Record{}, err
	}
	r.StartTime = time.UnixMilli(start).UTC()
	r.EndTime = time.UnixMilli(end).UTC()
	r.CreatedAt = time.UnixMilli(created).UTC()
	r.UpdatedAt = time.UnixMilli(updated).UTC()
	return r, nil
}
