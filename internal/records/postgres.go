package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists focus records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS focus_sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			session_type TEXT NOT NULL DEFAULT 'focus',
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ NOT NULL,
			duration_seconds BIGINT NOT NULL,
			manually_added BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_focus_sessions_user_start ON focus_sessions (user_id, start_time);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const pgColumns = `id, user_id, session_type, start_time, end_time, duration_seconds, manually_added, created_at, updated_at`

func (s *PostgresStore) Save(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec = stamp(rec, time.Now().UTC())

	_, err := s.pool.Exec(ctx,
		`INSERT INTO focus_sessions (`+pgColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID,
		rec.UserID,
		rec.SessionType,
		rec.StartTime,
		rec.EndTime,
		rec.DurationSeconds,
		rec.ManuallyAdded,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, fmt.Errorf("save record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Get(ctx context.Context, userID, id string) (Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgColumns+` FROM focus_sessions WHERE id=$1 AND user_id=$2`,
		id, userID,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context, userID string, from, to time.Time) ([]Record, error) {
	var fromArg, toArg any
	if !from.IsZero() {
		fromArg = from.UTC()
	}
	if !to.IsZero() {
		toArg = to.UTC()
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgColumns+` FROM focus_sessions
		 WHERE user_id=$1
		   AND ($2::timestamptz IS NULL OR start_time >= $2)
		   AND ($3::timestamptz IS NULL OR start_time < $3)
		 ORDER BY start_time DESC`,
		userID, fromArg, toArg,
	)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, rec Record) (Record, error) {
	rec = stamp(rec, time.Now().UTC())
	row := s.pool.QueryRow(ctx,
		`UPDATE focus_sessions
		 SET start_time=$3, end_time=$4, duration_seconds=$5, updated_at=$6
		 WHERE id=$1 AND user_id=$2
		 RETURNING `+pgColumns,
		rec.ID, rec.UserID, rec.StartTime, rec.EndTime, rec.DurationSeconds, rec.UpdatedAt,
	)
	updated, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("update record: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM focus_sessions WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.UserID, &r.SessionType, &r.StartTime, &r.EndTime,
		&r.DurationSeconds, &r.ManuallyAdded, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	r.StartTime = r.StartTime.UTC()
	r.EndTime = r.EndTime.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}
