package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"docconvert/internal/repository"
)

// SessionPostgres is a PostgreSQL implementation of repository.SessionRepository.
type SessionPostgres struct {
	db *sql.DB
}

// NewSessionPostgres creates a new SessionPostgres repository.
func NewSessionPostgres(db *sql.DB) *SessionPostgres {
	return &SessionPostgres{db: db}
}

var _ repository.SessionRepository = (*SessionPostgres)(nil)

// Get fetches the payload of a live session.
func (r *SessionPostgres) Get(ctx context.Context, id string, now time.Time) ([]byte, error) {
	const q = `
		SELECT data
		FROM sessions
		WHERE id = $1 AND expires_at > $2
	`
	var data []byte
	if err := r.db.QueryRowContext(ctx, q, id, now).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Upsert inserts or replaces a session row.
func (r *SessionPostgres) Upsert(ctx context.Context, id string, data []byte, expiresAt time.Time) error {
	const q = `
		INSERT INTO sessions (id, data, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at
	`
	_, err := r.db.ExecContext(ctx, q, id, data, expiresAt)
	return err
}

// Delete removes a session by ID.
func (r *SessionPostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM sessions WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// DeleteAll truncates the sessions table.
func (r *SessionPostgres) DeleteAll(ctx context.Context) error {
	const q = `DELETE FROM sessions`
	_, err := r.db.ExecContext(ctx, q)
	return err
}

// DeleteExpired removes expired rows.
func (r *SessionPostgres) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const q = `DELETE FROM sessions WHERE expires_at <= $1`
	res, err := r.db.ExecContext(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
