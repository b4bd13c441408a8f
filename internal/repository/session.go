package repository

import (
	"context"
	"time"
)

// SessionRepository persists encoded session payloads keyed by session ID.
// Payloads are opaque bytes; encoding is the caller's concern.
type SessionRepository interface {
	// Get returns the payload of a session that has not expired at now.
	// It returns ErrNotFound for missing or expired rows.
	Get(ctx context.Context, id string, now time.Time) ([]byte, error)

	// Upsert stores data under id, replacing any previous payload and expiry.
	Upsert(ctx context.Context, id string, data []byte, expiresAt time.Time) error

	// Delete removes one session. Deleting a missing row is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteAll removes every session.
	DeleteAll(ctx context.Context) error

	// DeleteExpired removes rows whose expiry is at or before now and reports how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
