package session

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"docconvert/internal/repository"
)

const (
	defaultQueryTimeout = 5 * time.Second
	// noExpiry stands in for "never" in a table whose expiry column is NOT NULL.
	noExpiry = 100 * 365 * 24 * time.Hour
)

// DBStore adapts a SessionRepository to fiber.Storage.
type DBStore struct {
	repo    repository.SessionRepository
	timeout time.Duration
	now     func() time.Time
}

var _ fiber.Storage = (*DBStore)(nil)

// NewDBStore returns a store whose calls are bounded by timeout (5s when non-positive).
func NewDBStore(repo repository.SessionRepository, timeout time.Duration) *DBStore {
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return &DBStore{repo: repo, timeout: timeout, now: time.Now}
}

func (s *DBStore) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *DBStore) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	ctx, cancel := s.context()
	defer cancel()
	data, err := s.repo.Get(ctx, key, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (s *DBStore) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	if exp <= 0 {
		exp = noExpiry
	}
	ctx, cancel := s.context()
	defer cancel()
	return s.repo.Upsert(ctx, key, val, s.now().Add(exp))
}

func (s *DBStore) Delete(key string) error {
	if key == "" {
		return nil
	}
	ctx, cancel := s.context()
	defer cancel()
	return s.repo.Delete(ctx, key)
}

func (s *DBStore) Reset() error {
	ctx, cancel := s.context()
	defer cancel()
	return s.repo.DeleteAll(ctx)
}

// Close is a no-op; the database handle belongs to the caller.
func (s *DBStore) Close() error { return nil }

// Sweep deletes expired rows.
func (s *DBStore) Sweep(ctx context.Context) (int, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	return int(n), err
}
