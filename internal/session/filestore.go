package session

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	fileSuffix = ".session"
	headerSize = 8
)

// FileStore is a fiber.Storage keeping one file per session in a directory.
// Each file starts with the expiry as big-endian Unix nanoseconds (zero for
// none) followed by the encoded session.
type FileStore struct {
	dir string
	now func() time.Time
	mu  sync.RWMutex
}

var _ fiber.Storage = (*FileStore)(nil)

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("session directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

func (s *FileStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+fileSuffix)
}

// Get returns nil without error for missing or expired keys.
func (s *FileStore) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	s.mu.RLock()
	b, err := os.ReadFile(s.path(key))
	s.mu.RUnlock()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	data, live := s.decode(b)
	if !live {
		s.removeIfExpired(s.path(key))
		return nil, nil
	}
	return data, nil
}

// Set writes val atomically. A non-positive exp stores the session without expiry.
func (s *FileStore) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	var expiresAt int64
	if exp > 0 {
		expiresAt = s.now().Add(exp).UnixNano()
	}
	buf := make([]byte, headerSize+len(val))
	binary.BigEndian.PutUint64(buf, uint64(expiresAt))
	copy(buf[headerSize:], val)

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (s *FileStore) Delete(key string) error {
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Reset removes every stored session.
func (s *FileStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("reset sessions: %w", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), fileSuffix) {
			if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("reset sessions: %w", err)
			}
		}
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// Sweep removes expired session files and reports how many were removed.
func (s *FileStore) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		if s.removeIfExpired(filepath.Join(s.dir, e.Name())) {
			removed++
		}
	}
	return removed, nil
}

// removeIfExpired deletes p only if its content, re-read under the write
// lock, is still expired or malformed.
func (s *FileStore) removeIfExpired(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(p)
	if err != nil {
		return false
	}
	if _, live := s.decode(b); live {
		return false
	}
	return os.Remove(p) == nil
}

// decode splits a stored file; live is false for expired or malformed content.
func (s *FileStore) decode(b []byte) (data []byte, live bool) {
	if len(b) < headerSize {
		return nil, false
	}
	expiresAt := int64(binary.BigEndian.Uint64(b[:headerSize]))
	if expiresAt != 0 && !s.now().Before(time.Unix(0, expiresAt)) {
		return nil, false
	}
	return b[headerSize:], true
}
