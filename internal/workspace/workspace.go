// Package workspace manages the per-request temporary directories that hold
// uploads and converted outputs.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"docconvert/internal/logging"
	"docconvert/internal/model"
)

const (
	// InputDir is the workspace subdirectory for uploads and extracted archives.
	InputDir = "input"

	defaultRetention  = time.Hour
	maxCreateAttempts = 5
)

var (
	ErrInvalidID   = errors.New("invalid workspace id")
	ErrNotFound    = errors.New("workspace not found")
	ErrInvalidName = errors.New("invalid file name")
	ErrNoFile      = errors.New("file not found")
)

// Options configures a Manager.
type Options struct {
	Root      string
	Retention time.Duration
	Logger    *slog.Logger
	// Registerer receives the workspaces_removed_total counter. Nil skips registration.
	Registerer prometheus.Registerer
}

// Manager creates, hands out and expires workspace directories under one root.
// Acquired workspaces are reference counted and never removed by Cleanup.
type Manager struct {
	root      string
	retention time.Duration
	logger    *slog.Logger
	removed   prometheus.Counter
	now       func() time.Time
	newID     func() string

	mu   sync.Mutex
	refs map[string]int
}

// NewManager creates the root directory if needed.
func NewManager(opts Options) (*Manager, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	m := &Manager{
		root:      opts.Root,
		retention: opts.Retention,
		logger:    opts.Logger,
		removed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workspaces_removed_total",
			Help: "Total number of expired workspaces removed.",
		}),
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
		refs:  make(map[string]int),
	}
	if m.retention <= 0 {
		m.retention = defaultRetention
	}
	if m.logger == nil {
		m.logger = logging.Discard()
	}
	if opts.Registerer != nil {
		if err := opts.Registerer.Register(m.removed); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Root returns the directory all workspaces live under.
func (m *Manager) Root() string { return m.root }

// Create makes a new workspace with a fresh ID and returns it acquired.
// The caller must Release it.
func (m *Manager) Create() (model.Workspace, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id := m.newID()
		dir := filepath.Join(m.root, id)

		m.acquire(id)
		err := os.Mkdir(dir, 0o700)
		if errors.Is(err, fs.ErrExist) {
			m.Release(id)
			continue
		}
		if err != nil {
			m.Release(id)
			return model.Workspace{}, fmt.Errorf("create workspace: %w", err)
		}
		return model.Workspace{ID: id, Dir: dir, CreatedAt: m.now()}, nil
	}
	return model.Workspace{}, fmt.Errorf("create workspace: no unused id after %d attempts", maxCreateAttempts)
}

// Open acquires an existing workspace. The caller must Release it.
func (m *Manager) Open(id string) (model.Workspace, error) {
	if !ValidID(id) {
		return model.Workspace{}, ErrInvalidID
	}

	m.acquire(id)
	dir := filepath.Join(m.root, id)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		m.Release(id)
		return model.Workspace{}, ErrNotFound
	}
	return model.Workspace{ID: id, Dir: dir, CreatedAt: info.ModTime()}, nil
}

// Release drops one reference taken by Create or Open.
func (m *Manager) Release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := m.refs[id]; n <= 1 {
		delete(m.refs, id)
	} else {
		m.refs[id] = n - 1
	}
}

func (m *Manager) acquire(id string) {
	m.mu.Lock()
	m.refs[id]++
	m.mu.Unlock()
}

// Cleanup removes workspaces whose modification time is older than the
// retention period. Acquired workspaces and entries that are not workspace
// directories are left alone. Failures are logged and skipped.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return 0, fmt.Errorf("read workspace root: %w", err)
	}

	cutoff := m.now().Add(-m.retention)
	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !e.IsDir() || !ValidID(e.Name()) {
			continue
		}
		if m.removeIfExpired(e, cutoff) {
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("workspaces_removed", "count", removed)
	}
	return removed, nil
}

func (m *Manager) removeIfExpired(e fs.DirEntry, cutoff time.Time) bool {
	// The lock is held through removal so Open cannot acquire a half-deleted workspace.
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refs[e.Name()] > 0 {
		return false
	}
	info, err := e.Info()
	if err != nil {
		m.logger.Warn("workspace_stat_failed", "id", e.Name(), "error", err)
		return false
	}
	if !info.ModTime().Before(cutoff) {
		return false
	}
	if err := os.RemoveAll(filepath.Join(m.root, e.Name())); err != nil {
		m.logger.Warn("workspace_remove_failed", "id", e.Name(), "error", err)
		return false
	}
	m.removed.Inc()
	m.logger.Debug("workspace_removed", "id", e.Name(), "age", m.now().Sub(info.ModTime()).String())
	return true
}

// ValidID reports whether id is a canonical UUID string.
func ValidID(id string) bool {
	parsed, err := uuid.Parse(id)
	return err == nil && parsed.String() == id
}

// FilePath resolves a downloadable file of ws. Only regular files directly in
// the workspace root are served.
func FilePath(ws model.Workspace, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", ErrInvalidName
	}
	p := filepath.Join(ws.Dir, name)
	info, err := os.Lstat(p)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrNoFile
	}
	return p, nil
}

// UniqueName returns name, or name with a _N suffix before its extension,
// such that no file of that name exists in dir yet.
func UniqueName(dir, name string) string {
	if _, err := os.Lstat(filepath.Join(dir, name)); errors.Is(err, fs.ErrNotExist) {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if _, err := os.Lstat(filepath.Join(dir, candidate)); errors.Is(err, fs.ErrNotExist) {
			return candidate
		}
	}
}

// WriteOutput stores text under a unique variant of name in dir and returns
// the chosen filename and its full path.
func WriteOutput(dir, name, text string) (string, string, error) {
	filename := UniqueName(dir, name)
	target := filepath.Join(dir, filename)
	if err := os.WriteFile(target, []byte(text), 0o644); err != nil {
		return filename, "", fmt.Errorf("write %s: %w", filename, err)
	}
	return filename, target, nil
}
