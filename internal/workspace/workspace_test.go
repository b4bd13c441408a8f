package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Options{Root: filepath.Join(t.TempDir(), "root"), Retention: time.Hour})
	require.NoError(t, err)
	return m
}

func age(t *testing.T, dir string, d time.Duration) {
	t.Helper()
	ts := time.Now().Add(-d)
	require.NoError(t, os.Chtimes(dir, ts, ts))
}

func TestNewManager(t *testing.T) {
	_, err := NewManager(Options{})
	assert.Error(t, err)

	reg := prometheus.NewRegistry()
	m, err := NewManager(Options{Root: t.TempDir(), Registerer: reg})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, m.retention)

	_, err = NewManager(Options{Root: t.TempDir(), Registerer: reg})
	assert.Error(t, err, "second registration of the same counter must fail")
}

func TestCreate(t *testing.T) {
	m := newTestManager(t)

	ws, err := m.Create()
	require.NoError(t, err)
	defer m.Release(ws.ID)

	assert.True(t, ValidID(ws.ID))
	assert.Equal(t, filepath.Join(m.Root(), ws.ID), ws.Dir)
	info, err := os.Stat(ws.Dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, 1, m.refs[ws.ID])
}

func TestCreate_RetriesOnCollision(t *testing.T) {
	m := newTestManager(t)
	taken := "11111111-1111-4111-8111-111111111111"
	fresh := "22222222-2222-4222-8222-222222222222"
	require.NoError(t, os.Mkdir(filepath.Join(m.Root(), taken), 0o700))

	ids := []string{taken, fresh}
	var n int32
	m.newID = func() string { return ids[atomic.AddInt32(&n, 1)-1] }

	ws, err := m.Create()
	require.NoError(t, err)
	assert.Equal(t, fresh, ws.ID)
	assert.NotContains(t, m.refs, taken)
}

func TestCreate_GivesUp(t *testing.T) {
	m := newTestManager(t)
	taken := "11111111-1111-4111-8111-111111111111"
	require.NoError(t, os.Mkdir(filepath.Join(m.Root(), taken), 0o700))
	m.newID = func() string { return taken }

	_, err := m.Create()
	assert.Error(t, err)
	assert.Empty(t, m.refs)
}

func TestOpen(t *testing.T) {
	m := newTestManager(t)
	ws, err := m.Create()
	require.NoError(t, err)
	m.Release(ws.ID)

	t.Run("existing", func(t *testing.T) {
		got, err := m.Open(ws.ID)
		require.NoError(t, err)
		assert.Equal(t, ws.Dir, got.Dir)
		assert.Equal(t, 1, m.refs[ws.ID])
		m.Release(ws.ID)
		assert.NotContains(t, m.refs, ws.ID)
	})

	t.Run("invalid id", func(t *testing.T) {
		for _, id := range []string{"", "../etc", "not-a-uuid", "{" + ws.ID + "}", "urn:uuid:" + ws.ID} {
			_, err := m.Open(id)
			assert.ErrorIs(t, err, ErrInvalidID, id)
		}
	})

	t.Run("missing", func(t *testing.T) {
		_, err := m.Open("33333333-3333-4333-8333-333333333333")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Empty(t, m.refs)
	})
}

func TestCleanup(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewManager(Options{Root: t.TempDir(), Retention: time.Hour, Registerer: reg})
	require.NoError(t, err)

	old, err := m.Create()
	require.NoError(t, err)
	m.Release(old.ID)
	require.NoError(t, os.WriteFile(filepath.Join(old.Dir, "a.md"), []byte("x"), 0o644))
	age(t, old.Dir, 2*time.Hour)

	recent, err := m.Create()
	require.NoError(t, err)
	m.Release(recent.ID)
	age(t, recent.Dir, 10*time.Minute)

	busy, err := m.Create()
	require.NoError(t, err)
	age(t, busy.Dir, 3*time.Hour)

	stray := filepath.Join(m.Root(), "not-a-workspace")
	require.NoError(t, os.Mkdir(stray, 0o755))
	age(t, stray, 3*time.Hour)

	removed, err := m.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoDirExists(t, old.Dir)
	assert.DirExists(t, recent.Dir)
	assert.DirExists(t, busy.Dir, "acquired workspace must survive cleanup")
	assert.DirExists(t, stray)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.removed))

	m.Release(busy.ID)
	removed, err = m.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoDirExists(t, busy.Dir)
}

func TestCleanup_Cancelled(t *testing.T) {
	m := newTestManager(t)
	ws, err := m.Create()
	require.NoError(t, err)
	m.Release(ws.ID)
	age(t, ws.Dir, 2*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Cleanup(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.DirExists(t, ws.Dir)
}

func TestFilePath(t *testing.T) {
	m := newTestManager(t)
	ws, err := m.Create()
	require.NoError(t, err)
	defer m.Release(ws.ID)

	require.NoError(t, os.WriteFile(filepath.Join(ws.Dir, "out.md"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(ws.Dir, InputDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ws.Dir, InputDir, "in.txt"), []byte("x"), 0o644))

	p, err := FilePath(ws, "out.md")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws.Dir, "out.md"), p)

	_, err = FilePath(ws, "missing.md")
	assert.ErrorIs(t, err, ErrNoFile)

	_, err = FilePath(ws, InputDir)
	assert.ErrorIs(t, err, ErrNoFile, "directories are not served")

	for _, name := range []string{"", ".", "..", "../x.md", "input/in.txt", `a\b.md`} {
		_, err := FilePath(ws, name)
		assert.True(t, errors.Is(err, ErrInvalidName), name)
	}
}

func TestUniqueName(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "a.md", UniqueName(dir, "a.md"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), nil, 0o644))
	assert.Equal(t, "a_1.md", UniqueName(dir, "a.md"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_1.md"), nil, 0o644))
	assert.Equal(t, "a_2.md", UniqueName(dir, "a.md"))
}

func TestWriteOutput(t *testing.T) {
	dir := t.TempDir()
	name, p, err := WriteOutput(dir, "a.md", "first")
	require.NoError(t, err)
	assert.Equal(t, "a.md", name)
	assert.Equal(t, filepath.Join(dir, "a.md"), p)

	name, p, err = WriteOutput(dir, "a.md", "second")
	require.NoError(t, err)
	assert.Equal(t, "a_1.md", name)
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "second", string(b))

	_, p, err = WriteOutput(filepath.Join(dir, "missing"), "a.md", "x")
	assert.Error(t, err)
	assert.Empty(t, p)
}

func TestJanitor(t *testing.T) {
	var a, b int32
	j := NewJanitor(10*time.Millisecond, nil,
		Task{Name: "fails", Run: func(context.Context) error {
			atomic.AddInt32(&a, 1)
			return errors.New("boom")
		}},
		Task{Name: "counts", Run: func(context.Context) error {
			atomic.AddInt32(&b, 1)
			return nil
		}},
	)

	j.RunOnce(context.Background())
	assert.Equal(t, int32(1), atomic.LoadInt32(&a))
	assert.Equal(t, int32(1), atomic.LoadInt32(&b), "a failing task must not stop the next one")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&b) >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestCleanupTask(t *testing.T) {
	m := newTestManager(t)
	ws, err := m.Create()
	require.NoError(t, err)
	m.Release(ws.ID)
	age(t, ws.Dir, 2*time.Hour)

	NewJanitor(time.Minute, nil, m.CleanupTask()).RunOnce(context.Background())
	assert.NoDirExists(t, ws.Dir)
}
