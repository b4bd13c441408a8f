// Package session keeps per-browser conversion state and flash messages on top
// of Fiber's session store.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"docconvert/internal/logging"
	"docconvert/internal/model"
)

const (
	CookieName = "session_id"

	stateKey   = "state"
	flashesKey = "flashes"
	localsKey  = "docconvert_session"

	defaultTTL = time.Hour
)

// Options configures a Manager.
type Options struct {
	// Storage holds encoded sessions. Nil selects Fiber's in-memory storage.
	Storage      fiber.Storage
	TTL          time.Duration
	CookieSecure bool
	Logger       *slog.Logger
}

// Manager loads and saves SessionState and flashes for the current request.
// The underlying session is fetched once per request and written back by
// Middleware after the handler chain returns, and only when it changed.
type Manager struct {
	store  *session.Store
	logger *slog.Logger
}

type requestSession struct {
	sess  *session.Session
	dirty bool
}

// NewManager returns a Manager using the cookie "session_id".
func NewManager(opts Options) *Manager {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	store := session.New(session.Config{
		Expiration:     ttl,
		Storage:        opts.Storage,
		KeyLookup:      "cookie:" + CookieName,
		CookieHTTPOnly: true,
		CookieSecure:   opts.CookieSecure,
		CookieSameSite: "Lax",
	})
	return &Manager{store: store, logger: logger}
}

// Middleware commits a modified session once the rest of the chain has run.
func (m *Manager) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if serr := m.Commit(c); serr != nil {
			m.logger.Error("session_save_failed", "request_id", c.Locals("request_id"), "error", serr)
		}
		return err
	}
}

// Commit saves the request's session if it was modified. Handlers running
// outside Middleware, such as the error handler, call it directly.
func (m *Manager) Commit(c *fiber.Ctx) error {
	rs, ok := c.Locals(localsKey).(*requestSession)
	if !ok {
		return nil
	}
	c.Locals(localsKey, nil)
	if !rs.dirty {
		return nil
	}
	return rs.sess.Save()
}

func (m *Manager) current(c *fiber.Ctx) (*requestSession, error) {
	if rs, ok := c.Locals(localsKey).(*requestSession); ok {
		return rs, nil
	}
	sess, err := m.store.Get(c)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	rs := &requestSession{sess: sess}
	c.Locals(localsKey, rs)
	return rs, nil
}

// ID returns the session ID of the current request.
func (m *Manager) ID(c *fiber.Ctx) (string, error) {
	rs, err := m.current(c)
	if err != nil {
		return "", err
	}
	return rs.sess.ID(), nil
}

// Load returns the stored conversion state, or the zero state when none is stored.
func (m *Manager) Load(c *fiber.Ctx) (model.SessionState, error) {
	var st model.SessionState
	rs, err := m.current(c)
	if err != nil {
		return st, err
	}
	raw, _ := rs.sess.Get(stateKey).(string)
	if raw == "" {
		return st, nil
	}
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		m.logger.Warn("session_state_corrupt", "session_id", rs.sess.ID(), "error", err)
		return model.SessionState{}, nil
	}
	return st, nil
}

// Save replaces the stored conversion state.
func (m *Manager) Save(c *fiber.Ctx, st model.SessionState) error {
	rs, err := m.current(c)
	if err != nil {
		return err
	}
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	rs.sess.Set(stateKey, string(b))
	rs.dirty = true
	return nil
}

// AddFlash queues a message for the next page render.
func (m *Manager) AddFlash(c *fiber.Ctx, category, message string) error {
	rs, err := m.current(c)
	if err != nil {
		return err
	}
	flashes := m.flashes(rs)
	flashes = append(flashes, model.Flash{Category: category, Message: message})
	b, err := json.Marshal(flashes)
	if err != nil {
		return fmt.Errorf("encode flashes: %w", err)
	}
	rs.sess.Set(flashesKey, string(b))
	rs.dirty = true
	return nil
}

// PopFlashes returns queued messages in insertion order and clears them.
func (m *Manager) PopFlashes(c *fiber.Ctx) ([]model.Flash, error) {
	rs, err := m.current(c)
	if err != nil {
		return nil, err
	}
	flashes := m.flashes(rs)
	if len(flashes) == 0 {
		return nil, nil
	}
	rs.sess.Delete(flashesKey)
	rs.dirty = true
	return flashes, nil
}

func (m *Manager) flashes(rs *requestSession) []model.Flash {
	raw, _ := rs.sess.Get(flashesKey).(string)
	if raw == "" {
		return nil
	}
	var flashes []model.Flash
	if err := json.Unmarshal([]byte(raw), &flashes); err != nil {
		m.logger.Warn("session_flashes_corrupt", "session_id", rs.sess.ID(), "error", err)
		return nil
	}
	return flashes
}
