package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/storefront/pkg/api"
	"github.com/dmitrymomot/storefront/pkg/storage"
)

// Durable storage keys.
const (
	KeyToken = "auth/token"
	KeyEmail = "auth/email"
	KeyUser  = "auth/user"
)

// Gateway is the remote side of authentication. *api.Client satisfies it.
type Gateway interface {
	Login(ctx context.Context, creds api.Credentials) (string, error)
	Register(ctx context.Context, reg api.Registration) error
	Logout(ctx context.Context) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for persistence failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager owns the current session. It keeps the session in memory and
// mirrors every change to durable storage so a restart can restore it.
// Storage failures are logged and never undo or block the in-memory change.
type Manager struct {
	gw     Gateway
	store  storage.Storage
	logger *slog.Logger
	now    func() time.Time

	writeMu   sync.Mutex // held from an in-memory swap until its storage write and notifications finish
	mu        sync.RWMutex
	current   *Session
	listeners map[int]func(*Session)
	nextID    int
}

// NewManager creates a Manager with no session. Call Restore to load a
// persisted one.
func NewManager(gw Gateway, store storage.Storage, opts ...Option) *Manager {
	m := &Manager{
		gw:        gw,
		store:     store,
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
		listeners: make(map[int]func(*Session)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Login authenticates and replaces the current session. On any failure the
// existing session is left untouched.
func (m *Manager) Login(ctx context.Context, creds api.Credentials) (*Session, error) {
	token, err := m.gw.Login(ctx, creds)
	if err != nil {
		return nil, err
	}

	s, err := FromToken(token, creds.Email)
	if err != nil {
		return nil, err
	}
	if s.Expired(m.now()) {
		return nil, ErrExpired
	}

	m.replace(ctx, s)
	m.logger.InfoContext(ctx, "logged in", slog.String("user_id", s.UserID))
	return s.clone(), nil
}

// Register creates an account. The user still has to log in afterwards.
func (m *Manager) Register(ctx context.Context, reg api.Registration) error {
	return m.gw.Register(ctx, reg)
}

// Logout ends the session. The remote call is best effort; local state is
// always cleared.
func (m *Manager) Logout(ctx context.Context) error {
	if m.Token() != "" {
		if err := m.gw.Logout(ctx); err != nil && !errors.Is(err, api.ErrUnauthorized) {
			m.logger.WarnContext(ctx, "remote logout failed", slog.Any("error", err))
		}
	}
	m.replace(ctx, nil)
	return nil
}

// Expire drops the session after the server rejected its token.
func (m *Manager) Expire(ctx context.Context) {
	if m.replace(ctx, nil) {
		m.logger.InfoContext(ctx, "session expired by server")
	}
}

// expireStale drops s once its token expired on the client clock, unless
// the session was replaced meanwhile.
func (m *Manager) expireStale(s *Session) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	if m.current != s {
		m.mu.Unlock()
		return
	}
	m.current = nil
	m.mu.Unlock()

	ctx := context.Background()
	m.purge(ctx)
	m.notify(nil)
	m.logger.InfoContext(ctx, "session token expired", slog.String("user_id", s.UserID))
}

// Restore loads the persisted session. Missing, malformed or expired data
// results in no session and is removed from storage; only storage read
// failures are returned.
func (m *Manager) Restore(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	raw, err := m.store.Get(ctx, KeyToken)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var email string
	if b, err := m.store.Get(ctx, KeyEmail); err == nil {
		email = string(b)
	}

	s, err := FromToken(string(raw), email)
	switch {
	case err != nil:
		m.logger.WarnContext(ctx, "discarding malformed persisted session", slog.Any("error", err))
		m.purge(ctx)
		return nil
	case s.Expired(m.now()):
		m.logger.InfoContext(ctx, "discarding expired persisted session")
		m.purge(ctx)
		return nil
	}
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	m.notify(s)
	return nil
}

// Current returns a copy of the active session, or nil. A session whose
// token has expired is cleared on access.
func (m *Manager) Current() *Session {
	m.mu.RLock()
	s := m.current
	m.mu.RUnlock()

	if s == nil {
		return nil
	}
	if s.Expired(m.now()) {
		m.expireStale(s)
		return nil
	}
	return s.clone()
}

// Token returns the active access token, or "".
func (m *Manager) Token() string {
	if s := m.Current(); s != nil {
		return s.Token
	}
	return ""
}

// Subscribe registers fn to run after every session change with the new
// session (nil after logout). Listeners run in change order while further
// changes wait, so they must not log in, log out or expire the session.
// The returned func removes the listener.
func (m *Manager) Subscribe(fn func(*Session)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// replace swaps the in-memory session, mirrors it to storage and notifies
// listeners. It reports whether anything changed. Concurrent replaces are
// applied one at a time, so storage always ends up matching memory.
func (m *Manager) replace(ctx context.Context, s *Session) bool {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	prev := m.current
	m.current = s
	m.mu.Unlock()

	if prev == nil && s == nil {
		return false
	}

	if s == nil {
		m.purge(ctx)
	} else {
		m.persist(ctx, s)
	}

	m.notify(s)
	return true
}

func (m *Manager) persist(ctx context.Context, s *Session) {
	claims, _ := json.Marshal(s)

	for _, kv := range []struct {
		key string
		val []byte
	}{
		{KeyToken, []byte(s.Token)},
		{KeyEmail, []byte(s.Email)},
		{KeyUser, claims},
	} {
		if err := m.store.Set(ctx, kv.key, kv.val); err != nil {
			m.logger.ErrorContext(ctx, "session persist failed",
				slog.String("key", kv.key),
				slog.Any("error", err),
			)
		}
	}
}

func (m *Manager) purge(ctx context.Context) {
	for _, key := range []string{KeyToken, KeyEmail, KeyUser} {
		if err := m.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			m.logger.ErrorContext(ctx, "session purge failed",
				slog.String("key", key),
				slog.Any("error", err),
			)
		}
	}
}

func (m *Manager) notify(s *Session) {
	m.mu.RLock()
	fns := make([]func(*Session), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn(s.clone())
	}
}
