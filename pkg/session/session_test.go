package session_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/storefront/pkg/api"
	"github.com/dmitrymomot/storefront/pkg/session"
	"github.com/dmitrymomot/storefront/pkg/storage"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func signToken(t *testing.T, userID, email string, exp time.Time) string {
	t.Helper()

	claims := session.Claims{
		UserID: userID,
		Email:  email,
		Role:   "customer",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	require.NoError(t, err)
	return tok
}

type fakeGateway struct {
	mu        sync.Mutex
	token     string
	loginErr  error
	logoutErr error
	logouts   int
	registers []api.Registration
}

func (g *fakeGateway) Login(context.Context, api.Credentials) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.token, g.loginErr
}

func (g *fakeGateway) Register(_ context.Context, reg api.Registration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.registers = append(g.registers, reg)
	return nil
}

func (g *fakeGateway) Logout(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.logouts++
	return g.logoutErr
}

func newManager(gw session.Gateway, store storage.Storage) *session.Manager {
	return session.NewManager(gw, store, session.WithClock(func() time.Time { return now }))
}

var creds = api.Credentials{Email: "ann@example.com", Password: "secret1"}

func TestDecodeToken(t *testing.T) {
	t.Parallel()

	tok := signToken(t, "u1", "ann@example.com", now.Add(time.Hour))
	claims, err := session.DecodeToken(tok)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserID)
	require.Equal(t, "customer", claims.Role)
	require.Equal(t, now.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())

	for _, bad := range []string{"", "garbage", "a.b.c", "eyJhbGciOiJIUzI1NiJ9.bm90LWpzb24.sig"} {
		_, err := session.DecodeToken(bad)
		require.ErrorIs(t, err, session.ErrInvalidToken, bad)
	}
}

func TestManager_Login(t *testing.T) {
	t.Parallel()

	t.Run("stores session in memory and storage", func(t *testing.T) {
		t.Parallel()

		tok := signToken(t, "u1", "", now.Add(time.Hour))
		store := storage.NewMemory()
		m := newManager(&fakeGateway{token: tok}, store)

		s, err := m.Login(context.Background(), creds)
		require.NoError(t, err)
		require.Equal(t, "u1", s.UserID)
		require.Equal(t, "ann@example.com", s.Email, "falls back to the submitted email")
		require.Equal(t, now.Add(time.Hour).Unix(), s.ExpiresAt.Unix())
		require.Equal(t, tok, m.Token())

		stored, err := store.Get(context.Background(), session.KeyToken)
		require.NoError(t, err)
		require.Equal(t, tok, string(stored))

		raw, err := store.Get(context.Background(), session.KeyUser)
		require.NoError(t, err)
		var user map[string]any
		require.NoError(t, json.Unmarshal(raw, &user))
		require.Equal(t, "u1", user["userId"])
		require.NotContains(t, user, "Token")
	})

	t.Run("failure leaves existing session untouched", func(t *testing.T) {
		t.Parallel()

		tok := signToken(t, "u1", "ann@example.com", now.Add(time.Hour))
		gw := &fakeGateway{token: tok}
		m := newManager(gw, storage.NewMemory())
		_, err := m.Login(context.Background(), creds)
		require.NoError(t, err)

		gw.loginErr = &api.Error{Kind: api.ErrNetwork}
		_, err = m.Login(context.Background(), creds)
		require.ErrorIs(t, err, api.ErrNetwork)
		require.Equal(t, tok, m.Token())

		gw.loginErr = nil
		gw.token = "not-a-jwt"
		_, err = m.Login(context.Background(), creds)
		require.ErrorIs(t, err, session.ErrInvalidToken)
		require.Equal(t, tok, m.Token())
	})

	t.Run("rejects an already expired token", func(t *testing.T) {
		t.Parallel()

		gw := &fakeGateway{token: signToken(t, "u1", "a@b.co", now.Add(-time.Second))}
		m := newManager(gw, storage.NewMemory())

		_, err := m.Login(context.Background(), creds)
		require.ErrorIs(t, err, session.ErrExpired)
		require.Nil(t, m.Current())
	})
}

func TestManager_Register(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	m := newManager(gw, storage.NewMemory())

	reg := api.Registration{Name: "Ann", Email: "ann@example.com", Password: "secret1"}
	require.NoError(t, m.Register(context.Background(), reg))
	require.Equal(t, []api.Registration{reg}, gw.registers)
	require.Nil(t, m.Current(), "registration requires an explicit login")
}

func TestManager_Logout(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		token:     signToken(t, "u1", "a@b.co", now.Add(time.Hour)),
		logoutErr: errors.New("connection reset"),
	}
	store := storage.NewMemory()
	m := newManager(gw, store)
	ctx := context.Background()

	_, err := m.Login(ctx, creds)
	require.NoError(t, err)

	require.NoError(t, m.Logout(ctx))
	require.Nil(t, m.Current())
	require.Empty(t, store.Keys())
	require.Equal(t, 1, gw.logouts)

	// Logging out without a session skips the remote call.
	require.NoError(t, m.Logout(ctx))
	require.Equal(t, 1, gw.logouts)
}

func TestManager_ExpireOn401(t *testing.T) {
	t.Parallel()

	tok := signToken(t, "u1", "a@b.co", now.Add(time.Hour))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/login" {
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]string{"accessToken": tok}})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "token revoked"})
	}))
	t.Cleanup(srv.Close)

	store := storage.NewMemory()
	var m *session.Manager
	client := api.New(srv.URL,
		api.WithTokenSource(func() string { return m.Token() }),
		api.WithUnauthorizedHandler(func(ctx context.Context) { m.Expire(ctx) }),
	)
	m = newManager(client, store)
	ctx := context.Background()

	var seen []*session.Session
	unsubscribe := m.Subscribe(func(s *session.Session) { seen = append(seen, s) })
	defer unsubscribe()

	_, err := m.Login(ctx, creds)
	require.NoError(t, err)

	_, err = client.Profile(ctx)
	require.ErrorIs(t, err, api.ErrUnauthorized)

	require.Nil(t, m.Current())
	_, err = store.Get(ctx, session.KeyToken)
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.Len(t, seen, 2)
	require.NotNil(t, seen[0])
	require.Nil(t, seen[1])
}

func TestManager_Restore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("restores a valid session", func(t *testing.T) {
		t.Parallel()

		tok := signToken(t, "u1", "ann@example.com", now.Add(time.Hour))
		store := storage.NewMemory()
		first := newManager(&fakeGateway{token: tok}, store)
		_, err := first.Login(ctx, creds)
		require.NoError(t, err)

		restarted := newManager(&fakeGateway{}, store)
		require.NoError(t, restarted.Restore(ctx))

		s := restarted.Current()
		require.NotNil(t, s)
		require.Equal(t, "ann@example.com", s.Email)
		require.Equal(t, tok, s.Token)
	})

	t.Run("nothing persisted", func(t *testing.T) {
		t.Parallel()

		m := newManager(&fakeGateway{}, storage.NewMemory())
		require.NoError(t, m.Restore(ctx))
		require.Nil(t, m.Current())
	})

	t.Run("corrupted data is discarded", func(t *testing.T) {
		t.Parallel()

		store := storage.NewMemory()
		require.NoError(t, store.Set(ctx, session.KeyToken, []byte("\x00corrupt")))
		require.NoError(t, store.Set(ctx, session.KeyUser, []byte("{not json")))

		m := newManager(&fakeGateway{}, store)
		require.NoError(t, m.Restore(ctx))
		require.Nil(t, m.Current())
		require.Empty(t, store.Keys())
	})

	t.Run("expired token is discarded", func(t *testing.T) {
		t.Parallel()

		store := storage.NewMemory()
		require.NoError(t, store.Set(ctx, session.KeyToken, []byte(signToken(t, "u1", "a@b.co", now.Add(-time.Hour)))))

		m := newManager(&fakeGateway{}, store)
		require.NoError(t, m.Restore(ctx))
		require.Nil(t, m.Current())
		require.Empty(t, store.Keys())
	})
}

func TestManager_LazyExpiry(t *testing.T) {
	t.Parallel()

	clock := now
	var mu sync.Mutex
	var logs bytes.Buffer
	store := storage.NewMemory()
	m := session.NewManager(
		&fakeGateway{token: signToken(t, "u1", "a@b.co", now.Add(time.Minute))},
		store,
		session.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		session.WithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return clock
		}),
	)

	_, err := m.Login(context.Background(), creds)
	require.NoError(t, err)
	require.NotEmpty(t, m.Token())

	mu.Lock()
	clock = clock.Add(2 * time.Minute)
	mu.Unlock()

	require.Empty(t, m.Token())
	require.Nil(t, m.Current())
	require.Empty(t, store.Keys())
	require.Contains(t, logs.String(), "session token expired")
	require.NotContains(t, logs.String(), "by server")
}

// blockingStore holds the first token write until release is closed.
type blockingStore struct {
	*storage.Memory
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) Set(ctx context.Context, key string, value []byte) error {
	if key == session.KeyToken {
		s.once.Do(func() {
			close(s.entered)
			<-s.release
		})
	}
	return s.Memory.Set(ctx, key, value)
}

func TestManager_ExpireDuringLogin(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &blockingStore{
		Memory:  storage.NewMemory(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	m := newManager(&fakeGateway{token: signToken(t, "u1", "a@b.co", now.Add(time.Hour))}, store)

	loggedIn := make(chan error, 1)
	go func() {
		_, err := m.Login(ctx, creds)
		loggedIn <- err
	}()
	<-store.entered

	expired := make(chan struct{})
	go func() {
		m.Expire(ctx)
		close(expired)
	}()

	select {
	case <-expired:
		t.Fatal("expire finished while the login was still being written")
	case <-time.After(20 * time.Millisecond):
	}

	close(store.release)
	require.NoError(t, <-loggedIn)
	<-expired

	require.Nil(t, m.Current())
	_, err := store.Get(ctx, session.KeyToken)
	require.ErrorIs(t, err, storage.ErrNotFound)

	restarted := newManager(&fakeGateway{}, store)
	require.NoError(t, restarted.Restore(ctx))
	require.Nil(t, restarted.Current(), "a rejected session must not come back after a restart")
}

func TestManager_ConcurrentChanges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemory()
	m := newManager(&fakeGateway{token: signToken(t, "u1", "a@b.co", now.Add(time.Hour))}, store)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Go(func() {
			if i%2 == 0 {
				_, _ = m.Login(ctx, creds)
			} else {
				m.Expire(ctx)
			}
		})
	}
	wg.Wait()

	_, err := store.Get(ctx, session.KeyToken)
	if m.Current() == nil {
		require.ErrorIs(t, err, storage.ErrNotFound)
	} else {
		require.NoError(t, err)
	}
}
