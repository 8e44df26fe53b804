package storefront_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/storefront"
	"github.com/dmitrymomot/storefront/pkg/api"
	"github.com/dmitrymomot/storefront/pkg/cache"
	"github.com/dmitrymomot/storefront/pkg/cart"
	"github.com/dmitrymomot/storefront/pkg/session"
	"github.com/dmitrymomot/storefront/pkg/storage"
)

var creds = api.Credentials{Email: "ann@example.com", Password: "secret1"}

func newClient(t *testing.T, b *backend, opts ...storefront.Option) *storefront.Client {
	t.Helper()

	c, err := storefront.New(b.srv.URL, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNew(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"ftp://example.com", "not a url", "/relative", "http://"} {
		_, err := storefront.New(raw)
		require.ErrorIs(t, err, storefront.ErrInvalidBaseURL, raw)
	}

	c, err := storefront.New("")
	require.NoError(t, err)
	require.Equal(t, api.DefaultBaseURL, c.API().BaseURL())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestClient_Restore(t *testing.T) {
	t.Parallel()

	t.Run("survives a restart", func(t *testing.T) {
		t.Parallel()

		b := newBackend(t)
		store, err := storage.NewFile(t.TempDir())
		require.NoError(t, err)
		ctx := context.Background()

		first, err := storefront.New(b.srv.URL, storefront.WithStorage(store))
		require.NoError(t, err)

		_, err = first.Session().Login(ctx, creds)
		require.NoError(t, err)
		_, err = first.AddToCart(ctx, "p1", 2)
		require.NoError(t, err)
		added, err := first.ToggleFavorite(ctx, "p1")
		require.NoError(t, err)
		require.True(t, added)
		require.NoError(t, first.Close())

		second := newClient(t, b, storefront.WithStorage(store))
		require.NoError(t, second.Restore(ctx))

		s := second.Session().Current()
		require.NotNil(t, s)
		require.Equal(t, "u1", s.UserID)
		require.Equal(t, "ann@example.com", s.Email)

		lines := second.Cart().Lines()
		require.Len(t, lines, 1)
		require.Equal(t, cart.Line{
			ProductID:  "p1",
			Name:       "Apple",
			UnitPrice:  1.5,
			Quantity:   2,
			StockLimit: 5,
			ImageRef:   "apple.png",
		}, lines[0])
		require.Equal(t, cart.Totals{Quantity: 2, Amount: 3}, second.Cart().Totals())
		require.True(t, second.Favorites().Has("p1"))
	})

	t.Run("discards malformed state", func(t *testing.T) {
		t.Parallel()

		b := newBackend(t)
		store := storage.NewMemory()
		ctx := context.Background()
		require.NoError(t, store.Set(ctx, storefront.KeyCart, []byte("{broken")))
		require.NoError(t, store.Set(ctx, storefront.KeyFavorites, []byte(`{"entries":[{"productId":"p1"},{"productId":"p1"}]}`)))
		require.NoError(t, store.Set(ctx, session.KeyToken, []byte("not-a-jwt")))

		c := newClient(t, b, storefront.WithStorage(store))
		require.NoError(t, c.Restore(ctx))

		require.Nil(t, c.Session().Current())
		require.Empty(t, c.Cart().Lines())
		require.Equal(t, 1, c.Favorites().Len())

		_, err := store.Get(ctx, storefront.KeyCart)
		require.ErrorIs(t, err, storage.ErrNotFound)
		_, err = store.Get(ctx, session.KeyToken)
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("empty storage is a fresh client", func(t *testing.T) {
		t.Parallel()

		c := newClient(t, newBackend(t))
		require.NoError(t, c.Restore(context.Background()))
		require.Nil(t, c.Session().Current())
		require.Empty(t, c.Cart().Lines())
		require.Zero(t, c.Favorites().Len())
	})
}

func TestClient_Persistence(t *testing.T) {
	t.Parallel()

	t.Run("close writes the latest snapshot", func(t *testing.T) {
		t.Parallel()

		b := newBackend(t)
		store := storage.NewMemory()
		ctx := context.Background()

		c, err := storefront.New(b.srv.URL, storefront.WithStorage(store))
		require.NoError(t, err)

		for range 3 {
			_, err = c.AddToCart(ctx, "p1", 1)
			require.NoError(t, err)
		}
		_, err = c.SetCartQuantity("p1", 4)
		require.NoError(t, err)
		require.NoError(t, c.Close())

		raw, err := store.Get(ctx, storefront.KeyCart)
		require.NoError(t, err)

		var snap cart.Snapshot
		require.NoError(t, json.Unmarshal(raw, &snap))
		require.Len(t, snap.Lines, 1)
		require.Equal(t, 4, snap.Lines[0].Quantity)
		require.Equal(t, cart.Totals{Quantity: 4, Amount: 6}, snap.Totals)
	})

	t.Run("disabled persistence writes nothing", func(t *testing.T) {
		t.Parallel()

		b := newBackend(t)
		store := storage.NewMemory()
		ctx := context.Background()

		c, err := storefront.New(b.srv.URL,
			storefront.WithStorage(store),
			storefront.WithPersistCart(false),
			storefront.WithPersistFavorites(false),
		)
		require.NoError(t, err)

		_, err = c.AddToCart(ctx, "p1", 1)
		require.NoError(t, err)
		_, err = c.ToggleFavorite(ctx, "p1")
		require.NoError(t, err)
		require.NoError(t, c.Close())

		require.Empty(t, store.Keys())
	})
}

func TestClient_AddToCart(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	c := newClient(t, b)
	ctx := context.Background()

	_, err := c.AddToCart(ctx, "p2", 1)
	require.ErrorIs(t, err, storefront.ErrUnavailable, "out of stock")

	_, err = c.AddToCart(ctx, "p3", 1)
	require.ErrorIs(t, err, storefront.ErrUnavailable, "deleted")

	_, err = c.AddToCart(ctx, "missing", 1)
	require.ErrorIs(t, err, api.ErrNotFound)

	_, err = c.AddToCart(ctx, "p1", 0)
	require.ErrorIs(t, err, cart.ErrInvalidLine)

	_, err = c.AddToCart(ctx, "p1", 6)
	require.ErrorIs(t, err, storefront.ErrExceedsStock)

	snap, err := c.AddToCart(ctx, "p1", 3)
	require.NoError(t, err)
	require.Equal(t, 3, snap.Totals.Quantity)

	_, err = c.AddToCart(ctx, "p1", 3)
	require.ErrorIs(t, err, storefront.ErrExceedsStock, "merged quantity")

	_, err = c.SetCartQuantity("p1", 6)
	require.ErrorIs(t, err, storefront.ErrExceedsStock)

	snap, err = c.SetCartQuantity("p1", 0)
	require.NoError(t, err)
	require.Empty(t, snap.Lines)

	_, err = c.SetCartQuantity("p1", 1)
	require.ErrorIs(t, err, cart.ErrNotInCart)

	require.Equal(t, int64(4), b.productCalls.Load(), "one fetch per distinct product")
}

func TestClient_AddToCart_Concurrent(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	c := newClient(t, b)
	ctx := context.Background()

	// Prime the cache so every add reaches the cart at about the same time.
	_, err := c.Catalog().Product(ctx, "p1")
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for range 10 {
		wg.Go(func() {
			_, err := c.AddToCart(ctx, "p1", 2)
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, storefront.ErrExceedsStock)
		})
	}
	wg.Wait()

	require.Equal(t, 2, accepted)
	require.Equal(t, 4, c.Cart().Totals().Quantity, "stock of 5 allows two adds of 2")
}

func TestClient_ToggleFavorite(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	c := newClient(t, b)
	ctx := context.Background()

	added, err := c.ToggleFavorite(ctx, "p1")
	require.NoError(t, err)
	require.True(t, added)
	require.Equal(t, "Apple", c.Favorites().Entries()[0].Name)

	// Removing must not need the product.
	require.NoError(t, c.Catalog().Invalidate(ctx, cache.TypeTag(storefront.TypeProducts)))
	added, err = c.ToggleFavorite(ctx, "p1")
	require.NoError(t, err)
	require.False(t, added)
	require.Equal(t, int64(1), b.productCalls.Load())

	_, err = c.ToggleFavorite(ctx, "missing")
	require.ErrorIs(t, err, api.ErrNotFound)
	require.Zero(t, c.Favorites().Len())
}

func TestClient_Unauthorized(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	store := storage.NewMemory()
	c := newClient(t, b, storefront.WithStorage(store))
	ctx := context.Background()

	var mu sync.Mutex
	var seen []*session.Session
	unsub := c.Session().Subscribe(func(s *session.Session) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	defer unsub()

	_, err := c.Session().Login(ctx, creds)
	require.NoError(t, err)

	u, err := c.Catalog().Profile(ctx)
	require.NoError(t, err)
	require.Equal(t, "Ann", u.Name)
	require.Equal(t, b.token, b.lastAuth.Load(), "raw token, no scheme")

	b.expireTokens()
	_, err = c.Catalog().CreateCategory(ctx, api.CategoryInput{Name: "Veg"})
	require.ErrorIs(t, err, api.ErrUnauthorized)

	require.Nil(t, c.Session().Current())
	_, err = store.Get(ctx, session.KeyToken)
	require.ErrorIs(t, err, storage.ErrNotFound)

	mu.Lock()
	require.Len(t, seen, 2)
	require.NotNil(t, seen[0])
	require.Nil(t, seen[1])
	mu.Unlock()

	// The dropped user's profile is no longer served from cache.
	require.Equal(t, cache.StateInvalidated, c.Catalog().State("profile/u1"))
	_, err = c.Catalog().Profile(ctx)
	require.ErrorIs(t, err, api.ErrUnauthorized)
	require.Equal(t, int64(1), b.profileCalls.Load())
}

func TestClient_SharedQuery(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	store := cache.NewMemory[[]byte](cache.WithCleanupInterval(0))
	t.Cleanup(func() { _ = store.Close() })
	q := cache.NewQuery(store, cache.WithQueryTTL(time.Minute))

	alice := newClient(t, b, storefront.WithQuery(q))
	bob := newClient(t, b, storefront.WithQuery(q))
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, c := range []*storefront.Client{alice, bob, alice, bob} {
		wg.Go(func() {
			_, err := c.Catalog().Categories(ctx)
			assert.NoError(t, err)
		})
	}
	wg.Wait()
	require.Equal(t, int64(1), b.categoryCalls.Load())

	_, err := alice.Session().Login(ctx, creds)
	require.NoError(t, err)
	_, err = alice.Catalog().CreateCategory(ctx, api.CategoryInput{Name: "Veg"})
	require.NoError(t, err)

	cats, err := bob.Catalog().Categories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	require.Equal(t, int64(2), b.categoryCalls.Load())
}

func TestClient_SharedQuery_MixedIdentities(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	store := cache.NewMemory[[]byte](cache.WithCleanupInterval(0))
	t.Cleanup(func() { _ = store.Close() })
	q := cache.NewQuery(store, cache.WithQueryTTL(time.Minute))

	alice := newClient(t, b, storefront.WithQuery(q))
	bob := newClient(t, b, storefront.WithQuery(q))
	ctx := context.Background()

	_, err := alice.Session().Login(ctx, creds)
	require.NoError(t, err)
	b.expireTokens()

	b.release = make(chan struct{})
	results := make([]error, 2)
	var wg sync.WaitGroup
	wg.Go(func() {
		_, results[0] = alice.Catalog().Product(ctx, "p1")
	})
	require.Eventually(t, func() bool { return b.productCalls.Load() == 1 }, time.Second, time.Millisecond)
	wg.Go(func() {
		_, results[1] = bob.Catalog().Product(ctx, "p1")
	})
	time.Sleep(20 * time.Millisecond)
	close(b.release)
	wg.Wait()

	require.NoError(t, results[0])
	require.NoError(t, results[1], "an anonymous visitor never gets another visitor's rejection")
	require.Equal(t, int64(1), b.productCalls.Load())
	require.NotNil(t, alice.Session().Current(), "public reads on a shared cache carry no credentials")

	t.Run("profiles are fetched per token", func(t *testing.T) {
		b.mu.Lock()
		b.rejectAuth = false
		b.mu.Unlock()

		_, err := bob.Session().Login(ctx, creds)
		require.NoError(t, err)

		_, err = alice.Catalog().Profile(ctx)
		require.NoError(t, err)
		_, err = bob.Catalog().Profile(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(1), b.profileCalls.Load(), "same user and token share the cached profile")
	})
}
