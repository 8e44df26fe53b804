package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sync"

	"github.com/dmitrymomot/storefront/pkg/api"
	"github.com/dmitrymomot/storefront/pkg/cache"
	"github.com/dmitrymomot/storefront/pkg/cart"
	"github.com/dmitrymomot/storefront/pkg/favorites"
	"github.com/dmitrymomot/storefront/pkg/session"
	"github.com/dmitrymomot/storefront/pkg/storage"
)

var (
	// ErrInvalidBaseURL is returned by New for a base URL that is not an
	// absolute http(s) URL.
	ErrInvalidBaseURL = errors.New("storefront: invalid API base URL")

	// ErrUnavailable is returned when a deleted or out-of-stock product is
	// added to the cart.
	ErrUnavailable = errors.New("storefront: product unavailable")

	// ErrExceedsStock is returned when a cart quantity would exceed the
	// product's stock.
	ErrExceedsStock = errors.New("storefront: quantity exceeds stock")
)

// Client is the state core for one shopper.
type Client struct {
	api       *api.Client
	sessions  *session.Manager
	cart      *cart.Cart
	favorites *favorites.Set
	catalog   *Catalog

	store     storage.Storage
	logger    *slog.Logger
	writer    *writer
	ownCache  cache.Cache[[]byte]
	unsub     func()
	closeOnce sync.Once
	closeErr  error

	mu       sync.Mutex
	lastUser string
}

// New wires a Client. An empty baseURL selects api.DefaultBaseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
		}
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.store == nil {
		o.store = storage.NewMemory()
	}

	c := &Client{
		cart:      cart.New(),
		favorites: favorites.New(),
		store:     o.store,
		logger:    o.logger,
	}

	transport := []api.Option{api.WithLogger(o.logger)}
	if o.httpClient != nil {
		transport = append(transport, api.WithHTTPClient(o.httpClient))
	}
	if o.timeout > 0 {
		transport = append(transport, api.WithTimeout(o.timeout))
	}

	c.api = api.New(baseURL, append(slices.Clone(transport),
		api.WithAuthScheme(o.authScheme),
		api.WithTokenSource(func() string { return c.sessions.Token() }),
		api.WithUnauthorizedHandler(func(ctx context.Context) { c.sessions.Expire(ctx) }),
	)...)
	c.sessions = session.NewManager(c.api, o.store, session.WithLogger(o.logger))

	c.catalog = &Catalog{api: c.api, reads: c.api, query: o.query, sessions: c.sessions, logger: o.logger}
	if o.query == nil {
		c.ownCache = cache.NewMemory[[]byte](cache.WithDefaultTTL(o.cacheTTL))
		c.catalog.query = cache.NewQuery(c.ownCache, cache.WithQueryTTL(o.cacheTTL), cache.WithQueryLogger(o.logger))
	} else {
		// A flight on a shared query answers every client that joins it, so
		// public reads go out without anyone's credentials.
		c.catalog.reads = api.New(baseURL, transport...)
		c.catalog.shared = true
	}

	c.unsub = c.sessions.Subscribe(c.sessionChanged)

	if o.persistCart || o.persistFavorites {
		c.writer = newWriter(o.store, o.logger)
	}
	if o.persistCart {
		c.cart.OnChange(func(s cart.Snapshot) { c.writer.enqueue(KeyCart, s.Version, s) })
	}
	if o.persistFavorites {
		c.favorites.OnChange(func(s favorites.Snapshot) { c.writer.enqueue(KeyFavorites, s.Version, s) })
	}

	return c, nil
}

// API returns the authenticated API client.
func (c *Client) API() *api.Client { return c.api }

// Session returns the session manager.
func (c *Client) Session() *session.Manager { return c.sessions }

// Cart returns the cart store.
func (c *Client) Cart() *cart.Cart { return c.cart }

// Favorites returns the favorites store.
func (c *Client) Favorites() *favorites.Set { return c.favorites }

// Catalog returns the cached catalog reader.
func (c *Client) Catalog() *Catalog { return c.catalog }

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Storage returns the durable storage backing the client.
func (c *Client) Storage() storage.Storage { return c.store }

// Restore rehydrates the session, cart and favorites from storage.
// Malformed stored state is discarded; only storage read failures are
// returned.
func (c *Client) Restore(ctx context.Context) error {
	var errs []error

	if err := c.sessions.Restore(ctx); err != nil {
		errs = append(errs, fmt.Errorf("restore session: %w", err))
	}

	var cs cart.Snapshot
	switch ok, err := c.load(ctx, KeyCart, &cs); {
	case err != nil:
		errs = append(errs, fmt.Errorf("restore cart: %w", err))
	case ok:
		c.cart.Restore(cs)
	}

	var fs favorites.Snapshot
	switch ok, err := c.load(ctx, KeyFavorites, &fs); {
	case err != nil:
		errs = append(errs, fmt.Errorf("restore favorites: %w", err))
	case ok:
		c.favorites.Restore(fs)
	}

	return errors.Join(errs...)
}

// load decodes key into v. It reports false when the key is missing or
// held malformed data, which is then removed.
func (c *Client) load(ctx context.Context, key string, v any) (bool, error) {
	raw, err := c.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal(raw, v); err != nil {
		c.logger.WarnContext(ctx, "discarding malformed persisted state",
			slog.String("key", key),
			slog.Any("error", err),
		)
		if err := c.store.Delete(ctx, key); err != nil {
			c.logger.WarnContext(ctx, "delete malformed state failed", slog.String("key", key), slog.Any("error", err))
		}
		return false, nil
	}
	return true, nil
}

// AddToCart adds qty of a product, taking its name, price, stock and image
// from the catalog. The merged quantity must stay within stock.
func (c *Client) AddToCart(ctx context.Context, productID string, qty int) (cart.Snapshot, error) {
	if qty <= 0 {
		return cart.Snapshot{}, cart.ErrInvalidLine
	}

	p, err := c.catalog.Product(ctx, productID)
	if err != nil {
		return cart.Snapshot{}, err
	}
	if p.IsDeleted || p.Stock <= 0 {
		return cart.Snapshot{}, ErrUnavailable
	}

	line := cart.Line{
		ProductID:  p.ID,
		Name:       p.Name,
		UnitPrice:  p.Price,
		Quantity:   qty,
		StockLimit: p.Stock,
		ImageRef:   p.Image(),
	}
	if err := c.cart.AddItemWithin(line, p.Stock); err != nil {
		if errors.Is(err, cart.ErrOverLimit) {
			return cart.Snapshot{}, ErrExceedsStock
		}
		return cart.Snapshot{}, err
	}
	return c.cart.Snapshot(), nil
}

// SetCartQuantity sets a line's quantity within its stock limit. A
// quantity ≤ 0 removes the line.
func (c *Client) SetCartQuantity(productID string, qty int) (cart.Snapshot, error) {
	if err := c.cart.SetQuantityWithinStock(productID, qty); err != nil {
		if errors.Is(err, cart.ErrOverLimit) {
			return cart.Snapshot{}, ErrExceedsStock
		}
		return cart.Snapshot{}, err
	}
	return c.cart.Snapshot(), nil
}

// ToggleFavorite flips a product's favorite status. Adding fetches the
// product for its display fields; removing does not touch the network.
func (c *Client) ToggleFavorite(ctx context.Context, productID string) (bool, error) {
	if c.favorites.Has(productID) {
		return c.favorites.Toggle(favorites.Entry{ProductID: productID})
	}

	p, err := c.catalog.Product(ctx, productID)
	if err != nil {
		return false, err
	}
	return c.favorites.Toggle(favorites.Entry{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		ImageRef:  p.Image(),
	})
}

// Close writes pending snapshots, stops the background writer and releases
// the private cache. Changes made after Close are persisted synchronously.
// It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.unsub()
		if c.writer != nil {
			c.writer.close()
		}
		if c.ownCache != nil {
			c.closeErr = c.ownCache.Close()
		}
	})
	return c.closeErr
}

// sessionChanged drops the cached profile of the user that just logged out
// or was replaced.
func (c *Client) sessionChanged(s *session.Session) {
	next := ""
	if s != nil {
		next = s.UserID
	}

	c.mu.Lock()
	prev := c.lastUser
	c.lastUser = next
	c.mu.Unlock()

	if prev == "" || prev == next {
		return
	}
	c.catalog.invalidate(context.Background(), cache.IDTag(TypeUser, prev))
}
