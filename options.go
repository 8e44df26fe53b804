package storefront

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/storefront/pkg/cache"
	"github.com/dmitrymomot/storefront/pkg/storage"
)

// Option configures a Client.
type Option func(*options)

type options struct {
	store            storage.Storage
	query            *cache.Query
	cacheTTL         time.Duration
	httpClient       *http.Client
	timeout          time.Duration
	authScheme       string
	logger           *slog.Logger
	persistCart      bool
	persistFavorites bool
}

func defaultOptions() *options {
	return &options{
		cacheTTL:         5 * time.Minute,
		logger:           slog.New(slog.DiscardHandler),
		persistCart:      true,
		persistFavorites: true,
	}
}

// WithStorage sets where session, cart and favorites are persisted.
// Default: in-memory storage, i.e. nothing survives the process.
func WithStorage(s storage.Storage) Option {
	return func(o *options) {
		if s != nil {
			o.store = s
		}
	}
}

// WithQuery shares a query cache between clients. Without it every client
// gets a private in-memory cache.
func WithQuery(q *cache.Query) Option {
	return func(o *options) { o.query = q }
}

// WithCacheTTL bounds how long catalog reads stay cached in the private
// query cache. Ignored with WithQuery. Default: 5 minutes.
func WithCacheTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.cacheTTL = d
		}
	}
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithTimeout bounds each API request.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithAuthScheme prefixes the token in the Authorization header.
// Default: the raw token, as the backend expects.
func WithAuthScheme(scheme string) Option {
	return func(o *options) { o.authScheme = scheme }
}

// WithLogger sets the logger passed to every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPersistCart toggles persisting the cart. Default: true.
func WithPersistCart(enabled bool) Option {
	return func(o *options) { o.persistCart = enabled }
}

// WithPersistFavorites toggles persisting favorites. Default: true.
func WithPersistFavorites(enabled bool) Option {
	return func(o *options) { o.persistFavorites = enabled }
}
