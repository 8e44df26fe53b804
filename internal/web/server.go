package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/storefront"
	"github.com/dmitrymomot/storefront/pkg/cache"
	"github.com/dmitrymomot/storefront/pkg/cookie"
	"github.com/dmitrymomot/storefront/pkg/storage"
)

// VisitorCookie names the signed cookie carrying the visitor ID.
const VisitorCookie = "sf_visitor"

const (
	readTimeout       = 15 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 120 * time.Second
	readHeaderTimeout = 5 * time.Second
	maxHeaderBytes    = 1 << 20
)

var ErrNoQuery = errors.New("web: a shared query cache is required")

// Option configures a Server.
type Option func(*config)

type config struct {
	addr            string
	baseURL         string
	store           storage.Storage
	clientOpts      []storefront.Option
	checks          map[string]CheckFunc
	logger          *slog.Logger
	refresh         string
	maxVisitors     int
	visitorTTL      time.Duration
	cookieMaxAge    time.Duration
	requestTimeout  time.Duration
	shutdownTimeout time.Duration
}

// WithAddr sets the listen address. Default: ":8080".
func WithAddr(addr string) Option {
	return func(c *config) { c.addr = addr }
}

// WithAPI sets the upstream API base URL.
func WithAPI(baseURL string) Option {
	return func(c *config) { c.baseURL = baseURL }
}

// WithStorage sets the backend holding every visitor's state.
// Default: in-memory.
func WithStorage(s storage.Storage) Option {
	return func(c *config) { c.store = s }
}

// WithClientOptions appends options for every visitor client.
func WithClientOptions(opts ...storefront.Option) Option {
	return func(c *config) { c.clientOpts = append(c.clientOpts, opts...) }
}

// WithCheck adds a named readiness check to /healthz.
func WithCheck(name string, fn CheckFunc) Option {
	return func(c *config) { c.checks[name] = fn }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRefresh sets the cron spec of the catalog refresh. Empty disables it.
// Default: "@every 5m".
func WithRefresh(spec string) Option {
	return func(c *config) { c.refresh = spec }
}

// WithMaxVisitors bounds the number of live visitor clients. Default: 10000.
func WithMaxVisitors(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxVisitors = n
		}
	}
}

// WithVisitorTTL sets how long an idle visitor client stays live.
// Default: 30 minutes.
func WithVisitorTTL(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.visitorTTL = d
		}
	}
}

// WithRequestTimeout bounds each request. Default: 30 seconds.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// Server is the backend-for-frontend HTTP server.
type Server struct {
	cfg      config
	cookies  *cookie.Manager
	query    *cache.Query
	visitors *visitors
	refresh  *refresher
	router   chi.Router
	logger   *slog.Logger
}

// New builds a Server. All visitors read the catalog through query.
func New(cookies *cookie.Manager, query *cache.Query, opts ...Option) (*Server, error) {
	if query == nil {
		return nil, ErrNoQuery
	}

	cfg := config{
		addr:            ":8080",
		checks:          make(map[string]CheckFunc),
		logger:          slog.New(slog.DiscardHandler),
		refresh:         "@every 5m",
		maxVisitors:     10000,
		visitorTTL:      30 * time.Minute,
		cookieMaxAge:    365 * 24 * time.Hour,
		requestTimeout:  30 * time.Second,
		shutdownTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.store == nil {
		cfg.store = storage.NewMemory()
	}

	clientOpts := append([]storefront.Option{
		storefront.WithQuery(query),
		storefront.WithLogger(cfg.logger),
	}, cfg.clientOpts...)

	s := &Server{
		cfg:      cfg,
		cookies:  cookies,
		query:    query,
		visitors: newVisitors(cfg.baseURL, cfg.store, cfg.maxVisitors, cfg.visitorTTL, cfg.logger, clientOpts),
		logger:   cfg.logger,
	}

	if cfg.refresh != "" {
		r, err := newRefresher(cfg.refresh, cfg.baseURL, clientOpts, cfg.logger)
		if err != nil {
			_ = s.visitors.close()
			return nil, err
		}
		s.refresh = r
	}

	s.router = s.routes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID, middleware.RealIP, s.requestLogger, s.recoverer, timeout(s.cfg.requestTimeout))
	r.NotFound(s.handle(func(http.ResponseWriter, *http.Request) error {
		return &HTTPError{Code: http.StatusNotFound, Message: "route not found"}
	}))
	r.MethodNotAllowed(s.handle(func(http.ResponseWriter, *http.Request) error {
		return &HTTPError{Code: http.StatusMethodNotAllowed, Message: "method not allowed"}
	}))

	r.Get("/healthz", s.healthz)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.visitor)

		r.Get("/products", s.handle(s.listProducts))
		r.Get("/products/{id}", s.handle(s.getProduct))
		r.Get("/categories", s.handle(s.listCategories))
		r.Get("/categories/{id}", s.handle(s.getCategory))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.handle(s.login))
			r.Post("/register", s.handle(s.register))
			r.Post("/logout", s.handle(s.logout))
			r.Get("/session", s.handle(s.currentSession))
			r.Get("/profile", s.handle(s.profile))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", s.handle(s.showCart))
			r.Delete("/", s.handle(s.clearCart))
			r.Post("/items", s.handle(s.addCartItem))
			r.Put("/items/{id}", s.handle(s.setCartItem))
			r.Delete("/items/{id}", s.handle(s.removeCartItem))
		})

		r.Route("/favorites", func(r chi.Router) {
			r.Get("/", s.handle(s.listFavorites))
			r.Delete("/", s.handle(s.clearFavorites))
			r.Post("/{id}/toggle", s.handle(s.toggleFavorite))
			r.Delete("/{id}", s.handle(s.removeFavorite))
		})
	})

	return r
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully: it stops
// accepting requests, stops the refresher and closes every visitor client.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server starting", slog.String("address", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if s.refresh != nil {
		s.refresh.start()
	}

	g.Go(func() error {
		<-gctx.Done()

		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if s.refresh != nil {
			if err := s.refresh.stop(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		if err := s.visitors.close(); err != nil {
			errs = append(errs, err)
		}

		if err := errors.Join(errs...); err != nil {
			s.logger.Error("shutdown completed with errors", slog.Any("error", err))
			return err
		}
		s.logger.Info("shutdown completed")
		return nil
	})

	return g.Wait()
}
