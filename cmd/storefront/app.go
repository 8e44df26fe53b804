package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/storefront"
	"github.com/dmitrymomot/storefront/internal/config"
	"github.com/dmitrymomot/storefront/internal/web"
	"github.com/dmitrymomot/storefront/pkg/cache"
	"github.com/dmitrymomot/storefront/pkg/logger"
	"github.com/dmitrymomot/storefront/pkg/redis"
	"github.com/dmitrymomot/storefront/pkg/storage"
)

const flushTimeout = 2 * time.Second

// app carries what every command needs. Commands that talk to the API get
// a restored client; serve builds its own backends.
type app struct {
	cfg    config.Config
	loader *config.Loader
	logger *slog.Logger
	out    io.Writer

	client  *storefront.Client
	redis   goredis.UniversalClient
	closers []func(context.Context) error
	flush   func(time.Duration)
}

func (a *app) setup(cmd *cobra.Command, file string) error {
	cfg, err := a.loader.Load(file)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger, a.flush = logger.New(logger.Config{
		Level:             cfg.Log.Level,
		Format:            cfg.Log.Format,
		Output:            cmd.ErrOrStderr(),
		SentryDSN:         cfg.Sentry.DSN,
		SentryEnvironment: cfg.Sentry.Environment,
	}, web.RequestIDExtractor(), web.VisitorIDExtractor())
	return nil
}

// openClient builds the API client on the configured storage and restores
// the persisted state.
func (a *app) openClient(ctx context.Context) (*storefront.Client, error) {
	store, err := a.openStorage(ctx)
	if err != nil {
		return nil, err
	}

	c, err := storefront.New(a.cfg.API.BaseURL,
		storefront.WithStorage(store),
		storefront.WithCacheTTL(a.cfg.Cache.TTL),
		storefront.WithTimeout(a.cfg.API.Timeout),
		storefront.WithAuthScheme(a.cfg.API.AuthScheme),
		storefront.WithLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}
	if err := c.Restore(ctx); err != nil {
		a.logger.WarnContext(ctx, "restore incomplete", slog.Any("error", err))
	}

	a.client = c
	a.closers = append(a.closers, func(context.Context) error { return c.Close() })
	return c, nil
}

func (a *app) openRedis(ctx context.Context) (goredis.UniversalClient, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	client, err := redis.Open(ctx, a.cfg.Redis.URL, redis.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	a.redis = client
	a.closers = append(a.closers, redis.Shutdown(client))
	return client, nil
}

func (a *app) openStorage(ctx context.Context) (storage.Storage, error) {
	switch a.cfg.Storage.Driver {
	case "memory":
		return storage.NewMemory(), nil
	case "redis":
		client, err := a.openRedis(ctx)
		if err != nil {
			return nil, err
		}
		return storage.NewRedis(client, "storefront", a.cfg.Server.StateTTL), nil
	case "s3":
		return storage.NewS3(storage.S3Config{
			Bucket:    a.cfg.S3.Bucket,
			AccessKey: a.cfg.S3.AccessKey,
			SecretKey: a.cfg.S3.SecretKey,
			Endpoint:  a.cfg.S3.Endpoint,
			Region:    a.cfg.S3.Region,
			Prefix:    "storefront",
			PathStyle: a.cfg.S3.PathStyle,
		})
	default:
		return storage.NewFile(a.cfg.Storage.Dir)
	}
}

// openQuery builds the query cache shared by every serve-mode visitor.
func (a *app) openQuery(ctx context.Context) (*cache.Query, error) {
	var store cache.Cache[[]byte]
	switch a.cfg.Cache.Driver {
	case "redis":
		client, err := a.openRedis(ctx)
		if err != nil {
			return nil, err
		}
		store = cache.NewRedis(client, cache.Bytes(),
			cache.WithPrefix("storefront:query"),
			cache.WithRedisDefaultTTL(a.cfg.Cache.TTL),
		)
	default:
		store = cache.NewMemory[[]byte](
			cache.WithDefaultTTL(a.cfg.Cache.TTL),
			cache.WithMaxEntries(a.cfg.Cache.MaxEntries),
		)
	}
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })

	return cache.NewQuery(store,
		cache.WithQueryTTL(a.cfg.Cache.TTL),
		cache.WithQueryLogger(a.logger),
	), nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil

	if a.flush != nil {
		a.flush(flushTimeout)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
