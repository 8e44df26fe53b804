package web

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dmitrymomot/storefront"
	"github.com/dmitrymomot/storefront/pkg/storage"
)

const refreshTimeout = time.Minute

// refresher periodically refetches the product and category lists into the
// shared query cache using an anonymous client.
type refresher struct {
	cron   *cron.Cron
	client *storefront.Client
	logger *slog.Logger
}

func newRefresher(spec, baseURL string, clientOpts []storefront.Option, logger *slog.Logger) (*refresher, error) {
	opts := append(clientOpts[:len(clientOpts):len(clientOpts)],
		storefront.WithStorage(storage.NewMemory()),
		storefront.WithPersistCart(false),
		storefront.WithPersistFavorites(false),
	)
	client, err := storefront.New(baseURL, opts...)
	if err != nil {
		return nil, err
	}

	r := &refresher{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		client: client,
		logger: logger,
	}
	if _, err := r.cron.AddFunc(spec, r.run); err != nil {
		_ = client.Close()
		return nil, err
	}
	return r, nil
}

func (r *refresher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	start := time.Now()
	if err := r.client.Catalog().Refresh(ctx); err != nil {
		r.logger.WarnContext(ctx, "catalog refresh failed", slog.Any("error", err))
		return
	}
	r.logger.DebugContext(ctx, "catalog refreshed", slog.Duration("took", time.Since(start)))
}

func (r *refresher) start() { r.cron.Start() }

// stop waits for a running refresh to finish, or for ctx.
func (r *refresher) stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	return r.client.Close()
}
