package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/storefront"
	"github.com/dmitrymomot/storefront/pkg/cache"
	"github.com/dmitrymomot/storefront/pkg/storage"
)

// visitors keeps one live client per visitor. Idle clients are evicted
// after ttl or when more than max are live. A client evicted while a
// request still holds it moves to draining: the next request for that
// visitor gets it back, otherwise the last release closes it. Close
// writes pending state and the next request rebuilds it from storage.
type visitors struct {
	live    *cache.Memory[*visitor]
	shared  storage.Storage
	opts    []storefront.Option
	baseURL string
	ttl     time.Duration
	logger  *slog.Logger

	create sync.Mutex // serializes client creation

	mu       sync.Mutex // guards leases, draining and closing; never held across live calls
	draining map[string]*visitor
	closing  map[string]chan struct{} // closed once the client has written its state
}

type visitor struct {
	id      string
	client  *storefront.Client
	refs    int
	evicted bool
	closed  bool
}

func newVisitors(baseURL string, shared storage.Storage, maxLive int, ttl time.Duration, logger *slog.Logger, opts []storefront.Option) *visitors {
	v := &visitors{
		live: cache.NewMemory[*visitor](
			cache.WithMaxEntries(maxLive),
			cache.WithDefaultTTL(ttl),
			cache.WithCleanupInterval(time.Minute),
		),
		shared:   shared,
		opts:     opts,
		baseURL:  baseURL,
		ttl:      ttl,
		logger:   logger,
		draining: make(map[string]*visitor),
		closing:  make(map[string]chan struct{}),
	}
	v.live.SetEvictCallback(v.evict)
	return v
}

// acquire returns the visitor's client, restoring it from storage on first
// use. The client stays open until release is called.
func (v *visitors) acquire(ctx context.Context, id string) (*storefront.Client, func(), error) {
	for {
		vis, err := v.lookup(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if v.lease(vis) {
			var once sync.Once
			return vis.client, func() { once.Do(func() { v.release(vis) }) }, nil
		}
		// Closed between lookup and lease; a slide may have put it back.
		_ = v.live.Delete(ctx, id)
	}
}

func (v *visitors) lookup(ctx context.Context, id string) (*visitor, error) {
	if vis, err := v.live.Get(ctx, id); err == nil {
		_ = v.live.Set(ctx, id, vis, v.ttl) // slide expiry
		return vis, nil
	}

	v.create.Lock()
	defer v.create.Unlock()

	if vis, err := v.live.Get(ctx, id); err == nil {
		return vis, nil
	}

	v.mu.Lock()
	vis, revived := v.draining[id]
	if revived {
		delete(v.draining, id)
		vis.evicted = false
	}
	flushed := v.closing[id]
	v.mu.Unlock()

	if !revived {
		if flushed != nil {
			<-flushed
		}
		opts := append([]storefront.Option{
			storefront.WithStorage(storage.Namespace(v.shared, "visitor/"+id+"/")),
		}, v.opts...)
		c, err := storefront.New(v.baseURL, opts...)
		if err != nil {
			return nil, err
		}
		if err := c.Restore(ctx); err != nil {
			v.logger.WarnContext(ctx, "visitor state restore incomplete", slog.Any("error", err))
		}
		vis = &visitor{id: id, client: c}
	}

	if err := v.live.Set(ctx, id, vis, v.ttl); err != nil {
		if !revived {
			_ = vis.client.Close()
		}
		return nil, err
	}
	return vis, nil
}

func (v *visitors) lease(vis *visitor) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if vis.closed {
		return false
	}
	vis.refs++
	return true
}

func (v *visitors) release(vis *visitor) {
	v.mu.Lock()
	vis.refs--
	last := vis.evicted && vis.refs == 0 && !vis.closed
	var done chan struct{}
	if last {
		if v.draining[vis.id] == vis {
			delete(v.draining, vis.id)
		}
		done = v.markClosed(vis)
	}
	v.mu.Unlock()

	if last {
		v.shut(vis, done)
	}
}

// evict runs when the cache drops a visitor.
func (v *visitors) evict(id string, vis *visitor) {
	v.mu.Lock()
	vis.evicted = true
	idle := vis.refs == 0 && !vis.closed
	var done chan struct{}
	switch {
	case idle:
		done = v.markClosed(vis)
	case !vis.closed:
		v.draining[id] = vis
	}
	v.mu.Unlock()

	if idle {
		v.shut(vis, done)
	}
}

// markClosed must be called with mu held.
func (v *visitors) markClosed(vis *visitor) chan struct{} {
	vis.closed = true
	done := make(chan struct{})
	v.closing[vis.id] = done
	return done
}

func (v *visitors) shut(vis *visitor, done chan struct{}) {
	if err := vis.client.Close(); err != nil {
		v.logger.Warn("visitor client close failed", slog.String("visitor_id", vis.id), slog.Any("error", err))
	}
	v.mu.Lock()
	if v.closing[vis.id] == done {
		delete(v.closing, vis.id)
	}
	v.mu.Unlock()
	close(done)
}

// len reports the number of live clients.
func (v *visitors) len() int { return v.live.Len() }

// close closes every client. Clients still leased close on release.
func (v *visitors) close() error { return v.live.Close() }

// lease pins the visitor's client for the rest of a request.
type lease struct {
	client  *storefront.Client
	release func()
}

func (l *lease) done() {
	if l.release != nil {
		l.release()
	}
}
