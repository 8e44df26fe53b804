package storefront

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/storefront/pkg/storage"
)

// Durable storage keys for write-behind state.
const (
	KeyCart      = "cart/lines"
	KeyFavorites = "favorites/entries"
)

// writeTimeout bounds one background storage write.
const writeTimeout = 10 * time.Second

type pendingWrite struct {
	data    []byte
	version uint64
}

// writer persists snapshots in the background. Bursts of changes to the
// same key collapse into one write of the newest snapshot; snapshots older
// than one already queued or written are dropped.
type writer struct {
	store  storage.Storage
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]pendingWrite
	seen    map[string]uint64
	flushMu sync.Mutex // keeps batches in version order

	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

func newWriter(store storage.Storage, logger *slog.Logger) *writer {
	w := &writer{
		store:   store,
		logger:  logger,
		pending: make(map[string]pendingWrite),
		seen:    make(map[string]uint64),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *writer) enqueue(key string, version uint64, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.logger.Error("snapshot encode failed", slog.String("key", key), slog.Any("error", err))
		return
	}

	w.mu.Lock()
	if version <= w.seen[key] {
		w.mu.Unlock()
		return
	}
	w.seen[key] = version
	w.pending[key] = pendingWrite{data: data, version: version}
	w.mu.Unlock()

	select {
	case <-w.stopped:
		// Closed: nobody is left to wake, write inline.
		w.flush()
		return
	default:
	}

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *writer) run() {
	defer close(w.stopped)
	for {
		select {
		case <-w.wake:
			w.flush()
		case <-w.done:
			w.flush()
			return
		}
	}
}

func (w *writer) flush() {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string]pendingWrite)
	w.mu.Unlock()

	for key, p := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := w.store.Set(ctx, key, p.data)
		cancel()
		if err != nil {
			w.logger.Error("snapshot persist failed",
				slog.String("key", key),
				slog.Uint64("version", p.version),
				slog.Any("error", err),
			)
		}
	}
}

// close writes whatever is still pending and stops the goroutine. Later
// snapshots are written synchronously by enqueue.
func (w *writer) close() {
	close(w.done)
	<-w.stopped
}
