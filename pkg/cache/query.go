package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// State is the lifecycle position of a cached query.
type State uint8

const (
	// StateUncached means no payload is held and no fetch is running.
	StateUncached State = iota
	// StateFetching means a fetch is in flight.
	StateFetching
	// StateCached means a payload was stored and has not been invalidated.
	StateCached
	// StateInvalidated means a tag-invalidating write dropped the payload;
	// the next read fetches again and bypasses the store.
	StateInvalidated
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateCached:
		return "cached"
	case StateInvalidated:
		return "invalidated"
	default:
		return "uncached"
	}
}

// QueryOption configures a Query.
type QueryOption func(*Query)

// WithQueryTTL sets the TTL passed to the store for fetched payloads.
// Zero defers to the store's default.
func WithQueryTTL(d time.Duration) QueryOption {
	return func(q *Query) { q.ttl = d }
}

// WithFetchTimeout bounds a single upstream fetch. The fetch runs detached
// from the callers' contexts, so this is what stops a hung request.
// Default: 30 seconds.
func WithFetchTimeout(d time.Duration) QueryOption {
	return func(q *Query) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithQueryLogger sets the logger used for store failures and invalidations.
func WithQueryLogger(l *slog.Logger) QueryOption {
	return func(q *Query) {
		if l != nil {
			q.logger = l
		}
	}
}

type queryEntry struct {
	tags  []Tag
	gen   uint64 // bumped on every invalidation
	state State
}

// Query is a read-through cache for remote resources with tag invalidation
// and request coalescing.
//
// Every read names a key and the tags the result provides. Concurrent reads
// of the same uncached key share one fetch. Writes call Invalidate with the
// tags they affect; matching entries are dropped and the next read fetches
// again. A fetch that was already in flight when its entry got invalidated
// still answers its waiters but never repopulates the cache.
//
// Payloads are stored as JSON bytes, so the backing store can be in-process
// (Memory) or shared between processes (Redis).
type Query struct {
	store   Cache[[]byte]
	logger  *slog.Logger
	entries map[string]*queryEntry
	group   singleflight.Group
	ttl     time.Duration
	timeout time.Duration
	mu      sync.Mutex // guards entries
	writeMu sync.Mutex // orders store writes against invalidation
}

// NewQuery creates a Query on top of store.
func NewQuery(store Cache[[]byte], opts ...QueryOption) *Query {
	q := &Query{
		store:   store,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		entries: make(map[string]*queryEntry),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Fetch returns the value cached under key, or calls fn to load it.
//
// Concurrent calls for the same key while no value is cached result in a
// single call to fn; every caller receives the same settled result. A caller
// whose ctx ends stops waiting and gets ctx.Err(); the fetch continues for
// the others. Errors from fn are returned to all waiters and never cached.
func Fetch[V any](ctx context.Context, q *Query, key string, tags []Tag, fn func(ctx context.Context) (V, error)) (V, error) {
	var zero V
	codec := JSON[V]()

	data, err := q.load(ctx, key, tags, func(ctx context.Context) ([]byte, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return codec.Marshal(v)
	})
	if err != nil {
		return zero, err
	}

	return codec.Unmarshal(data)
}

// Invalidate drops every entry providing a tag covered by tags.
func (q *Query) Invalidate(ctx context.Context, tags ...Tag) error {
	if len(tags) == 0 {
		return nil
	}

	q.writeMu.Lock()
	defer q.writeMu.Unlock()

	q.mu.Lock()
	var keys []string
	for key, e := range q.entries {
		if !coveredBy(e.tags, tags) {
			continue
		}
		e.gen++
		if e.state != StateUncached {
			e.state = StateInvalidated
		}
		keys = append(keys, key)
	}
	q.mu.Unlock()

	var errs []error
	for _, key := range keys {
		if err := q.store.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}

	q.logger.DebugContext(ctx, "cache invalidated",
		slog.Any("tags", tags),
		slog.Int("entries", len(keys)),
	)

	return errors.Join(errs...)
}

// Reset forgets every entry and clears the store.
func (q *Query) Reset(ctx context.Context) error {
	q.writeMu.Lock()
	defer q.writeMu.Unlock()

	q.mu.Lock()
	for _, e := range q.entries {
		e.gen++
		e.state = StateUncached
	}
	q.mu.Unlock()

	return q.store.Clear(ctx)
}

// State reports the lifecycle state of key.
func (q *Query) State(key string) State {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e, ok := q.entries[key]; ok {
		return e.state
	}
	return StateUncached
}

// Keys returns the sorted keys of entries that provide a tag covered by tag.
func (q *Query) Keys(tag Tag) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var keys []string
	for key, e := range q.entries {
		if coveredBy(e.tags, []Tag{tag}) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys
}

func (q *Query) load(ctx context.Context, key string, tags []Tag, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	gen, invalidated := q.track(key, tags)

	if !invalidated {
		if data, err := q.store.Get(ctx, key); err == nil {
			q.settle(key, gen, StateCached)
			return data, nil
		}
	}

	// The generation is part of the flight key: reads issued after an
	// invalidation never join a fetch that started before it.
	flight := key + "#" + strconv.FormatUint(gen, 10)
	detached := context.WithoutCancel(ctx)

	ch := q.group.DoChan(flight, func() (any, error) {
		fctx, cancel := context.WithTimeout(detached, q.timeout)
		defer cancel()
		return q.fill(fctx, key, gen, fetch)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// fill runs inside a flight: fetch once, store the payload if the entry was
// not invalidated meanwhile.
func (q *Query) fill(ctx context.Context, key string, gen uint64, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	// An earlier flight of this generation may have finished between our
	// store miss and this flight starting.
	if q.state(key, gen) == StateCached {
		if data, err := q.store.Get(ctx, key); err == nil {
			return data, nil
		}
	}

	q.settle(key, gen, StateFetching)

	data, err := fetch(ctx)
	if err != nil {
		q.settle(key, gen, StateUncached)
		return nil, err
	}

	q.writeMu.Lock()
	defer q.writeMu.Unlock()

	// Invalidated while in flight: the payload answers current waiters
	// but must not outlive the invalidation.
	if !q.current(key, gen) {
		return data, nil
	}

	if err := q.store.Set(ctx, key, data, q.ttl); err != nil {
		q.logger.WarnContext(ctx, "cache store write failed",
			slog.String("key", key),
			slog.Any("error", err),
		)
		q.settle(key, gen, StateUncached)
		return data, nil
	}

	q.settle(key, gen, StateCached)
	return data, nil
}

// track registers key with its tags and returns the current generation and
// whether the entry is waiting for a refetch after invalidation.
func (q *Query) track(key string, tags []Tag) (uint64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[key]
	if !ok {
		e = &queryEntry{}
		q.entries[key] = e
	}
	if tags != nil {
		e.tags = slices.Clone(tags)
	}
	return e.gen, e.state == StateInvalidated
}

// settle moves key to state if its generation still equals gen.
func (q *Query) settle(key string, gen uint64, state State) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[key]
	if !ok || e.gen != gen {
		return false
	}
	e.state = state
	return true
}

func (q *Query) current(key string, gen uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[key]
	return ok && e.gen == gen
}

func (q *Query) state(key string, gen uint64) State {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[key]
	if !ok || e.gen != gen {
		return StateUncached
	}
	return e.state
}

func coveredBy(provided, invalidating []Tag) bool {
	for _, inv := range invalidating {
		for _, p := range provided {
			if inv.covers(p) {
				return true
			}
		}
	}
	return false
}
