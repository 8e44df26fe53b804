package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryOption configures the in-memory cache.
type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	now        func() time.Time
	defaultTTL time.Duration
	sweepEvery time.Duration
	capacity   int
}

// WithDefaultTTL sets the expiration used when Set is called with a zero TTL.
// Default: 1 hour.
func WithDefaultTTL(d time.Duration) MemoryOption {
	return func(c *memoryConfig) { c.defaultTTL = d }
}

// WithCleanupInterval sets how often the background sweeper drops expired
// entries. Zero disables the sweeper; expired entries are then removed lazily.
// Default: 1 minute.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(c *memoryConfig) { c.sweepEvery = d }
}

// WithMaxEntries bounds the cache size; the least recently used entry is
// evicted when a new key would exceed it. Zero means unlimited.
func WithMaxEntries(n int) MemoryOption {
	return func(c *memoryConfig) { c.capacity = max(n, 0) }
}

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *memoryConfig) {
		if now != nil {
			c.now = now
		}
	}
}

type memoryItem[V any] struct {
	expiresAt time.Time // zero = never
	value     V
	key       string
}

type evicted[V any] struct {
	value V
	key   string
}

// Memory is an in-memory cache with TTL expiration and optional LRU bound.
//
// Entries live in a map for lookup and in a list ordered by recency
// (front = most recently used) for eviction. Eviction callbacks run after
// the internal lock is released, so a callback may do slow work such as
// flushing a client to durable storage.
type Memory[V any] struct {
	index   map[string]*list.Element
	order   *list.List
	onEvict func(key string, value V)
	stop    chan struct{}
	cfg     memoryConfig
	mu      sync.Mutex
	closed  bool
}

// NewMemory creates a new in-memory cache.
//
//	c := cache.NewMemory[string](
//	    cache.WithDefaultTTL(5 * time.Minute),
//	    cache.WithMaxEntries(10000),
//	)
//	defer c.Close()
func NewMemory[V any](opts ...MemoryOption) *Memory[V] {
	cfg := memoryConfig{
		now:        time.Now,
		defaultTTL: time.Hour,
		sweepEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	m := &Memory[V]{
		index: make(map[string]*list.Element),
		order: list.New(),
		stop:  make(chan struct{}),
		cfg:   cfg,
	}

	if cfg.sweepEvery > 0 {
		go m.sweeper()
	}

	return m
}

// SetEvictCallback registers fn to be called for every entry leaving the
// cache: LRU eviction, expiry, Delete and Clear.
func (m *Memory[V]) SetEvictCallback(fn func(key string, value V)) {
	m.mu.Lock()
	m.onEvict = fn
	m.mu.Unlock()
}

// Get returns the value for key and marks it as recently used.
func (m *Memory[V]) Get(_ context.Context, key string) (V, error) {
	var zero V

	m.mu.Lock()
	el, ok := m.index[key]
	if !ok {
		m.mu.Unlock()
		return zero, ErrNotFound
	}

	item := el.Value.(*memoryItem[V])
	if m.expired(item) {
		gone := m.unlink(el)
		m.mu.Unlock()
		m.notify(gone)
		return zero, ErrNotFound
	}

	m.order.MoveToFront(el)
	m.mu.Unlock()

	return item.value, nil
}

// Set stores value under key. See Cache for TTL semantics.
func (m *Memory[V]) Set(_ context.Context, key string, value V, ttl time.Duration) error {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}

	expiresAt := m.deadline(ttl)

	if el, ok := m.index[key]; ok {
		item := el.Value.(*memoryItem[V])
		item.value = value
		item.expiresAt = expiresAt
		m.order.MoveToFront(el)
		m.mu.Unlock()
		return nil
	}

	var gone []evicted[V]
	if m.cfg.capacity > 0 && len(m.index) >= m.cfg.capacity {
		if back := m.order.Back(); back != nil {
			gone = m.unlink(back)
		}
	}

	m.index[key] = m.order.PushFront(&memoryItem[V]{key: key, value: value, expiresAt: expiresAt})
	m.mu.Unlock()

	m.notify(gone)
	return nil
}

// Delete removes key. Missing keys are ignored.
func (m *Memory[V]) Delete(_ context.Context, key string) error {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}

	var gone []evicted[V]
	if el, ok := m.index[key]; ok {
		gone = m.unlink(el)
	}
	m.mu.Unlock()

	m.notify(gone)
	return nil
}

// Has reports whether key is present and not expired. It does not affect recency.
func (m *Memory[V]) Has(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	el, ok := m.index[key]
	if !ok {
		m.mu.Unlock()
		return false, nil
	}

	if m.expired(el.Value.(*memoryItem[V])) {
		gone := m.unlink(el)
		m.mu.Unlock()
		m.notify(gone)
		return false, nil
	}
	m.mu.Unlock()

	return true, nil
}

// Len returns the number of entries, including expired ones not yet swept.
func (m *Memory[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.index)
}

// Clear removes every entry.
func (m *Memory[V]) Clear(_ context.Context) error {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}

	gone := m.drain()
	m.mu.Unlock()

	m.notify(gone)
	return nil
}

// Close stops the sweeper and rejects further writes. Idempotent.
// Remaining entries are handed to the eviction callback.
func (m *Memory[V]) Close() error {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return nil
	}

	m.closed = true
	close(m.stop)
	gone := m.drain()
	m.mu.Unlock()

	m.notify(gone)
	return nil
}

func (m *Memory[V]) sweeper() {
	ticker := time.NewTicker(m.cfg.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep walks from least to most recently used and drops expired entries.
func (m *Memory[V]) sweep() {
	m.mu.Lock()

	var gone []evicted[V]
	for el := m.order.Back(); el != nil; {
		prev := el.Prev()
		if m.expired(el.Value.(*memoryItem[V])) {
			gone = append(gone, m.unlink(el)...)
		}
		el = prev
	}
	m.mu.Unlock()

	m.notify(gone)
}

func (m *Memory[V]) deadline(ttl time.Duration) time.Time {
	if ttl == 0 {
		ttl = m.cfg.defaultTTL
	}
	if ttl < 0 {
		return time.Time{}
	}
	return m.cfg.now().Add(ttl)
}

func (m *Memory[V]) expired(item *memoryItem[V]) bool {
	return !item.expiresAt.IsZero() && m.cfg.now().After(item.expiresAt)
}

// unlink removes el from both structures. Caller holds m.mu.
func (m *Memory[V]) unlink(el *list.Element) []evicted[V] {
	item := m.order.Remove(el).(*memoryItem[V])
	delete(m.index, item.key)
	if m.onEvict == nil {
		return nil
	}
	return []evicted[V]{{key: item.key, value: item.value}}
}

// drain empties the cache. Caller holds m.mu.
func (m *Memory[V]) drain() []evicted[V] {
	var gone []evicted[V]
	if m.onEvict != nil {
		gone = make([]evicted[V], 0, len(m.index))
		for el := m.order.Front(); el != nil; el = el.Next() {
			item := el.Value.(*memoryItem[V])
			gone = append(gone, evicted[V]{key: item.key, value: item.value})
		}
	}
	m.index = make(map[string]*list.Element)
	m.order.Init()
	return gone
}

func (m *Memory[V]) notify(gone []evicted[V]) {
	if len(gone) == 0 {
		return
	}

	m.mu.Lock()
	fn := m.onEvict
	m.mu.Unlock()

	if fn == nil {
		return
	}
	for _, e := range gone {
		fn(e.key, e.value)
	}
}

var _ Cache[any] = (*Memory[any])(nil)
