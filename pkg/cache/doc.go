// Package cache provides generic cache backends and a tagged, coalescing
// read-through cache for remote API resources.
//
// # Backends
//
// [Cache] is implemented by [Memory] (LRU + TTL, in-process) and [Redis]
// (shared between processes). TTL semantics for Set:
//
//   - Positive duration: item expires after this duration
//   - Zero: use the backend's default TTL (1 hour unless configured)
//   - Negative: item never expires
//
// [Memory] can report evictions through [Memory.SetEvictCallback]; the
// callback runs after the cache lock is released.
//
// # Query cache
//
// [Query] sits in front of a Cache[[]byte] and serves API reads:
//
//	q := cache.NewQuery(cache.NewMemory[[]byte](), cache.WithQueryTTL(5*time.Minute))
//
//	product, err := cache.Fetch(ctx, q, "products/42",
//	    []cache.Tag{cache.TypeTag("Products"), cache.IDTag("Products", "42")},
//	    func(ctx context.Context) (api.Product, error) { return client.GetProduct(ctx, "42") },
//	)
//
//	// after a write affecting products:
//	q.Invalidate(ctx, cache.TypeTag("Products"))
//
// Each key moves through [StateUncached] → [StateFetching] → [StateCached];
// a failed fetch returns to [StateUncached] so the next read tries again.
// Invalidation moves cached entries to [StateInvalidated] and the next read
// fetches fresh data. Concurrent reads of the same key share one fetch.
package cache
