// Package redis opens go-redis clients for the shared cache and storage
// backends.
//
// [Open] parses a redis:// or rediss:// URL, applies pool settings and pings
// the server, retrying a few times before giving up with [ErrUnreachable].
// [Healthcheck] and [Shutdown] plug the client into the web server's health
// endpoint and shutdown hooks.
//
//	client, err := redis.Open(ctx, "redis://localhost:6379/0",
//		redis.WithPoolSize(20),
//		redis.WithRetry(5, time.Second),
//	)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	queryStore := cache.NewRedis(client, cache.Bytes(), cache.WithPrefix("sf:query"))
package redis
