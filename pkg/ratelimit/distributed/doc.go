// Package distributed provides a Redis-backed fixed-window rate limiter
// shared by every ruginx instance that points at the same key.
//
// The server consults it once per accepted connection, before the
// connection is handed to the thread pool:
//
//	rdb, err := distributed.Dial(ctx, &redis.Options{Addr: "localhost:6379"}, 3)
//	if err != nil {
//		return err
//	}
//
//	limiter, err := distributed.NewFixedWindow(distributed.Config{
//		Redis: rdb,
//		Key:   "ruginx:conns",
//		Limit: 100,
//	})
//	if err != nil {
//		return err
//	}
//	defer limiter.Close()
//
//	if !limiter.Allow(ctx) {
//		// reply 429
//	}
//
// # Windows
//
// Each window of length Config.Window (one second by default) owns a single
// Redis counter. A Lua script checks and increments the counter atomically,
// so concurrent instances never admit more than Limit events per window.
// Counters expire shortly after their window ends.
//
// # Redis failures
//
// When a Redis call fails, Allow returns Config.FailOpen. The server sets it
// so that an unreachable Redis degrades to no limiting instead of refusing
// every connection.
package distributed
