// Package cache provides an in-process key/value cache with hot/cold
// tiering, policy-driven eviction and adaptive background maintenance.
//
// The cache implements the following features:
//
// - Hot (L1) and cold tiers with promotion of frequently read cold entries
// - LRU, LFU or HYBRID (recency + inverse frequency) eviction
// - Memory ceiling derived from available memory (dynamic sizing)
// - Adaptive background sweep for expired entries
// - Tag-based bulk invalidation
// - Optional S2/zstd compression of large payloads
// - Prometheus collector and health report
//
// # Basic Usage
//
//	c, err := cache.New(cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	key := cache.Key{Namespace: "assessment", ID: "42"}
//	_ = c.Set(key.String(), result, cache.SetOptions{
//		TTL:  10 * time.Minute,
//		Tags: []string{key.Tag(), "user:7"},
//	})
//
//	if v, ok := c.Get(key.String()); ok {
//		// Cache hit
//	}
//
// # Memoized Queries
//
//	v, err := c.Query(ctx, key.String(), func(ctx context.Context) (any, error) {
//		return db.LoadAssessment(ctx, 42)
//	}, cache.QueryOptions{TTL: time.Minute, RefreshInBackground: true})
//
// Concurrent misses for the same key share one producer call. Producer
// errors are returned unchanged and never cached.
//
// # Invalidation
//
//	removed := c.InvalidateByTags([]string{"assessment:42"})
//
// # Memory Accounting
//
// Entry sizes are estimates: strings cost twice their length, byte slices
// their length, structured values twice their JSON length. When a write
// would exceed the ceiling the eviction policy frees space; if nothing is
// left to evict the write is admitted over budget and an
// EventMemoryPressure is emitted. The cache never rejects a write for
// lack of memory.
//
// # Metrics
//
// Collector exports, among others:
//
//   - <ns>_hit_ratio, <ns>_miss_ratio - Lookup ratios
//   - <ns>_evictions_total - Entries evicted under pressure
//   - <ns>_memory_usage_percent - Tracked bytes / ceiling
//   - <ns>_tier_usage_percent{tier} - Per-tier occupancy
//   - <ns>_cleanup_runs_total - Cleanup cycles
package cache
