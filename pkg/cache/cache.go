package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrEmptyKey is returned when an operation is given an empty key.
	ErrEmptyKey = errors.New("cache key cannot be empty")

	// ErrClosed is returned by mutating operations after Close.
	ErrClosed = errors.New("cache is closed")
)

// SetOptions tune a single Set call.
type SetOptions struct {
	// TTL overrides Config.DefaultTTL when > 0.
	TTL time.Duration

	// Tags label the entry for InvalidateByTags.
	Tags []string

	Priority Priority

	// DisableCompression stores the value as-is even when it is large.
	DisableCompression bool
}

// Item is one element of a SetMultiple batch.
type Item struct {
	Key     string
	Value   any
	Options SetOptions
}

// EntryInfo is a read-only snapshot of an entry's metadata.
type EntryInfo struct {
	Key            string
	Tier           Tier
	SizeBytes      int64
	AccessCount    int64
	Frequency      int64
	Tags           []string
	Compressed     bool
	TTL            time.Duration
	ExpiresAt      time.Time
	LastAccessedAt time.Time
	CreatedAt      time.Time
}

type counters struct {
	hits              atomic.Int64
	misses            atomic.Int64
	sets              atomic.Int64
	deletes           atomic.Int64
	evictions         atomic.Int64
	expirations       atomic.Int64
	promotions        atomic.Int64
	pressureEvents    atomic.Int64
	cleanupRuns       atomic.Int64
	cleanupErrors     atomic.Int64
	compressions      atomic.Int64
	compressionErrors atomic.Int64
}

// Cache is an in-process key/value cache with hot/cold tiering, policy
// driven eviction, dynamic sizing and an adaptive background sweep.
//
// Cache owns a background goroutine; call Close to stop it.
type Cache struct {
	mu    sync.Mutex
	store *store
	tiers *tierManager

	cfg    Config
	logger zerolog.Logger

	maxMemory atomic.Int64
	interval  atomic.Int64 // current cleanup period, nanoseconds
	sweeping  atomic.Bool
	closed    atomic.Bool
	lifeMu    sync.Mutex // orders closed against wg.Add
	stats     counters

	obsMu     sync.RWMutex
	observers []Observer

	flight singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a cache and starts its background scheduler.
func New(cfg Config) (*Cache, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		store:  newStore(),
		tiers:  newTierManager(cfg),
		cfg:    cfg,
		logger: cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
	}

	c.maxMemory.Store(cfg.MaxMemory)
	if cfg.DynamicSizing {
		c.initCapacity()
	}
	c.interval.Store(int64(cfg.CleanupInterval))

	c.wg.Add(1)
	go c.run()

	c.logger.Debug().
		Int64("max_memory", c.maxMemory.Load()).
		Int64("l1_size", cfg.L1CacheSize).
		Str("eviction_policy", string(cfg.EvictionPolicy)).
		Bool("tiered", cfg.TieredCaching).
		Dur("cleanup_interval", cfg.CleanupInterval).
		Msg("Cache started")

	return c, nil
}

// initCapacity computes the first ceiling without the resize threshold.
func (c *Cache) initCapacity() {
	available, err := c.cfg.MemoryProbe.Available()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Memory probe failed, using configured max memory")
		if c.maxMemory.Load() <= 0 {
			c.maxMemory.Store(c.cfg.MinMemory)
		}
		return
	}
	c.maxMemory.Store(computeCeiling(available, c.cfg.HeapFraction, c.cfg.MinMemory, c.cfg.MaxMemoryCeiling))
}

// Close stops the background scheduler and waits for in-flight background
// refreshes. Close is safe to call multiple times.
func (c *Cache) Close() error {
	c.lifeMu.Lock()
	if !c.closed.CompareAndSwap(false, true) {
		c.lifeMu.Unlock()
		return nil
	}
	c.lifeMu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.logger.Debug().Msg("Cache closed")
	return nil
}

func (c *Cache) now() time.Time {
	return c.cfg.Clock()
}

// Set stores value under key, replacing any previous entry and its
// counters. The write is admitted even if eviction cannot free enough
// memory; see EventMemoryPressure.
func (c *Cache) Set(key string, value any, opts SetOptions) error {
	if key == "" {
		return ErrEmptyKey
	}
	if c.closed.Load() {
		return ErrClosed
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	estimate := estimateSize(value)
	stored, size, compressed := c.maybeCompress(key, value, estimate, opts.DisableCompression)

	now := c.now()
	var ev eventBuffer

	c.mu.Lock()
	c.store.remove(key)
	c.makeRoomLocked(size, now, &ev)

	tier := c.tiers.place(opts.Priority, estimate, c.store.tierBytes[TierHot])
	c.store.insert(&Entry{
		Key:            key,
		Value:          stored,
		Tags:           tagSet(opts.Tags),
		SizeBytes:      size,
		Tier:           tier,
		Compressed:     compressed,
		TTL:            ttl,
		ExpiresAt:      now.Add(ttl),
		LastAccessedAt: now,
		CreatedAt:      now,
	})
	c.stats.sets.Add(1)
	ev.add(Event{Type: EventSet, Key: key, Size: size, TTL: ttl, Tier: tier})
	c.mu.Unlock()

	c.emit(ev.events)

	c.logger.Debug().
		Str("key", key).
		Int64("size_bytes", size).
		Dur("ttl", ttl).
		Str("tier", string(tier)).
		Bool("compressed", compressed).
		Msg("Cache set")

	return nil
}

// maybeCompress runs large values through the compressor. Failures keep
// the original value.
func (c *Cache) maybeCompress(key string, value any, estimate int64, disabled bool) (any, int64, bool) {
	if c.cfg.Compressor == nil || disabled || estimate <= c.cfg.CompressionThreshold {
		return value, estimate, false
	}

	cv, ok, err := compressValue(c.cfg.Compressor, value)
	if err != nil {
		c.stats.compressionErrors.Add(1)
		c.logger.Warn().Err(err).Str("key", key).Msg("Compression failed, storing uncompressed")
		return value, estimate, false
	}
	if !ok {
		return value, estimate, false
	}

	c.stats.compressions.Add(1)
	return cv, estimateSize(cv), true
}

// Get returns the value for key. Expired entries are treated as misses and
// removed. A hit may promote a cold entry to the hot tier.
func (c *Cache) Get(key string) (any, bool) {
	now := c.now()
	var ev eventBuffer
	defer func() { c.emit(ev.events) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.store.lookup(key)
	if !ok {
		c.stats.misses.Add(1)
		return nil, false
	}

	if e.IsExpired(now) {
		c.store.remove(key)
		c.stats.misses.Add(1)
		c.stats.expirations.Add(1)
		ev.add(Event{Type: EventExpire, Key: key, Size: e.SizeBytes, Tier: e.Tier})
		return nil, false
	}

	value := e.Value
	if e.Compressed {
		cv, _ := value.(compressedValue)
		decoded, err := decompressValue(c.cfg.Compressor, cv)
		if err != nil {
			c.store.remove(key)
			c.stats.misses.Add(1)
			c.logger.Warn().Err(err).Str("key", key).Msg("Dropping undecodable cache entry")
			ev.add(Event{Type: EventDelete, Key: key, Size: e.SizeBytes, Tier: e.Tier})
			return nil, false
		}
		value = decoded
	}

	prevAccess := e.LastAccessedAt
	e.AccessCount++
	e.Frequency++
	e.LastAccessedAt = now

	if c.tiers.shouldPromote(e, c.store.tierBytes[TierHot], prevAccess, now) {
		c.store.move(e, TierHot)
		c.stats.promotions.Add(1)
		ev.add(Event{Type: EventPromote, Key: key, Size: e.SizeBytes, Tier: TierHot})
	}

	c.stats.hits.Add(1)
	return value, true
}

// GetMultiple returns the hits among keys.
func (c *Cache) GetMultiple(keys []string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		if v, ok := c.Get(key); ok {
			out[key] = v
		}
	}
	return out
}

// SetMultiple stores every item and returns the joined errors of the ones
// that failed.
func (c *Cache) SetMultiple(items []Item) error {
	var errs []error
	for _, it := range items {
		if err := c.Set(it.Key, it.Value, it.Options); err != nil {
			errs = append(errs, fmt.Errorf("set %q: %w", it.Key, err))
		}
	}
	return errors.Join(errs...)
}

// Delete removes key and reports whether it existed.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	e, ok := c.store.remove(key)
	if ok {
		c.stats.deletes.Add(1)
	}
	c.mu.Unlock()

	if ok {
		c.emit([]Event{{Type: EventDelete, Key: key, Size: e.SizeBytes, Tier: e.Tier}})
	}
	return ok
}

// InvalidateByTags removes every entry carrying at least one of tags and
// returns how many were removed.
func (c *Cache) InvalidateByTags(tags []string) int {
	want := tagSet(tags)
	if len(want) == 0 {
		return 0
	}

	var ev eventBuffer
	c.mu.Lock()
	var keys []string
	c.store.each(func(e *Entry) bool {
		if e.HasAnyTag(want) {
			keys = append(keys, e.Key)
		}
		return true
	})
	for _, key := range keys {
		if e, ok := c.store.remove(key); ok {
			c.stats.deletes.Add(1)
			ev.add(Event{Type: EventDelete, Key: key, Size: e.SizeBytes, Tier: e.Tier})
		}
	}
	c.mu.Unlock()

	c.emit(ev.events)

	c.logger.Debug().
		Strs("tags", tags).
		Int("removed", len(keys)).
		Msg("Invalidated by tags")
	return len(keys)
}

// Clear removes every entry and returns how many there were. Each removed
// entry counts as a delete and emits EventDelete.
func (c *Cache) Clear() int {
	var ev eventBuffer
	c.mu.Lock()
	c.store.each(func(e *Entry) bool {
		ev.add(Event{Type: EventDelete, Key: e.Key, Size: e.SizeBytes, Tier: e.Tier})
		return true
	})
	n := c.store.reset()
	c.stats.deletes.Add(int64(n))
	c.mu.Unlock()

	c.emit(ev.events)

	c.logger.Info().Int("removed", n).Msg("Cache cleared")
	return n
}

// Len returns the number of resident entries, including expired ones the
// sweep has not reached yet.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.len()
}

// Keys returns the resident keys in sorted order.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	keys := make([]string, 0, c.store.len())
	c.store.each(func(e *Entry) bool {
		keys = append(keys, e.Key)
		return true
	})
	c.mu.Unlock()

	sort.Strings(keys)
	return keys
}

// Inspect returns metadata for key without counting an access.
func (c *Cache) Inspect(key string) (EntryInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.store.lookup(key)
	if !ok {
		return EntryInfo{}, false
	}

	tags := make([]string, 0, len(e.Tags))
	for t := range e.Tags {
		tags = append(tags, t)
	}
	sort.Strings(tags)

	return EntryInfo{
		Key:            e.Key,
		Tier:           e.Tier,
		SizeBytes:      e.SizeBytes,
		AccessCount:    e.AccessCount,
		Frequency:      e.Frequency,
		Tags:           tags,
		Compressed:     e.Compressed,
		TTL:            e.TTL,
		ExpiresAt:      e.ExpiresAt,
		LastAccessedAt: e.LastAccessedAt,
		CreatedAt:      e.CreatedAt,
	}, true
}

// MaxMemory returns the memory ceiling currently in effect.
func (c *Cache) MaxMemory() int64 {
	return c.maxMemory.Load()
}

// removeExpiredLocked drops every logically expired entry.
func (c *Cache) removeExpiredLocked(now time.Time, ev *eventBuffer) int {
	var keys []string
	c.store.each(func(e *Entry) bool {
		if e.IsExpired(now) {
			keys = append(keys, e.Key)
		}
		return true
	})
	for _, key := range keys {
		if e, ok := c.store.remove(key); ok {
			c.stats.expirations.Add(1)
			ev.add(Event{Type: EventExpire, Key: key, Size: e.SizeBytes, Tier: e.Tier})
		}
	}
	return len(keys)
}
