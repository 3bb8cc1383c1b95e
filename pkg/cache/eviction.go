package cache

import (
	"math"
	"sort"
	"time"
)

const (
	hybridRecencyWeight   = 0.7
	hybridFrequencyWeight = 0.3
)

// hybridScore ranks an entry for eviction; higher means less valuable.
func hybridScore(e *Entry, now time.Time) float64 {
	age := now.Sub(e.LastAccessedAt).Seconds()
	if age < 0 {
		age = 0
	}
	freq := e.Frequency
	if freq < 1 {
		freq = 1
	}
	return hybridRecencyWeight*age + hybridFrequencyWeight*(1/float64(freq))
}

// selectVictims returns the keys the configured policy would evict next.
// LRU and LFU return a single key; HYBRID returns the least valuable
// batchFraction of all entries (at least one). Caller holds Cache.mu.
func (c *Cache) selectVictims(now time.Time) []string {
	switch c.cfg.EvictionPolicy {
	case PolicyLRU:
		return c.selectOne(func(a, b *Entry) bool {
			return a.LastAccessedAt.Before(b.LastAccessedAt)
		})
	case PolicyLFU:
		return c.selectOne(func(a, b *Entry) bool {
			if a.Frequency != b.Frequency {
				return a.Frequency < b.Frequency
			}
			return a.LastAccessedAt.Before(b.LastAccessedAt)
		})
	default:
		return c.selectHybrid(now)
	}
}

func (c *Cache) selectOne(less func(a, b *Entry) bool) []string {
	var victim *Entry
	c.store.each(func(e *Entry) bool {
		if victim == nil || less(e, victim) {
			victim = e
		}
		return true
	})
	if victim == nil {
		return nil
	}
	return []string{victim.Key}
}

type scored struct {
	key        string
	score      float64
	lastAccess time.Time
}

func (c *Cache) selectHybrid(now time.Time) []string {
	candidates := make([]scored, 0, c.store.len())
	c.store.each(func(e *Entry) bool {
		candidates = append(candidates, scored{key: e.Key, score: hybridScore(e, now), lastAccess: e.LastAccessedAt})
		return true
	})
	if len(candidates) == 0 {
		return nil
	}

	// Equal scores fall back to oldest access, then key, so victim choice
	// does not depend on map order.
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.lastAccess.Equal(b.lastAccess) {
			return a.lastAccess.Before(b.lastAccess)
		}
		return a.key < b.key
	})

	n := int(math.Ceil(float64(len(candidates)) * c.cfg.EvictionBatchFraction))
	if n < 1 {
		n = 1
	}
	if n > len(candidates) {
		n = len(candidates)
	}

	keys := make([]string, n)
	for i := range keys {
		keys[i] = candidates[i].key
	}
	return keys
}

// evictLocked removes the given victims, counting each as an eviction.
func (c *Cache) evictLocked(keys []string, ev *eventBuffer) int {
	evicted := 0
	for _, key := range keys {
		e, ok := c.store.remove(key)
		if !ok {
			continue
		}
		evicted++
		c.stats.evictions.Add(1)
		ev.add(Event{Type: EventEvict, Key: key, Size: e.SizeBytes, Tier: e.Tier})
	}
	return evicted
}

// makeRoomLocked evicts until needed more bytes fit under MaxMemory. When
// nothing is left to evict it signals memory pressure, runs a forced
// expiry pass and gives up; the write then proceeds over budget.
func (c *Cache) makeRoomLocked(needed int64, now time.Time, ev *eventBuffer) {
	limit := c.maxMemory.Load()
	for c.store.totalBytes+needed > limit {
		victims := c.selectVictims(now)
		if len(victims) == 0 || c.evictLocked(victims, ev) == 0 {
			c.signalPressureLocked(needed, limit, ev)
			c.removeExpiredLocked(now, ev)
			return
		}
	}
}

func (c *Cache) signalPressureLocked(needed, limit int64, ev *eventBuffer) {
	c.stats.pressureEvents.Add(1)
	ev.add(Event{Type: EventMemoryPressure, Size: needed})
	c.logger.Warn().
		Int64("needed_bytes", needed).
		Int64("total_bytes", c.store.totalBytes).
		Int64("max_memory", limit).
		Msg("Memory pressure: nothing left to evict, admitting write over budget")
}
