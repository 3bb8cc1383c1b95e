package cache

import (
	"fmt"
	"math"
	"runtime"
	"time"
)

// intervalChangeThreshold is the relative change required before the
// cleanup timer is restarted.
const intervalChangeThreshold = 0.25

// SweepResult summarizes one cleanup cycle.
type SweepResult struct {
	Expired int
	Evicted int

	// Skipped is true when another sweep was already running.
	Skipped bool
}

// run is the cache's background loop: expiry sweeps, cleanup period
// adjustment and, with dynamic sizing, capacity recomputation.
func (c *Cache) run() {
	defer c.wg.Done()

	sweep := time.NewTicker(c.CleanupInterval())
	defer sweep.Stop()

	adjust := time.NewTicker(c.cfg.IntervalAdjustEvery)
	defer adjust.Stop()

	var capacity <-chan time.Time
	if c.cfg.DynamicSizing {
		t := time.NewTicker(c.cfg.CapacityCheckInterval)
		defer t.Stop()
		capacity = t.C
	}

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-sweep.C:
			c.Sweep()
		case <-adjust.C:
			if next, changed := c.AdjustCleanupInterval(); changed {
				sweep.Reset(next)
			}
		case <-capacity:
			c.RecomputeCapacity()
		}
	}
}

// CleanupInterval returns the sweep period currently in effect.
func (c *Cache) CleanupInterval() time.Duration {
	return time.Duration(c.interval.Load())
}

// Sweep runs one cleanup cycle: it removes expired entries in batches,
// yielding between batches, then evicts if usage is above
// MemoryCleanupThreshold. Only one sweep runs at a time; an overlapping
// call returns immediately with Skipped set. A panic inside the cycle is
// recovered and logged so later cycles still run.
func (c *Cache) Sweep() (res SweepResult) {
	if !c.sweeping.CompareAndSwap(false, true) {
		return SweepResult{Skipped: true}
	}
	defer c.sweeping.Store(false)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.stats.cleanupErrors.Add(1)
			c.logger.Error().
				Err(fmt.Errorf("%v", r)).
				Int("expired", res.Expired).
				Msg("Cache cleanup cycle failed")
		}
	}()

	c.stats.cleanupRuns.Add(1)

	runtime.Gosched()

	now := c.now()
	expired := c.collectExpired(now)
	for i := 0; i < len(expired); i += c.cfg.CleanupBatchSize {
		end := i + c.cfg.CleanupBatchSize
		if end > len(expired) {
			end = len(expired)
		}
		res.Expired += c.removeExpiredBatch(expired[i:end], now)
		runtime.Gosched()
	}

	res.Evicted = c.memoryCleanup(now)

	c.logger.Debug().
		Int("expired", res.Expired).
		Int("evicted", res.Evicted).
		Dur("duration", time.Since(start)).
		Msg("Cache cleanup cycle complete")
	return res
}

func (c *Cache) collectExpired(now time.Time) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var keys []string
	c.store.each(func(e *Entry) bool {
		if e.IsExpired(now) {
			keys = append(keys, e.Key)
		}
		return true
	})
	return keys
}

// removeExpiredBatch deletes keys that are still expired; an entry may
// have been replaced since it was collected.
func (c *Cache) removeExpiredBatch(keys []string, now time.Time) int {
	var ev eventBuffer
	removed := func() int {
		c.mu.Lock()
		defer c.mu.Unlock()

		n := 0
		for _, key := range keys {
			e, ok := c.store.lookup(key)
			if !ok || !e.IsExpired(now) {
				continue
			}
			c.store.remove(key)
			c.stats.expirations.Add(1)
			ev.add(Event{Type: EventExpire, Key: key, Size: e.SizeBytes, Tier: e.Tier})
			n++
		}
		return n
	}()
	c.emit(ev.events)
	return removed
}

// memoryCleanup evicts until usage drops to MemoryCleanupThreshold percent
// of the ceiling.
func (c *Cache) memoryCleanup(now time.Time) int {
	var ev eventBuffer
	evicted := func() int {
		c.mu.Lock()
		defer c.mu.Unlock()

		threshold := int64(float64(c.maxMemory.Load()) * c.cfg.MemoryCleanupThreshold / 100)
		n := 0
		for c.store.totalBytes > threshold {
			victims := c.selectVictims(now)
			if len(victims) == 0 {
				break
			}
			removed := c.evictLocked(victims, &ev)
			if removed == 0 {
				break
			}
			n += removed
		}
		return n
	}()
	c.emit(ev.events)

	if evicted > 0 {
		c.logger.Info().
			Int("evicted", evicted).
			Float64("threshold_pct", c.cfg.MemoryCleanupThreshold).
			Msg("Memory cleanup evicted entries")
	}
	return evicted
}

// nextCleanupInterval maps usage percent linearly from maxInterval at 0%
// to minInterval at 100%.
func nextCleanupInterval(usagePct float64, minInterval, maxInterval time.Duration) time.Duration {
	p := math.Max(0, math.Min(usagePct, 100)) / 100
	next := time.Duration(float64(maxInterval) - float64(maxInterval-minInterval)*p)
	if next < minInterval {
		next = minInterval
	}
	if next > maxInterval {
		next = maxInterval
	}
	return next
}

// AdjustCleanupInterval recomputes the sweep period from memory usage. The
// new period only takes effect when it differs from the current one by
// more than 25%.
func (c *Cache) AdjustCleanupInterval() (time.Duration, bool) {
	current := c.CleanupInterval()
	next := nextCleanupInterval(c.memoryUsagePercent(), c.cfg.MinCleanupInterval, c.cfg.MaxCleanupInterval)

	diff := math.Abs(float64(next-current)) / float64(current)
	if diff <= intervalChangeThreshold {
		return current, false
	}

	c.interval.Store(int64(next))
	c.logger.Info().
		Dur("previous", current).
		Dur("interval", next).
		Msg("Cleanup interval adjusted")
	return next, true
}

func (c *Cache) memoryUsagePercent() float64 {
	c.mu.Lock()
	total := c.store.totalBytes
	c.mu.Unlock()
	return usagePercent(total, c.maxMemory.Load())
}

func usagePercent(used, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(used) / float64(limit) * 100
}
