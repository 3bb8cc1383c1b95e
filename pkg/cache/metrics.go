package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// TierStats describes one tier.
type TierStats struct {
	Keys         int     `json:"keys"`
	Bytes        int64   `json:"bytes"`
	UsagePercent float64 `json:"usage_percent"`
}

// Stats is a point-in-time snapshot of cache counters and occupancy.
type Stats struct {
	Hits              int64 `json:"hits"`
	Misses            int64 `json:"misses"`
	Sets              int64 `json:"sets"`
	Deletes           int64 `json:"deletes"`
	Evictions         int64 `json:"evictions"`
	Expirations       int64 `json:"expirations"`
	Promotions        int64 `json:"promotions"`
	PressureEvents    int64 `json:"pressure_events"`
	CleanupRuns       int64 `json:"cleanup_runs"`
	CleanupErrors     int64 `json:"cleanup_errors"`
	Compressions      int64 `json:"compressions"`
	CompressionErrors int64 `json:"compression_errors"`

	// Operations counts every get, set and delete.
	Operations int64 `json:"operations"`

	HitRate  float64 `json:"hit_rate"`
	MissRate float64 `json:"miss_rate"`

	Keys               int     `json:"keys"`
	TotalBytes         int64   `json:"total_bytes"`
	MaxMemory          int64   `json:"max_memory"`
	MemoryUsagePercent float64 `json:"memory_usage_percent"`
	CleanupIntervalMS  int64   `json:"cleanup_interval_ms"`

	// Tiers is keyed by TierHot and TierCold. Hot usage is relative to
	// L1CacheSize, cold usage to MaxMemory.
	Tiers map[Tier]TierStats `json:"tiers"`
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	keys := c.store.len()
	total := c.store.totalBytes
	hot := TierStats{Keys: len(c.store.tiers[TierHot]), Bytes: c.store.tierBytes[TierHot]}
	cold := TierStats{Keys: len(c.store.tiers[TierCold]), Bytes: c.store.tierBytes[TierCold]}
	c.mu.Unlock()

	maxMemory := c.maxMemory.Load()
	hot.UsagePercent = usagePercent(hot.Bytes, c.cfg.L1CacheSize)
	cold.UsagePercent = usagePercent(cold.Bytes, maxMemory)

	s := Stats{
		Hits:               c.stats.hits.Load(),
		Misses:             c.stats.misses.Load(),
		Sets:               c.stats.sets.Load(),
		Deletes:            c.stats.deletes.Load(),
		Evictions:          c.stats.evictions.Load(),
		Expirations:        c.stats.expirations.Load(),
		Promotions:         c.stats.promotions.Load(),
		PressureEvents:     c.stats.pressureEvents.Load(),
		CleanupRuns:        c.stats.cleanupRuns.Load(),
		CleanupErrors:      c.stats.cleanupErrors.Load(),
		Compressions:       c.stats.compressions.Load(),
		CompressionErrors:  c.stats.compressionErrors.Load(),
		Keys:               keys,
		TotalBytes:         total,
		MaxMemory:          maxMemory,
		MemoryUsagePercent: usagePercent(total, maxMemory),
		CleanupIntervalMS:  c.CleanupInterval().Milliseconds(),
		Tiers:              map[Tier]TierStats{TierHot: hot, TierCold: cold},
	}
	s.Operations = s.Hits + s.Misses + s.Sets + s.Deletes
	if lookups := s.Hits + s.Misses; lookups > 0 {
		s.HitRate = float64(s.Hits) / float64(lookups)
		s.MissRate = float64(s.Misses) / float64(lookups)
	}
	return s
}

// collector exports a cache's Stats as Prometheus metrics.
type collector struct {
	cache *Cache

	hitRatio     *prometheus.Desc
	missRatio    *prometheus.Desc
	hits         *prometheus.Desc
	misses       *prometheus.Desc
	evictions    *prometheus.Desc
	expirations  *prometheus.Desc
	operations   *prometheus.Desc
	cleanupRuns  *prometheus.Desc
	pressure     *prometheus.Desc
	memoryUsage  *prometheus.Desc
	totalBytes   *prometheus.Desc
	maxMemory    *prometheus.Desc
	keys         *prometheus.Desc
	tierUsage    *prometheus.Desc
	tierBytes    *prometheus.Desc
	healthStatus *prometheus.Desc
}

// Collector returns a prometheus.Collector for this cache. Metric names are
// prefixed with namespace (e.g. "tiercache").
func (c *Cache) Collector(namespace string) prometheus.Collector {
	name := func(n string) string { return prometheus.BuildFQName(namespace, "", n) }
	return &collector{
		cache:        c,
		hitRatio:     prometheus.NewDesc(name("hit_ratio"), "Fraction of lookups served from cache", nil, nil),
		missRatio:    prometheus.NewDesc(name("miss_ratio"), "Fraction of lookups that missed", nil, nil),
		hits:         prometheus.NewDesc(name("hits_total"), "Total cache hits", nil, nil),
		misses:       prometheus.NewDesc(name("misses_total"), "Total cache misses", nil, nil),
		evictions:    prometheus.NewDesc(name("evictions_total"), "Total entries evicted under memory pressure", nil, nil),
		expirations:  prometheus.NewDesc(name("expirations_total"), "Total entries removed after their TTL", nil, nil),
		operations:   prometheus.NewDesc(name("operations_total"), "Total get, set and delete operations", nil, nil),
		cleanupRuns:  prometheus.NewDesc(name("cleanup_runs_total"), "Total cleanup cycles", nil, nil),
		pressure:     prometheus.NewDesc(name("memory_pressure_total"), "Total writes admitted over budget", nil, nil),
		memoryUsage:  prometheus.NewDesc(name("memory_usage_percent"), "Tracked bytes as a percentage of the ceiling", nil, nil),
		totalBytes:   prometheus.NewDesc(name("size_bytes"), "Total tracked bytes", nil, nil),
		maxMemory:    prometheus.NewDesc(name("max_memory_bytes"), "Current memory ceiling", nil, nil),
		keys:         prometheus.NewDesc(name("keys"), "Resident entries", nil, nil),
		tierUsage:    prometheus.NewDesc(name("tier_usage_percent"), "Tier occupancy as a percentage of its budget", []string{"tier"}, nil),
		tierBytes:    prometheus.NewDesc(name("tier_size_bytes"), "Tracked bytes per tier", []string{"tier"}, nil),
		healthStatus: prometheus.NewDesc(name("health_status"), "0 healthy, 1 warning, 2 critical", nil, nil),
	}
}

func (m *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.hitRatio
	ch <- m.missRatio
	ch <- m.hits
	ch <- m.misses
	ch <- m.evictions
	ch <- m.expirations
	ch <- m.operations
	ch <- m.cleanupRuns
	ch <- m.pressure
	ch <- m.memoryUsage
	ch <- m.totalBytes
	ch <- m.maxMemory
	ch <- m.keys
	ch <- m.tierUsage
	ch <- m.tierBytes
	ch <- m.healthStatus
}

func (m *collector) Collect(ch chan<- prometheus.Metric) {
	s := m.cache.Stats()

	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}

	gauge(m.hitRatio, s.HitRate)
	gauge(m.missRatio, s.MissRate)
	counter(m.hits, s.Hits)
	counter(m.misses, s.Misses)
	counter(m.evictions, s.Evictions)
	counter(m.expirations, s.Expirations)
	counter(m.operations, s.Operations)
	counter(m.cleanupRuns, s.CleanupRuns)
	counter(m.pressure, s.PressureEvents)
	gauge(m.memoryUsage, s.MemoryUsagePercent)
	gauge(m.totalBytes, float64(s.TotalBytes))
	gauge(m.maxMemory, float64(s.MaxMemory))
	gauge(m.keys, float64(s.Keys))
	for _, t := range []Tier{TierHot, TierCold} {
		gauge(m.tierUsage, s.Tiers[t].UsagePercent, string(t))
		gauge(m.tierBytes, float64(s.Tiers[t].Bytes), string(t))
	}

	var status float64
	switch evaluateHealth(s).Status {
	case HealthWarning:
		status = 1
	case HealthCritical:
		status = 2
	}
	gauge(m.healthStatus, status)
}
