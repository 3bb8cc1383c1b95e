package cache

import (
	"fmt"
)

// HealthStatus is the overall verdict of a health check.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// Thresholds for the health verdict.
const (
	// MemoryCriticalPercent marks the cache critical at or above this usage.
	MemoryCriticalPercent = 90.0

	// MemoryWarningPercent marks the cache degraded at or above this usage.
	MemoryWarningPercent = 75.0

	// HitRateCritical and HitRateWarning apply once MinLookupsForHitRate
	// lookups have been served; a cold cache is not penalized.
	HitRateCritical      = 0.2
	HitRateWarning       = 0.5
	MinLookupsForHitRate = 100
)

// HealthReport carries the verdict and the raw numbers behind it.
type HealthReport struct {
	Status HealthStatus `json:"status"`

	MemoryUsagePercent float64 `json:"memory_usage_percent"`
	TotalBytes         int64   `json:"total_bytes"`
	MaxMemory          int64   `json:"max_memory"`
	HitRate            float64 `json:"hit_rate"`
	Lookups            int64   `json:"lookups"`
	Keys               int     `json:"keys"`
	HotUsagePercent    float64 `json:"hot_usage_percent"`
	PressureEvents     int64   `json:"pressure_events"`
	CleanupErrors      int64   `json:"cleanup_errors"`

	// Reasons lists each threshold that tripped.
	Reasons []string `json:"reasons,omitempty"`
}

// IsHealthy returns true when no threshold tripped.
func (r HealthReport) IsHealthy() bool {
	return r.Status == HealthHealthy
}

// Health evaluates memory usage and hit rate against the thresholds.
func (c *Cache) Health() HealthReport {
	return evaluateHealth(c.Stats())
}

func evaluateHealth(s Stats) HealthReport {
	r := HealthReport{
		Status:             HealthHealthy,
		MemoryUsagePercent: s.MemoryUsagePercent,
		TotalBytes:         s.TotalBytes,
		MaxMemory:          s.MaxMemory,
		HitRate:            s.HitRate,
		Lookups:            s.Hits + s.Misses,
		Keys:               s.Keys,
		HotUsagePercent:    s.Tiers[TierHot].UsagePercent,
		PressureEvents:     s.PressureEvents,
		CleanupErrors:      s.CleanupErrors,
	}

	switch {
	case r.MemoryUsagePercent >= MemoryCriticalPercent:
		r.escalate(HealthCritical, fmt.Sprintf("memory usage %.1f%% >= %.0f%%", r.MemoryUsagePercent, MemoryCriticalPercent))
	case r.MemoryUsagePercent >= MemoryWarningPercent:
		r.escalate(HealthWarning, fmt.Sprintf("memory usage %.1f%% >= %.0f%%", r.MemoryUsagePercent, MemoryWarningPercent))
	}

	if r.Lookups >= MinLookupsForHitRate {
		switch {
		case r.HitRate < HitRateCritical:
			r.escalate(HealthCritical, fmt.Sprintf("hit rate %.2f < %.2f", r.HitRate, HitRateCritical))
		case r.HitRate < HitRateWarning:
			r.escalate(HealthWarning, fmt.Sprintf("hit rate %.2f < %.2f", r.HitRate, HitRateWarning))
		}
	}

	return r
}

func (r *HealthReport) escalate(status HealthStatus, reason string) {
	r.Reasons = append(r.Reasons, reason)
	if status == HealthCritical || r.Status == HealthHealthy {
		r.Status = status
	}
}
