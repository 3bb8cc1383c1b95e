package cache

import (
	"time"
)

// Priority hints where a new entry should be placed.
type Priority int

const (
	// PriorityNormal lets the tier manager decide.
	PriorityNormal Priority = iota

	// PriorityHigh always places the entry in the hot tier.
	PriorityHigh
)

// tierManager decides hot/cold placement and promotion.
type tierManager struct {
	enabled            bool
	hotBudget          int64
	largeValue         int64
	promotionFrequency int64
	promotionWindow    time.Duration
}

func newTierManager(cfg Config) *tierManager {
	return &tierManager{
		enabled:            cfg.TieredCaching,
		hotBudget:          cfg.L1CacheSize,
		largeValue:         2 * cfg.CompressionThreshold,
		promotionFrequency: cfg.PromotionFrequency,
		promotionWindow:    cfg.PromotionWindow,
	}
}

// place picks the tier for a new entry of the given size given the current
// hot occupancy.
func (tm *tierManager) place(priority Priority, size, hotBytes int64) Tier {
	if !tm.enabled {
		return TierHot
	}
	switch {
	case priority == PriorityHigh:
		return TierHot
	case size > tm.largeValue:
		return TierCold
	case hotBytes < tm.hotBudget:
		return TierHot
	default:
		return TierCold
	}
}

// shouldPromote reports whether a cold entry has earned a hot slot.
// prevAccess is the entry's last access before the read being served.
func (tm *tierManager) shouldPromote(e *Entry, hotBytes int64, prevAccess, now time.Time) bool {
	if !tm.enabled || e.Tier != TierCold {
		return false
	}
	if e.Frequency <= tm.promotionFrequency {
		return false
	}
	if now.Sub(prevAccess) > tm.promotionWindow {
		return false
	}
	return hotBytes+e.SizeBytes <= tm.hotBudget
}
