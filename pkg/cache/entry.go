package cache

import (
	"time"
)

// Tier is the placement class of a cache entry.
type Tier string

const (
	// TierHot holds frequently accessed entries within the L1 budget.
	TierHot Tier = "hot"

	// TierCold holds everything else.
	TierCold Tier = "cold"
)

// Entry is a single resident cache entry.
type Entry struct {
	// Key is the cache key.
	Key string

	// Value is the stored payload. When Compressed is set it holds a
	// compressedValue and must be decoded before it is handed out.
	Value any

	// Tags are labels used for bulk invalidation.
	Tags map[string]struct{}

	// SizeBytes is the estimated footprint recorded at insert time.
	SizeBytes int64

	// AccessCount and Frequency are bumped on every successful read.
	AccessCount int64
	Frequency   int64

	// Tier is where the entry currently lives.
	Tier Tier

	// Compressed is true when Value went through the compressor.
	Compressed bool

	TTL            time.Duration
	ExpiresAt      time.Time
	LastAccessedAt time.Time
	CreatedAt      time.Time
}

// IsExpired reports whether the entry is logically dead at now.
func (e *Entry) IsExpired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Remaining returns the time left until expiry.
// Returns 0 if already expired.
func (e *Entry) Remaining(now time.Time) time.Duration {
	d := e.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// HasAnyTag reports whether the entry carries any of the given tags.
func (e *Entry) HasAnyTag(tags map[string]struct{}) bool {
	for t := range tags {
		if _, ok := e.Tags[t]; ok {
			return true
		}
	}
	return false
}

func tagSet(tags []string) map[string]struct{} {
	if len(tags) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		set[t] = struct{}{}
	}
	return set
}
