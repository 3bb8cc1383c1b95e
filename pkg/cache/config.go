package cache

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// EvictionPolicy selects how victims are chosen under memory pressure.
type EvictionPolicy string

const (
	// PolicyLRU evicts the entry with the oldest LastAccessedAt.
	PolicyLRU EvictionPolicy = "LRU"

	// PolicyLFU evicts the entry with the lowest Frequency.
	PolicyLFU EvictionPolicy = "LFU"

	// PolicyHybrid scores recency and inverse frequency and evicts a batch.
	PolicyHybrid EvictionPolicy = "HYBRID"
)

const (
	defaultMaxMemory            = 100 * 1024 * 1024
	defaultL1CacheSize          = 10 * 1024 * 1024
	defaultMinMemory            = 10 * 1024 * 1024
	defaultMaxMemoryCeiling     = 1024 * 1024 * 1024
	defaultCompressionThreshold = 1024

	// fallbackSize is recorded when a value cannot be measured.
	fallbackSize = 1024
)

// Config holds the cache configuration. Every field has a default in
// DefaultConfig and can be overridden from the environment via LoadConfig.
type Config struct {
	// MaxMemory is the tracked-bytes ceiling. Recomputed periodically when
	// DynamicSizing is enabled.
	MaxMemory int64 `env:"CACHE_MAX_MEMORY"`

	// DefaultTTL applies to Set calls without an explicit TTL.
	DefaultTTL time.Duration `env:"CACHE_DEFAULT_TTL"`

	// Cleanup scheduler period. Adjusted between MinCleanupInterval and
	// MaxCleanupInterval based on memory usage.
	CleanupInterval     time.Duration `env:"CACHE_CLEANUP_INTERVAL"`
	MinCleanupInterval  time.Duration `env:"CACHE_MIN_CLEANUP_INTERVAL"`
	MaxCleanupInterval  time.Duration `env:"CACHE_MAX_CLEANUP_INTERVAL"`
	IntervalAdjustEvery time.Duration `env:"CACHE_INTERVAL_ADJUST_EVERY"`
	CleanupBatchSize    int           `env:"CACHE_CLEANUP_BATCH_SIZE"`

	// CompressionThreshold is the estimated size above which values are
	// compressed. Values over twice this size are placed in the cold tier.
	CompressionThreshold int64 `env:"CACHE_COMPRESSION_THRESHOLD"`

	// MemoryCleanupThreshold is the usage percentage that triggers the
	// scheduler's memory pass.
	MemoryCleanupThreshold float64 `env:"CACHE_MEMORY_CLEANUP_THRESHOLD"`

	// Dynamic sizing of MaxMemory from the MemoryProbe.
	DynamicSizing         bool          `env:"CACHE_DYNAMIC_SIZING"`
	HeapFraction          float64       `env:"CACHE_HEAP_FRACTION"`
	MinMemory             int64         `env:"CACHE_MIN_MEMORY"`
	MaxMemoryCeiling      int64         `env:"CACHE_MAX_MEMORY_CEILING"`
	CapacityCheckInterval time.Duration `env:"CACHE_CAPACITY_CHECK_INTERVAL"`

	// TieredCaching enables hot/cold placement and promotion.
	TieredCaching bool `env:"CACHE_TIERED"`

	// L1CacheSize is the fixed hot-tier budget in bytes.
	L1CacheSize int64 `env:"CACHE_L1_SIZE"`

	EvictionPolicy        EvictionPolicy `env:"CACHE_EVICTION_POLICY"`
	EvictionBatchFraction float64        `env:"CACHE_EVICTION_BATCH_FRACTION"`

	// Promotion of cold entries: Frequency must exceed PromotionFrequency
	// and the last access must be within PromotionWindow.
	PromotionFrequency int64         `env:"CACHE_PROMOTION_FREQUENCY"`
	PromotionWindow    time.Duration `env:"CACHE_PROMOTION_WINDOW"`

	// Compressor shrinks large payloads. Nil disables compression.
	Compressor Compressor

	// MemoryProbe reports available memory for dynamic sizing.
	MemoryProbe MemoryProbe

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time

	Logger zerolog.Logger
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		MaxMemory:              defaultMaxMemory,
		DefaultTTL:             5 * time.Minute,
		CleanupInterval:        60 * time.Second,
		MinCleanupInterval:     10 * time.Second,
		MaxCleanupInterval:     5 * time.Minute,
		IntervalAdjustEvery:    60 * time.Second,
		CleanupBatchSize:       100,
		CompressionThreshold:   defaultCompressionThreshold,
		MemoryCleanupThreshold: 75,
		DynamicSizing:          true,
		HeapFraction:           0.4,
		MinMemory:              defaultMinMemory,
		MaxMemoryCeiling:       defaultMaxMemoryCeiling,
		CapacityCheckInterval:  30 * time.Second,
		TieredCaching:          true,
		L1CacheSize:            defaultL1CacheSize,
		EvictionPolicy:         PolicyHybrid,
		EvictionBatchFraction:  0.2,
		PromotionFrequency:     3,
		PromotionWindow:        60 * time.Second,
		Compressor:             NewS2Compressor(),
		MemoryProbe:            NewRuntimeProbe(),
		Clock:                  time.Now,
		Logger:                 zerolog.Nop(),
	}
}

// LoadConfig returns DefaultConfig overridden by CACHE_* environment
// variables. A .env file in the working directory is loaded first if present.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse cache config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the cache cannot work with.
func (c Config) Validate() error {
	switch c.EvictionPolicy {
	case PolicyLRU, PolicyLFU, PolicyHybrid:
	default:
		return fmt.Errorf("unknown eviction policy %q", c.EvictionPolicy)
	}
	if c.MaxMemory <= 0 && !c.DynamicSizing {
		return fmt.Errorf("max memory must be > 0 (got %d)", c.MaxMemory)
	}
	if c.MemoryCleanupThreshold <= 0 || c.MemoryCleanupThreshold > 100 {
		return fmt.Errorf("memory cleanup threshold must be in (0, 100] (got %v)", c.MemoryCleanupThreshold)
	}
	if c.EvictionBatchFraction <= 0 || c.EvictionBatchFraction > 1 {
		return fmt.Errorf("eviction batch fraction must be in (0, 1] (got %v)", c.EvictionBatchFraction)
	}
	if c.DynamicSizing && (c.HeapFraction <= 0 || c.HeapFraction > 1) {
		return fmt.Errorf("heap fraction must be in (0, 1] (got %v)", c.HeapFraction)
	}
	if c.MinMemory > c.MaxMemoryCeiling {
		return fmt.Errorf("min memory %d exceeds max memory ceiling %d", c.MinMemory, c.MaxMemoryCeiling)
	}
	return nil
}

// withDefaults fills zero values a caller may have left out of a literal
// Config.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = d.DefaultTTL
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.MinCleanupInterval <= 0 {
		c.MinCleanupInterval = d.MinCleanupInterval
	}
	if c.MaxCleanupInterval <= 0 {
		c.MaxCleanupInterval = d.MaxCleanupInterval
	}
	if c.MaxCleanupInterval < c.MinCleanupInterval {
		c.MaxCleanupInterval = c.MinCleanupInterval
	}
	if c.IntervalAdjustEvery <= 0 {
		c.IntervalAdjustEvery = d.IntervalAdjustEvery
	}
	if c.CleanupBatchSize <= 0 {
		c.CleanupBatchSize = d.CleanupBatchSize
	}
	if c.CompressionThreshold <= 0 {
		c.CompressionThreshold = d.CompressionThreshold
	}
	if c.MemoryCleanupThreshold == 0 {
		c.MemoryCleanupThreshold = d.MemoryCleanupThreshold
	}
	if c.HeapFraction == 0 {
		c.HeapFraction = d.HeapFraction
	}
	if c.MinMemory <= 0 {
		c.MinMemory = d.MinMemory
	}
	if c.MaxMemoryCeiling <= 0 {
		c.MaxMemoryCeiling = d.MaxMemoryCeiling
	}
	if c.CapacityCheckInterval <= 0 {
		c.CapacityCheckInterval = d.CapacityCheckInterval
	}
	if c.L1CacheSize <= 0 {
		c.L1CacheSize = d.L1CacheSize
	}
	if c.EvictionPolicy == "" {
		c.EvictionPolicy = d.EvictionPolicy
	}
	if c.EvictionBatchFraction == 0 {
		c.EvictionBatchFraction = d.EvictionBatchFraction
	}
	if c.PromotionFrequency <= 0 {
		c.PromotionFrequency = d.PromotionFrequency
	}
	if c.PromotionWindow <= 0 {
		c.PromotionWindow = d.PromotionWindow
	}
	if c.MemoryProbe == nil {
		c.MemoryProbe = d.MemoryProbe
	}
	if c.Clock == nil {
		c.Clock = d.Clock
	}
	return c
}
