// Package warmup fills a cache ahead of traffic by loading a list of keys in
// parallel with bounded concurrency.
//
// Example usage:
//
//	w := warmup.New(c, src.Producer, warmup.DefaultConfig(), logger)
//	report, err := w.Run(ctx, []string{"assessment:1", "assessment:2"})
package warmup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/tiercache/pkg/cache"
)

// Config holds warmer configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel loads.
	MaxConcurrency int `env:"WARMUP_CONCURRENCY" envDefault:"10"`

	// Timeout per key load.
	Timeout time.Duration `env:"WARMUP_TIMEOUT" envDefault:"15s"`

	// TTL and Tags are applied to every warmed entry.
	TTL  time.Duration `env:"WARMUP_TTL"`
	Tags []string      `env:"WARMUP_TAGS" envSeparator:","`

	// SkipCached leaves keys that are already resident untouched.
	SkipCached bool `env:"WARMUP_SKIP_CACHED" envDefault:"true"`
}

// DefaultConfig returns the default warmer configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 10,
		Timeout:        15 * time.Second,
		SkipCached:     true,
	}
}

// LoadConfig reads WARMUP_* variables from the environment.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse warmup config: %w", err)
	}
	return cfg, nil
}

// ProducerFunc returns the producer that computes key.
type ProducerFunc func(key string) cache.Producer

// Report summarizes one warmup run.
type Report struct {
	Loaded   int
	Skipped  int
	Failed   map[string]error
	Duration time.Duration
}

// Warmer loads keys into a cache.
type Warmer struct {
	cache    *cache.Cache
	producer ProducerFunc
	config   Config
	logger   zerolog.Logger
}

// New creates a warmer.
func New(c *cache.Cache, producer ProducerFunc, config Config, logger zerolog.Logger) *Warmer {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 10
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	return &Warmer{
		cache:    c,
		producer: producer,
		config:   config,
		logger:   logger,
	}
}

// Run loads every key through the cache. Individual failures do not stop
// the run; they are collected in Report.Failed and joined into the returned
// error. Cancelling ctx stops workers from picking up new keys.
func (w *Warmer) Run(ctx context.Context, keys []string) (Report, error) {
	start := time.Now()
	report := Report{Failed: make(map[string]error)}
	var mu sync.Mutex

	w.logger.Info().
		Int("keys", len(keys)).
		Int("concurrency", w.config.MaxConcurrency).
		Msg("Starting cache warmup")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.MaxConcurrency)

	for _, key := range keys {
		if gctx.Err() != nil {
			break
		}
		if w.config.SkipCached {
			if _, ok := w.cache.Inspect(key); ok {
				mu.Lock()
				report.Skipped++
				mu.Unlock()
				continue
			}
		}

		g.Go(func() error {
			err := w.load(gctx, key)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[key] = err
				w.logger.Warn().Err(err).Str("key", key).Msg("Warmup load failed")
				return nil
			}
			report.Loaded++
			if report.Loaded%50 == 0 {
				w.logger.Info().
					Int("loaded", report.Loaded).
					Int("total", len(keys)).
					Msg("Warmup progress")
			}
			return nil
		})
	}

	_ = g.Wait()
	report.Duration = time.Since(start)

	w.logger.Info().
		Int("loaded", report.Loaded).
		Int("skipped", report.Skipped).
		Int("failed", len(report.Failed)).
		Dur("duration", report.Duration).
		Msg("Cache warmup complete")

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("warmup interrupted (%d/%d loaded): %w", report.Loaded, len(keys), err)
	}
	if len(report.Failed) > 0 {
		errs := make([]error, 0, len(report.Failed))
		for key, err := range report.Failed {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return report, fmt.Errorf("warmup partial (%d/%d loaded): %w", report.Loaded, len(keys), errors.Join(errs...))
	}
	return report, nil
}

func (w *Warmer) load(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	_, err := w.cache.Query(ctx, key, w.producer(key), cache.QueryOptions{
		TTL:  w.config.TTL,
		Tags: w.config.Tags,
	})
	return err
}
