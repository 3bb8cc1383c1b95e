// Package source provides a Redis-backed value source that feeds the cache
// through cache.Query.
//
// Values are stored in Redis as JSON and returned as json.RawMessage, so the
// cache charges them at their encoded length. Transient failures are retried
// with exponential backoff; missing keys and undecodable payloads are not.
//
// Example usage:
//
//	src := source.New(source.NewClient(cfg), cfg, logger)
//	v, err := c.Query(ctx, "assessment:42", src.Producer("assessment:42"), cache.QueryOptions{})
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/tiercache/pkg/cache"
)

// Config holds the Redis connection and retry settings.
type Config struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// KeyPrefix is prepended to every key sent to Redis.
	KeyPrefix string `env:"SOURCE_KEY_PREFIX"`

	// Timeout bounds a single Redis call.
	Timeout time.Duration `env:"SOURCE_TIMEOUT" envDefault:"2s"`

	Retry RetryConfig `envPrefix:"SOURCE_RETRY_"`
}

// DefaultConfig returns the default source configuration.
func DefaultConfig() Config {
	return Config{
		Addr:    "localhost:6379",
		Timeout: 2 * time.Second,
		Retry:   DefaultRetryConfig(),
	}
}

// LoadConfig reads the source configuration from the environment.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse source config: %w", err)
	}
	return cfg, nil
}

// NewClient creates a go-redis client for cfg.
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		// Retries are handled by the source.
		MaxRetries: -1,
	})
}

// Source reads and writes JSON values in Redis.
type Source struct {
	redis   *redis.Client
	prefix  string
	timeout time.Duration
	retry   RetryConfig
	logger  zerolog.Logger

	fetches *prometheus.CounterVec
	retries *prometheus.CounterVec
}

// New creates a source on top of redisClient.
func New(redisClient *redis.Client, cfg Config, logger zerolog.Logger) *Source {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Source{
		redis:   redisClient,
		prefix:  cfg.KeyPrefix,
		timeout: cfg.Timeout,
		retry:   cfg.Retry,
		logger:  logger,
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiercache",
			Subsystem: "source",
			Name:      "fetches_total",
			Help:      "Source fetches by result",
		}, []string{"result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiercache",
			Subsystem: "source",
			Name:      "retries_total",
			Help:      "Source retry attempts by error class",
		}, []string{"error_class"}),
	}
}

// Fetch returns the JSON payload stored under key.
// Returns an error matching ErrNotFound if the key does not exist.
func (s *Source) Fetch(ctx context.Context, key string) (json.RawMessage, error) {
	var data []byte
	err := retryWithBackoff(ctx, s.retry, s.logger, s.recordRetry, func() error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		b, err := s.redis.Get(callCtx, s.prefix+key).Bytes()
		if err != nil {
			return &SourceError{Key: key, Class: classify(ctx, err), Err: err}
		}
		data = b
		return nil
	})
	if err != nil {
		s.fetches.WithLabelValues(string(classOf(err))).Inc()
		return nil, err
	}

	if !json.Valid(data) {
		s.fetches.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &SourceError{Key: key, Class: ErrorClassDecode, Err: errors.New("payload is not valid JSON")}
	}

	s.fetches.WithLabelValues("hit").Inc()
	s.logger.Debug().
		Str("key", key).
		Int("size_bytes", len(data)).
		Msg("Source fetch")
	return json.RawMessage(data), nil
}

// Store encodes value as JSON and writes it with ttl. A ttl <= 0 stores
// the value without expiry.
func (s *Source) Store(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return &SourceError{Key: key, Class: ErrorClassDecode, Err: err}
	}
	if ttl < 0 {
		ttl = 0
	}

	return retryWithBackoff(ctx, s.retry, s.logger, s.recordRetry, func() error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		if err := s.redis.Set(callCtx, s.prefix+key, data, ttl).Err(); err != nil {
			return &SourceError{Key: key, Class: classify(ctx, err), Err: err}
		}
		return nil
	})
}

// Delete removes key from Redis. Deleting an absent key is not an error.
func (s *Source) Delete(ctx context.Context, key string) error {
	return retryWithBackoff(ctx, s.retry, s.logger, s.recordRetry, func() error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		if err := s.redis.Del(callCtx, s.prefix+key).Err(); err != nil {
			return &SourceError{Key: key, Class: classify(ctx, err), Err: err}
		}
		return nil
	})
}

// Producer adapts Fetch for key to a cache.Producer.
func (s *Source) Producer(key string) cache.Producer {
	return func(ctx context.Context) (any, error) {
		v, err := s.Fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// Ping checks connectivity.
func (s *Source) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *Source) recordRetry(class ErrorClass) {
	s.retries.WithLabelValues(string(class)).Inc()
}

// Describe implements prometheus.Collector.
func (s *Source) Describe(ch chan<- *prometheus.Desc) {
	s.fetches.Describe(ch)
	s.retries.Describe(ch)
}

// Collect implements prometheus.Collector.
func (s *Source) Collect(ch chan<- prometheus.Metric) {
	s.fetches.Collect(ch)
	s.retries.Collect(ch)
}
