// Command tiercache serves a tiered in-process cache over HTTP, optionally
// reading through to Redis on misses.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/tiercache/pkg/cache"
	"github.com/Sternrassler/tiercache/pkg/logging"
	"github.com/Sternrassler/tiercache/pkg/metrics"
	"github.com/Sternrassler/tiercache/pkg/source"
	"github.com/Sternrassler/tiercache/pkg/warmup"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	// SourceEnabled turns on Redis read-through for GET misses.
	SourceEnabled bool     `env:"SOURCE_ENABLED" envDefault:"false"`
	WarmupKeys    []string `env:"WARMUP_KEYS" envSeparator:","`
}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

func run() error {
	_ = godotenv.Load()

	logCfg, err := logging.LoadConfig()
	if err != nil {
		return err
	}
	logging.Setup(logCfg)
	logger := logging.NewLogger("server")

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse server config: %w", err)
	}

	cacheCfg, err := cache.LoadConfig()
	if err != nil {
		return err
	}
	cacheCfg.Logger = logging.NewLogger("cache")

	c, err := cache.New(cacheCfg)
	if err != nil {
		return err
	}
	defer c.Close()

	collectors := []prometheus.Collector{c.Collector("tiercache")}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &server{
		cache:   c,
		logger:  logger,
		timeout: cfg.RequestTimeout,
	}

	if cfg.SourceEnabled {
		srcCfg, err := source.LoadConfig()
		if err != nil {
			return err
		}
		redisClient := source.NewClient(srcCfg)
		defer redisClient.Close()

		src := source.New(redisClient, srcCfg, logging.NewLogger("source"))
		if err := src.Ping(ctx); err != nil {
			return fmt.Errorf("connect to source: %w", err)
		}
		logger.Info().Str("addr", srcCfg.Addr).Msg("Connected to Redis source")

		srv.source = src
		collectors = append(collectors, src)

		if len(cfg.WarmupKeys) > 0 {
			warmCfg, err := warmup.LoadConfig()
			if err != nil {
				return err
			}
			w := warmup.New(c, src.Producer, warmCfg, logging.NewLogger("warmup"))
			if _, err := w.Run(ctx, cfg.WarmupKeys); err != nil {
				logger.Warn().Err(err).Msg("Cache warmup incomplete")
			}
		}
	}

	reg, err := metrics.NewRegistry(collectors...)
	if err != nil {
		return err
	}
	srv.gatherer = reg

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", httpServer.Addr).
			Int64("max_memory", c.MaxMemory()).
			Bool("read_through", cfg.SourceEnabled).
			Msg("Starting cache server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down cache server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
