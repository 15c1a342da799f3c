package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"github.com/TexasJeff75/hs360-backend/internal/catalog"
	"github.com/TexasJeff75/hs360-backend/internal/commission"
	"github.com/TexasJeff75/hs360-backend/internal/config"
	"github.com/TexasJeff75/hs360-backend/internal/obs"
	"github.com/TexasJeff75/hs360-backend/internal/resilience"
)

// Runs a full commission recalculation from the command line, outside the
// task queue. Useful after catalog cost corrections when waiting for an
// admin trigger is not an option.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger("console", "info").With().Str("component", "recalc").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.QueryTracer{}
	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(connectCtx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	// Cache is optional here; a missing Redis should not block a manual run.
	var cache *catalog.Cache
	if redisOpts, err := redis.ParseURL(cfg.RedisURL); err == nil {
		redisClient := redis.NewClient(redisOpts)
		if err := redisClient.Ping(connectCtx).Err(); err == nil {
			cache = catalog.NewCache(redisClient, cfg.CatalogCacheTTL)
			defer redisClient.Close()
		} else {
			logger.Warn().Err(err).Msg("redis unreachable, running without catalog cache")
		}
	}

	catalogBreaker := resilience.NewBreaker(cfg.CatalogBreakerMin, cfg.CatalogBreakerRate, cfg.CatalogBreakerOpen).
		WithTarget("catalog").
		WithLogger(logger)
	catalogClient, err := catalog.NewClient(catalog.ClientConfig{
		BaseURL:     cfg.CatalogBaseURL,
		AuthToken:   cfg.CatalogAuthToken,
		Breaker:     catalogBreaker,
		MaxAttempts: cfg.CatalogMaxRetries,
		BaseBackoff: cfg.CatalogRetryBase,
		Timeout:     cfg.CatalogTimeout,
		Cache:       cache,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog client")
	}

	recalculator := &commission.Recalculator{
		Records: &commission.Store{Pool: pool},
		Catalog: catalogClient,
		Logger:  logger,
	}

	started := time.Now()
	report, err := recalculator.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("recalculation aborted")
		os.Exit(1)
	}

	logger.Info().
		Int("processed", report.Processed).
		Int("updated", report.Updated).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Dur("elapsed", time.Since(started)).
		Msg("recalculation complete")

	if report.Failed > 0 {
		os.Exit(1)
	}
}
