package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/TexasJeff75/hs360-backend/internal/catalog"
	"github.com/TexasJeff75/hs360-backend/internal/commission"
	"github.com/TexasJeff75/hs360-backend/internal/config"
	"github.com/TexasJeff75/hs360-backend/internal/obs"
	"github.com/TexasJeff75/hs360-backend/internal/resilience"
	"github.com/TexasJeff75/hs360-backend/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "hs360")
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool := mustInitDatabase(initCtx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(initCtx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

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
		Cache:       catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
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

	redisConn, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task server")
	}
	srv := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: cfg.RecalcConcurrency,
		Queues:      map[string]int{cfg.RecalcQueue: 1},
	})

	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeCommissionRecalculate, tasks.NewRecalcHandler(recalculator, logger))

	go func() {
		<-ctx.Done()
		srv.Shutdown()
	}()

	logger.Info().Str("queue", cfg.RecalcQueue).Int("concurrency", cfg.RecalcConcurrency).Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped with error")
	}
	logger.Info().Msg("worker shutdown complete")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.QueryTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "hs360-worker"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
