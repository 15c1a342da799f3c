package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string

	JWTSecret string
	JWTIssuer string

	CatalogBaseURL     string
	CatalogAuthToken   string
	CatalogTimeout     time.Duration
	CatalogCacheTTL    time.Duration
	CatalogMaxRetries  int
	CatalogRetryBase   time.Duration
	CatalogBreakerMin  int
	CatalogBreakerRate float64
	CatalogBreakerOpen time.Duration

	CORSAllowedOrigins []string
	QuoteRateLimit     string
	QuotePerPageMax    int

	MigrationsDir string
	AutoMigrate   bool

	RecalcQueue       string
	RecalcConcurrency int
	RecalcTaskTTL     time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:      valueOrDefault(k.String("APP_ENV"), "development"),
		Port:        valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL: k.String("DATABASE_URL"),
		RedisURL:    k.String("REDIS_URL"),

		JWTSecret: k.String("JWT_SECRET"),
		JWTIssuer: strings.TrimSpace(k.String("JWT_ISSUER")),

		CatalogBaseURL:     strings.TrimRight(strings.TrimSpace(k.String("CATALOG_BASE_URL")), "/"),
		CatalogAuthToken:   k.String("CATALOG_AUTH_TOKEN"),
		CatalogTimeout:     parseDuration(k.String("CATALOG_TIMEOUT"), "5s"),
		CatalogCacheTTL:    parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		CatalogMaxRetries:  intOrDefault(k, "CATALOG_MAX_RETRIES", 3),
		CatalogRetryBase:   parseDuration(k.String("CATALOG_RETRY_BASE"), "200ms"),
		CatalogBreakerMin:  intOrDefault(k, "CATALOG_BREAKER_MIN_REQUESTS", 10),
		CatalogBreakerRate: floatOrDefault(k, "CATALOG_BREAKER_FAILURE_RATE", 0.5),
		CatalogBreakerOpen: parseDuration(k.String("CATALOG_BREAKER_OPEN_FOR"), "30s"),

		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		QuoteRateLimit:     valueOrDefault(k.String("QUOTE_RATE_LIMIT"), "120-M"),
		QuotePerPageMax:    intOrDefault(k, "LIST_PER_PAGE_MAX", 100),

		MigrationsDir: valueOrDefault(k.String("MIGRATIONS_DIR"), "migrations"),
		AutoMigrate:   parseBool(valueOrDefault(k.String("AUTO_MIGRATE"), "true")),

		RecalcQueue:       valueOrDefault(k.String("RECALC_QUEUE"), "commissions"),
		RecalcConcurrency: intOrDefault(k, "RECALC_CONCURRENCY", 1),
		RecalcTaskTTL:     parseDuration(k.String("RECALC_TASK_TTL"), "1h"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.CatalogBaseURL == "" {
		return nil, errors.New("CATALOG_BASE_URL is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// MustLoad behaves like Load but panics on error. Useful for command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(envVars map[string]string) (*Config, error) {
	original := make(map[string]string, len(envVars))
	for key := range envVars {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, envVars[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func intOrDefault(k *koanf.Koanf, key string, fallback int) int {
	if !k.Exists(key) || strings.TrimSpace(k.String(key)) == "" {
		return fallback
	}
	return k.Int(key)
}

func floatOrDefault(k *koanf.Koanf, key string, fallback float64) float64 {
	if !k.Exists(key) || strings.TrimSpace(k.String(key)) == "" {
		return fallback
	}
	return k.Float64(key)
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
