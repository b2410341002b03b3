package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins string

	PharosAPIBase     string
	PharosBearerToken string
	ProxyList         string

	RedisURL    string
	DatabaseURL string

	CacheBackend         string
	CacheTTL             time.Duration
	CacheMaxSize         int
	CacheCleanupFraction int

	UpstreamProxyTimeout  time.Duration
	UpstreamDirectTimeout time.Duration

	LeaderboardTopN int
	LeaderboardTTL  time.Duration
	RefreshCron     string

	AdminJWTSecret string
	CronSecret     string

	RateLimitRPS   float64
	RateLimitBurst int

	LogLevel  string
	LogFormat string
	LogFile   string
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),

		PharosAPIBase:     getEnv("PHAROS_API_BASE", "https://api.pharosnetwork.xyz"),
		PharosBearerToken: os.Getenv("PHAROS_BEARER_TOKEN"),
		ProxyList:         os.Getenv("PROXY_LIST"),

		RedisURL:    os.Getenv("REDIS_URL"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		CacheBackend: getEnv("CACHE_BACKEND", CacheBackendMemory),
		RefreshCron:  getEnv("REFRESH_CRON", "0 0 * * *"),

		AdminJWTSecret: os.Getenv("ADMIN_JWT_SECRET"),
		CronSecret:     os.Getenv("CRON_SECRET"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
		LogFile:   os.Getenv("LOG_FILE"),
	}

	if cfg.CacheBackend != CacheBackendMemory && cfg.CacheBackend != CacheBackendRedis {
		return nil, fmt.Errorf("invalid CACHE_BACKEND %q: want %q or %q", cfg.CacheBackend, CacheBackendMemory, CacheBackendRedis)
	}

	// Parsing durations
	var err error
	if cfg.CacheTTL, err = parseDuration(getEnv("CACHE_TTL", "5m")); err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}
	if cfg.UpstreamProxyTimeout, err = parseDuration(getEnv("UPSTREAM_PROXY_TIMEOUT", "15s")); err != nil {
		return nil, fmt.Errorf("invalid UPSTREAM_PROXY_TIMEOUT: %w", err)
	}
	if cfg.UpstreamDirectTimeout, err = parseDuration(getEnv("UPSTREAM_DIRECT_TIMEOUT", "12s")); err != nil {
		return nil, fmt.Errorf("invalid UPSTREAM_DIRECT_TIMEOUT: %w", err)
	}
	if cfg.LeaderboardTTL, err = parseDuration(getEnv("LEADERBOARD_TTL", "24h")); err != nil {
		return nil, fmt.Errorf("invalid LEADERBOARD_TTL: %w", err)
	}

	// Parsing numbers
	if cfg.CacheMaxSize, err = parsePositiveInt(getEnv("CACHE_MAX_SIZE", "20000")); err != nil {
		return nil, fmt.Errorf("invalid CACHE_MAX_SIZE: %w", err)
	}
	if cfg.CacheCleanupFraction, err = parsePositiveInt(getEnv("CACHE_CLEANUP_FRACTION", "4")); err != nil {
		return nil, fmt.Errorf("invalid CACHE_CLEANUP_FRACTION: %w", err)
	}
	if cfg.LeaderboardTopN, err = parsePositiveInt(getEnv("LEADERBOARD_TOP_N", "100")); err != nil {
		return nil, fmt.Errorf("invalid LEADERBOARD_TOP_N: %w", err)
	}
	if cfg.RateLimitBurst, err = parsePositiveInt(getEnv("RATE_LIMIT_BURST", "30")); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}
	if cfg.RateLimitRPS, err = strconv.ParseFloat(getEnv("RATE_LIMIT_RPS", "5"), 64); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}
