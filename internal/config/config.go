package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates application configuration values.
type Config struct {
	API        APIConfig
	Settlement SettlementConfig
	HTTP       HTTPConfig
	Redis      RedisConfig
	Upstream   UpstreamConfig
	Logging    LoggingConfig
}

// APIConfig describes how the upstream payments API is reached.
type APIConfig struct {
	BaseURL       string
	Timeout       time.Duration
	MaxRetries    int // total attempts per call
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	BackoffJitter float64
	// NonRetryableStatuses are 4xx/5xx codes returned to the caller without
	// retrying. Every other failure status is retried, including 400 and 429:
	// the ACME API answers some well-formed queries with a transient 400.
	// Set ACME_API_RETRY_STATUSES_EXCLUDE to add 400 when that is unwanted.
	NonRetryableStatuses []int
}

// SettlementConfig bounds the dates a settlement may be requested for.
type SettlementConfig struct {
	Earliest time.Time // zero means unbounded
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// RedisConfig enables the optional merchant cache. An empty Addr disables it.
type RedisConfig struct {
	Addr        string
	MerchantTTL time.Duration
}

// UpstreamConfig configures the local payments API simulator.
type UpstreamConfig struct {
	Port        int
	DBPath      string
	FailureRate float64
	PageSize    int
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level  string
	Format string // text|json
}

const (
	defaultBaseURL         = "https://api-engine-dev.clerq.io/tech_assessment"
	defaultTimeout         = 30 * time.Second
	defaultMaxRetries      = 3
	defaultBackoffBase     = time.Second
	defaultBackoffMax      = 10 * time.Second
	defaultBackoffJitter   = 0.5
	defaultNonRetryable    = "401,403,404,405,410,422" // 400 and 429 stay retryable
	defaultHost            = "0.0.0.0"
	defaultPort            = 8080
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 120 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMerchantTTL     = 5 * time.Minute
	defaultUpstreamPort    = 9090
	defaultUpstreamDB      = "upstream.db"
	defaultFailureRate     = 0.3
	defaultPageSize        = 50
	defaultLoggingLevel    = "info"
	defaultLoggingFormat   = "text"
)

// Load reads configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		API: APIConfig{
			BaseURL: strings.TrimRight(valueOrDefault("ACME_API_BASE_URL", defaultBaseURL), "/"),
		},
		HTTP: HTTPConfig{
			Host: valueOrDefault("SERVER_HOST", defaultHost),
		},
		Redis: RedisConfig{
			Addr: os.Getenv("REDIS_ADDR"),
		},
		Upstream: UpstreamConfig{
			DBPath: valueOrDefault("UPSTREAM_DB_PATH", defaultUpstreamDB),
		},
		Logging: LoggingConfig{
			Level:  valueOrDefault("LOG_LEVEL", defaultLoggingLevel),
			Format: valueOrDefault("LOG_FORMAT", defaultLoggingFormat),
		},
	}

	var err error
	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"ACME_API_TIMEOUT", defaultTimeout, &cfg.API.Timeout},
		{"ACME_API_BACKOFF_BASE", defaultBackoffBase, &cfg.API.BackoffBase},
		{"ACME_API_BACKOFF_MAX", defaultBackoffMax, &cfg.API.BackoffMax},
		{"SERVER_READ_TIMEOUT", defaultReadTimeout, &cfg.HTTP.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT", defaultWriteTimeout, &cfg.HTTP.WriteTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout, &cfg.HTTP.ShutdownTimeout},
		{"REDIS_MERCHANT_TTL", defaultMerchantTTL, &cfg.Redis.MerchantTTL},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(d.key, d.fallback); err != nil {
			return Config{}, err
		}
	}

	if cfg.API.MaxRetries, err = parseInt("ACME_API_MAX_RETRIES", defaultMaxRetries); err != nil {
		return Config{}, err
	}
	if cfg.API.MaxRetries < 1 {
		return Config{}, fmt.Errorf("ACME_API_MAX_RETRIES must be at least 1, got %d", cfg.API.MaxRetries)
	}

	if cfg.API.BackoffJitter, err = parseFraction("ACME_API_BACKOFF_JITTER", defaultBackoffJitter); err != nil {
		return Config{}, err
	}

	if cfg.API.NonRetryableStatuses, err = parseStatusList(valueOrDefault("ACME_API_RETRY_STATUSES_EXCLUDE", defaultNonRetryable)); err != nil {
		return Config{}, fmt.Errorf("invalid ACME_API_RETRY_STATUSES_EXCLUDE: %w", err)
	}

	if v := os.Getenv("SETTLEMENT_EARLIEST_DATE"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SETTLEMENT_EARLIEST_DATE: %w", err)
		}
		cfg.Settlement.Earliest = t
	}

	if cfg.HTTP.Port, err = parsePort("SERVER_PORT", defaultPort); err != nil {
		return Config{}, err
	}
	if cfg.Upstream.Port, err = parsePort("UPSTREAM_PORT", defaultUpstreamPort); err != nil {
		return Config{}, err
	}
	if cfg.Upstream.FailureRate, err = parseFraction("UPSTREAM_FAILURE_RATE", defaultFailureRate); err != nil {
		return Config{}, err
	}
	if cfg.Upstream.PageSize, err = parseInt("UPSTREAM_PAGE_SIZE", defaultPageSize); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: negative duration %s", key, d)
	}
	return d, nil
}

func parseInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	return n, nil
}

func parseFraction(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	if f < 0 || f > 1 {
		return 0, fmt.Errorf("%s must be between 0 and 1, got %v", key, f)
	}
	return f, nil
}

func parsePort(key string, fallback int) (int, error) {
	port, err := parseInt(key, fallback)
	if err != nil {
		return 0, err
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("port %d is out of range", port)
	}
	return port, nil
}

func parseStatusList(csv string) ([]int, error) {
	var codes []int
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		if code < 400 || code > 599 {
			return nil, fmt.Errorf("status %d is not a 4xx/5xx code", code)
		}
		codes = append(codes, code)
	}
	return codes, nil
}
