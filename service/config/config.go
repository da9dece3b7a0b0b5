package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Solana RPC configuration
	SolanaRPCURL      string
	SolanaNetwork     string
	RPCCommitment     string
	RPCCallTimeout    time.Duration
	RPCMaxRetries     int
	RPCRetryBaseDelay time.Duration
	RPCRateLimitDelay time.Duration
	RPCRateLimit      float64 // requests per second, 0 disables the limiter

	// Aggregation configuration
	FetchPoolSize    int
	DefaultPageLimit int
	MaxPageLimit     int
	HeadCacheTTL     time.Duration

	// Optional block cache
	RedisURL      string
	BlockCacheTTL time.Duration

	// Optional API key store
	DatabaseURL string

	// Optional head event stream
	NATSURL          string
	HeadPollInterval time.Duration

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
	CacheWarmInterval time.Duration
	CacheWarmLimit    int
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	if cfg.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}
	cfg.SolanaNetwork = getEnvOrDefault("SOLANA_NETWORK", "mainnet")

	cfg.RPCCommitment = getEnvOrDefault("RPC_COMMITMENT", "finalized")
	switch cfg.RPCCommitment {
	case "processed", "confirmed", "finalized":
	default:
		errs = append(errs, fmt.Errorf("RPC_COMMITMENT: unsupported commitment %q", cfg.RPCCommitment))
	}

	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	cfg.RPCCallTimeout, err = parseDuration("RPC_CALL_TIMEOUT", "5s")
	collect(err)
	cfg.RPCMaxRetries, err = parseInt("RPC_MAX_RETRIES", 2)
	collect(err)
	cfg.RPCRetryBaseDelay, err = parseDuration("RPC_RETRY_BASE_DELAY", "100ms")
	collect(err)
	cfg.RPCRateLimitDelay, err = parseDuration("RPC_RATE_LIMIT_DELAY", "1s")
	collect(err)
	cfg.RPCRateLimit, err = parseFloat("RPC_RATE_LIMIT", 0)
	collect(err)

	cfg.FetchPoolSize, err = parseInt("FETCH_POOL_SIZE", 8)
	collect(err)
	cfg.DefaultPageLimit, err = parseInt("DEFAULT_PAGE_LIMIT", 20)
	collect(err)
	cfg.MaxPageLimit, err = parseInt("MAX_PAGE_LIMIT", 100)
	collect(err)
	cfg.HeadCacheTTL, err = parseDuration("HEAD_CACHE_TTL", "400ms")
	collect(err)

	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.BlockCacheTTL, err = parseDuration("BLOCK_CACHE_TTL", "10m")
	collect(err)

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.HeadPollInterval, err = parseDuration("HEAD_POLL_INTERVAL", "1s")
	collect(err)

	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "solexplorer-cache-warmer")
	cfg.CacheWarmInterval, err = parseDuration("CACHE_WARM_INTERVAL", "30s")
	collect(err)
	cfg.CacheWarmLimit, err = parseInt("CACHE_WARM_LIMIT", 50)
	collect(err)

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.RPCCallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("RPCCallTimeout must be positive"))
	}

	if c.RPCMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("RPCMaxRetries cannot be negative"))
	}

	if c.RPCRateLimit < 0 {
		errs = append(errs, fmt.Errorf("RPCRateLimit cannot be negative"))
	}

	if c.FetchPoolSize < 1 {
		errs = append(errs, fmt.Errorf("FetchPoolSize must be at least 1"))
	}

	if c.DefaultPageLimit < 1 {
		errs = append(errs, fmt.Errorf("DefaultPageLimit must be at least 1"))
	}

	if c.MaxPageLimit < c.DefaultPageLimit {
		errs = append(errs, fmt.Errorf("MaxPageLimit (%d) cannot be less than DefaultPageLimit (%d)",
			c.MaxPageLimit, c.DefaultPageLimit))
	}

	if c.HeadCacheTTL < 0 {
		errs = append(errs, fmt.Errorf("HeadCacheTTL cannot be negative"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.CacheWarmInterval < time.Second {
		errs = append(errs, fmt.Errorf("CacheWarmInterval must be at least 1 second"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}
