package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete gateway configuration
type Config struct {
	Environment    string
	Observability  ObservabilityConfig
	RateLimit      RateLimitConfig
	Retry          RetryConfig
	CircuitBreaker CircuitBreakerConfig
	Cache          CacheConfig
	CostTracking   CostTrackingConfig
	Routing        RoutingConfig
	Ledger         LedgerConfig
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// RateLimitConfig holds the default per-provider throughput limits
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	TokensPerMinute   int
	BurstRequests     int
	BurstTokens       int
	Window            time.Duration
}

// RetryConfig holds the backoff parameters
type RetryConfig struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	JitterFactor    float64
}

// CircuitBreakerConfig holds the per-provider breaker parameters
type CircuitBreakerConfig struct {
	FailureThreshold uint32
	SuccessThreshold uint32
	Timeout          time.Duration
}

// CacheConfig holds the response cache configuration
type CacheConfig struct {
	Enabled    bool
	MaxEntries int
	TTL        time.Duration
}

// CostTrackingConfig holds the spend tracking configuration
type CostTrackingConfig struct {
	Enabled          bool
	Retention        time.Duration
	ProjectionFactor float64
	AtRiskThreshold  float64
	CleanupInterval  time.Duration
}

// RoutingConfig holds the ordered provider preference lists
type RoutingConfig struct {
	PreferredProviders []string
	FallbackProviders  []string
}

// LedgerConfig holds the optional durable cost ledger configuration.
// When DatabaseURL is empty the gateway keeps its ledger in memory only.
type LedgerConfig struct {
	DatabaseURL string
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env if present; missing files are fine.
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getEnvAsBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 60),
			TokensPerMinute:   getEnvAsInt("RATE_LIMIT_TOKENS_PER_MINUTE", 100000),
			BurstRequests:     getEnvAsInt("RATE_LIMIT_BURST_REQUESTS", 10),
			BurstTokens:       getEnvAsInt("RATE_LIMIT_BURST_TOKENS", 20000),
			Window:            getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Retry: RetryConfig{
			MaxAttempts:     getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:       getEnvAsDuration("RETRY_BASE_DELAY", time.Second),
			MaxDelay:        getEnvAsDuration("RETRY_MAX_DELAY", 60*time.Second),
			ExponentialBase: getEnvAsFloat("RETRY_EXPONENTIAL_BASE", 2.0),
			JitterFactor:    getEnvAsFloat("RETRY_JITTER_FACTOR", 0.1),
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: uint32(getEnvAsInt("CIRCUIT_BREAKER_FAILURE_THRESHOLD", 5)),
			SuccessThreshold: uint32(getEnvAsInt("CIRCUIT_BREAKER_SUCCESS_THRESHOLD", 2)),
			Timeout:          getEnvAsDuration("CIRCUIT_BREAKER_TIMEOUT", 60*time.Second),
		},
		Cache: CacheConfig{
			Enabled:    getEnvAsBool("CACHE_ENABLED", true),
			MaxEntries: getEnvAsInt("CACHE_MAX_ENTRIES", 1024),
			TTL:        getEnvAsDuration("CACHE_TTL", time.Hour),
		},
		CostTracking: CostTrackingConfig{
			Enabled:          getEnvAsBool("COST_TRACKING_ENABLED", true),
			Retention:        getEnvAsDuration("COST_RETENTION", 90*24*time.Hour),
			ProjectionFactor: getEnvAsFloat("COST_PROJECTION_FACTOR", 1.2),
			AtRiskThreshold:  getEnvAsFloat("COST_AT_RISK_THRESHOLD", 80.0),
			CleanupInterval:  getEnvAsDuration("COST_CLEANUP_INTERVAL", 24*time.Hour),
		},
		Routing: RoutingConfig{
			PreferredProviders: getEnvAsSlice("ROUTING_PREFERRED_PROVIDERS", nil),
			FallbackProviders:  getEnvAsSlice("ROUTING_FALLBACK_PROVIDERS", nil),
		},
		Ledger: LedgerConfig{
			DatabaseURL: getEnv("DATABASE_URL", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration ranges
func (c *Config) Validate() error {
	switch c.Observability.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log format must be json or console, got %q", c.Observability.LogFormat)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.ExponentialBase <= 1 {
		return fmt.Errorf("retry exponential base must be greater than 1, got %f", c.Retry.ExponentialBase)
	}
	if c.Retry.JitterFactor < 0 || c.Retry.JitterFactor > 1 {
		return fmt.Errorf("retry jitter factor must be in [0, 1], got %f", c.Retry.JitterFactor)
	}
	if c.CircuitBreaker.FailureThreshold == 0 {
		return fmt.Errorf("circuit breaker failure threshold must be positive")
	}
	if c.CircuitBreaker.SuccessThreshold == 0 {
		return fmt.Errorf("circuit breaker success threshold must be positive")
	}
	if c.RateLimit.RequestsPerMinute <= 0 || c.RateLimit.TokensPerMinute <= 0 {
		return fmt.Errorf("rate limit ceilings must be positive")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max entries must be positive, got %d", c.Cache.MaxEntries)
	}
	if c.CostTracking.ProjectionFactor < 1 {
		return fmt.Errorf("cost projection factor must be at least 1, got %f", c.CostTracking.ProjectionFactor)
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Helper functions for reading environment variables

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return defaultValue
}
