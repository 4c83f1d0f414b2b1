package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kbrauss/FMM2D/internal/utils"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	// Solver defaults
	Order            int // truncation order p
	MinLevel         int // shallowest level tried by depth search
	MaxLevel         int // deepest level tried by depth search
	ClusterThreshold int // max points per leaf accepted by depth search
	MaxPoints        int // upper bound on sources plus targets per request
	// CompareMaxPairs caps sources×targets for the O(N·M) comparison run.
	CompareMaxPairs int64
	SolveTimeout    time.Duration
	// Consecutive timeouts or internal failures before solves are shed,
	// and how long they stay shed. Zero failures disables the breaker.
	BreakerFailures int
	BreakerCooldown time.Duration
	// HTTP server
	HTTPAddr           string
	MaxBodyBytes       int64
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	CORSAllowedOrigins []string
	// Security settings
	RateLimitGlobal      float64 // requests per second globally
	RateLimitGlobalBurst int     // burst size for global rate limit
	RateLimitPerIP       float64 // requests per second per IP
	RateLimitPerIPBurst  int     // burst size for per-IP rate limit
	EnableRateLimit      bool    // enable rate limiting middleware
	// Result cache
	EnableCache     bool
	CacheMaxSizeMB  int
	CacheMaxEntries int
	CacheTTL        time.Duration
	// Observability settings
	LogLevel          string  // log level: debug, info, warn, error
	OTELEnabled       bool    // enable OpenTelemetry tracing
	OTELEndpoint      string  // OpenTelemetry collector endpoint
	OTELSampleRate    float64 // trace sampling rate (0.0 to 1.0)
	SentryDSN         string  // Sentry DSN for error reporting
	SentryEnvironment string  // Sentry environment (dev, staging, production)
	SentryRelease     string  // Sentry release version
	SentrySampleRate  float64 // Sentry error sampling rate (0.0 to 1.0)
}

var cached *Config

// Load reads env vars once and caches them.
func Load() *Config {
	if cached != nil {
		return cached
	}
	cached = &Config{
		Order:            utils.GetEnvAsInt("FMM_ORDER", 12),
		MinLevel:         utils.GetEnvAsInt("FMM_MIN_LEVEL", 2),
		MaxLevel:         utils.GetEnvAsInt("FMM_MAX_LEVEL", 8),
		ClusterThreshold: utils.GetEnvAsInt("FMM_CLUSTER_THRESHOLD", 5),
		MaxPoints:        utils.GetEnvAsInt("FMM_MAX_POINTS", 200000),
		CompareMaxPairs:  int64(utils.GetEnvAsInt("FMM_COMPARE_MAX_PAIRS", 25_000_000)),
		SolveTimeout:     utils.GetEnvAsMillis("SOLVE_TIMEOUT_MS", 30000),
		BreakerFailures:  utils.GetEnvAsInt("FMM_BREAKER_FAILURES", 5),
		BreakerCooldown:  utils.GetEnvAsMillis("FMM_BREAKER_COOLDOWN_MS", 30000),
		HTTPAddr:         utils.GetEnvAsString("HTTP_ADDR", ":8000"),
		MaxBodyBytes:     int64(utils.GetEnvAsInt("HTTP_MAX_BODY_BYTES", 32<<20)),
		ReadTimeout:      utils.GetEnvAsMillis("HTTP_READ_TIMEOUT_MS", 15000),
		WriteTimeout:     utils.GetEnvAsMillis("HTTP_WRITE_TIMEOUT_MS", 60000),
		// Security settings with sensible defaults
		RateLimitGlobal:      utils.GetEnvAsFloat("RATE_LIMIT_GLOBAL", 50.0),
		RateLimitGlobalBurst: utils.GetEnvAsInt("RATE_LIMIT_GLOBAL_BURST", 100),
		RateLimitPerIP:       utils.GetEnvAsFloat("RATE_LIMIT_PER_IP", 5.0),
		RateLimitPerIPBurst:  utils.GetEnvAsInt("RATE_LIMIT_PER_IP_BURST", 10),
		EnableRateLimit:      utils.GetEnvAsBool("ENABLE_RATE_LIMIT", true),
		// Result cache
		EnableCache:     utils.GetEnvAsBool("ENABLE_CACHE", true),
		CacheMaxSizeMB:  utils.GetEnvAsInt("CACHE_MAX_SIZE_MB", 256),
		CacheMaxEntries: utils.GetEnvAsInt("CACHE_MAX_ENTRIES", 1000),
		CacheTTL:        time.Duration(utils.GetEnvAsInt("CACHE_TTL_SECONDS", 300)) * time.Second,
		// Observability settings
		LogLevel:          strings.ToLower(utils.GetEnvAsString("LOG_LEVEL", "info")),
		OTELEnabled:       utils.GetEnvAsBool("OTEL_ENABLED", false),
		OTELEndpoint:      utils.GetEnvAsString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELSampleRate:    utils.GetEnvAsFloat("OTEL_TRACE_SAMPLE_RATE", 0.1),
		SentryDSN:         utils.GetEnvAsString("SENTRY_DSN", ""),
		SentryEnvironment: utils.GetEnvAsString("SENTRY_ENVIRONMENT", ""),
		SentryRelease:     utils.GetEnvAsString("SENTRY_RELEASE", ""),
		SentrySampleRate:  utils.GetEnvAsFloat("SENTRY_SAMPLE_RATE", 1.0),
		CORSAllowedOrigins: utils.GetEnvAsSlice("CORS_ALLOWED_ORIGINS",
			[]string{"http://localhost:5173", "http://localhost:3000"}, ","),
	}
	if cached.SentryEnvironment == "" {
		if env := os.Getenv("ENV"); env != "" {
			cached.SentryEnvironment = env
		} else {
			cached.SentryEnvironment = "development"
		}
	}
	return cached
}

// ResetForTest clears cached config; for use in tests only.
func ResetForTest() { cached = nil }

// Validate reports solver settings no solve could run with.
func (c *Config) Validate() error {
	switch {
	case c.Order <= 0:
		return fmt.Errorf("config: FMM_ORDER must be positive, got %d", c.Order)
	case c.MinLevel < 1 || c.MaxLevel > 8 || c.MinLevel > c.MaxLevel:
		return fmt.Errorf("config: FMM_MIN_LEVEL/FMM_MAX_LEVEL must satisfy 1 <= min <= max <= 8, got %d..%d", c.MinLevel, c.MaxLevel)
	case c.ClusterThreshold < 1:
		return fmt.Errorf("config: FMM_CLUSTER_THRESHOLD must be at least 1, got %d", c.ClusterThreshold)
	case c.MaxPoints < 1:
		return fmt.Errorf("config: FMM_MAX_POINTS must be at least 1, got %d", c.MaxPoints)
	}
	return nil
}
