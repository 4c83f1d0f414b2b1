package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kbrauss/FMM2D/internal/api"
	"github.com/kbrauss/FMM2D/internal/cache"
	"github.com/kbrauss/FMM2D/internal/config"
	"github.com/kbrauss/FMM2D/internal/errorreporting"
	"github.com/kbrauss/FMM2D/internal/logger"
	"github.com/kbrauss/FMM2D/internal/metrics"
	"github.com/kbrauss/FMM2D/internal/middleware"
	"github.com/kbrauss/FMM2D/internal/secrets"
	"github.com/kbrauss/FMM2D/internal/solve"
	"github.com/kbrauss/FMM2D/internal/tracing"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	if envErr != nil {
		logger.Debug("no .env file found, using process environment")
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := errorreporting.Init(errorreporting.Options{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     cfg.SentryRelease,
		SampleRate:  cfg.SentrySampleRate,
	}); err != nil {
		logger.Warn("sentry disabled", "error", err, "dsn", secrets.MaskURL(cfg.SentryDSN))
	} else if errorreporting.IsSentryEnabled() {
		logger.Info("sentry enabled", "dsn", secrets.MaskURL(cfg.SentryDSN), "environment", cfg.SentryEnvironment)
	}
	defer errorreporting.Flush(2 * time.Second)

	shutdownTracing, err := tracing.Init(tracing.Options{
		ServiceName: "fmm2d",
		Enabled:     cfg.OTELEnabled,
		Endpoint:    cfg.OTELEndpoint,
		SampleRate:  cfg.OTELSampleRate,
	})
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var resultCache cache.Cache
	if cfg.EnableCache {
		lru, err := cache.NewLRU(int64(cfg.CacheMaxSizeMB), int64(cfg.CacheMaxEntries), cfg.CacheTTL)
		if err != nil {
			logger.Error("failed to create result cache", "error", err)
			os.Exit(1)
		}
		defer lru.Close()
		resultCache = lru

		collector := metrics.NewCollector(lru, 30*time.Second)
		go collector.Start(ctx)
		defer collector.Stop()
	}

	var limiter *middleware.RateLimiter
	if cfg.EnableRateLimit {
		limiter = middleware.NewRateLimiter(cfg.RateLimitGlobal, cfg.RateLimitGlobalBurst, cfg.RateLimitPerIP, cfg.RateLimitPerIPBurst)
		defer limiter.Stop()
	}

	cors := middleware.DefaultCORSConfig()
	if len(cfg.CORSAllowedOrigins) > 0 {
		cors.AllowedOrigins = cfg.CORSAllowedOrigins
	}

	svc := solve.NewService(solve.ConfigFrom(cfg), resultCache)
	router := api.NewRouter(api.Options{
		Solver:       svc,
		Cache:        resultCache,
		RateLimiter:  limiter,
		CORS:         cors,
		MaxBodyBytes: cfg.MaxBodyBytes,
		MaxPoints:    cfg.MaxPoints,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			"addr", cfg.HTTPAddr,
			"order", cfg.Order,
			"levels", []int{cfg.MinLevel, cfg.MaxLevel},
			"cache", cfg.EnableCache,
			"rate_limit", cfg.EnableRateLimit,
			"breaker_failures", cfg.BreakerFailures,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
			errorreporting.CaptureError(err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown failed", "error", err)
	}
}
