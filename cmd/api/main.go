package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/transcribegateway/internal/api"
	"github.com/nikhilbhutani/transcribegateway/internal/api/handlers"
	"github.com/nikhilbhutani/transcribegateway/internal/api/middleware"
	"github.com/nikhilbhutani/transcribegateway/internal/cache"
	"github.com/nikhilbhutani/transcribegateway/internal/config"
	"github.com/nikhilbhutani/transcribegateway/internal/gateway"
	"github.com/nikhilbhutani/transcribegateway/internal/metrics"
	"github.com/nikhilbhutani/transcribegateway/internal/stt"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	m := metrics.New()

	provider := stt.NewRemote(stt.RemoteConfig{
		BaseURL:       cfg.Provider.BaseURL,
		Timeout:       cfg.Provider.Timeout,
		HealthTimeout: cfg.Provider.HealthTimeout,
	})
	svc := gateway.NewService(provider, m)

	deps := map[string]handlers.Pinger{}

	// Redis is only needed for the shared rate limiter.
	var counter *cache.Counter
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		counter = cache.NewCounter(rdb, "ratelimit:")
		if err := counter.Ping(ctx); err != nil {
			slog.Warn("redis unavailable, rate limiter will fail open", "error", err)
		}
		deps["redis"] = counter
	}

	var limiter middleware.Limiter
	if cfg.RateLimit.RPS > 0 {
		if counter != nil {
			limiter = middleware.NewRedisLimiter(counter, cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		} else {
			ml := middleware.NewMemoryLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
			defer ml.Close()
			limiter = ml
		}
		slog.Info("rate limiting enabled", "rps", cfg.RateLimit.RPS, "burst", cfg.RateLimit.Burst, "shared", counter != nil)
	}

	router := api.NewRouter(cfg, svc, m, limiter, deps)
	handler := router.Setup()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting transcription gateway", "addr", cfg.Addr(), "provider", cfg.Provider.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
