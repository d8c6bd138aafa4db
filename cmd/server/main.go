package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chocobo244/creatingcustomersegment/internal/attribution"
	"github.com/chocobo244/creatingcustomersegment/internal/auth"
	"github.com/chocobo244/creatingcustomersegment/internal/cache"
	"github.com/chocobo244/creatingcustomersegment/internal/config"
	"github.com/chocobo244/creatingcustomersegment/internal/database"
	"github.com/chocobo244/creatingcustomersegment/internal/errors"
	"github.com/chocobo244/creatingcustomersegment/internal/leaderboard"
	"github.com/chocobo244/creatingcustomersegment/internal/monitoring"
	"github.com/chocobo244/creatingcustomersegment/internal/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured logging setup
	appLogger := monitoring.NewLoggerWithWriter(os.Stdout, monitoring.ParseLevel(cfg.LogLevel))
	slog.SetDefault(appLogger.Logger)

	gin.SetMode(cfg.GinMode)

	appMetrics := monitoring.NewMetrics().WithPrometheus(monitoring.NewPrometheusMetrics())

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Run history is optional; the service still attributes without it
	var (
		db     *database.DB
		runs   *database.RunService
		boards *leaderboard.Service
	)
	if cfg.StoreRuns {
		pool := database.DefaultPoolConfig()
		pool.MaxOpenConns = cfg.DBMaxOpenConns
		pool.MaxIdleConns = cfg.DBMaxIdleConns
		db, err = database.NewDBWithPool(cfg.DataDir, pool)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer errors.SafeClose(db, "database")

		runs = database.NewRunService(database.NewRepository(db), cfg.RunRetention)
		runs.StartRetention(ctx, time.Hour)

		boards = leaderboard.NewService(runs, cfg.CacheTTL)
		defer errors.SafeClose(boards, "leaderboard cache")
	}

	// Redis backs both the shared cache and the rate limiter when reachable
	redisClient, err := ratelimit.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
		ratelimit.WithPoolSize(cfg.RedisPoolSize))
	if err != nil {
		slog.Warn("Continuing without Redis", "error", err)
	}
	defer errors.SafeClose(redisClient, "redis")

	var store cache.Store
	if redisClient.IsEnabled() {
		store = cache.NewRedisStore(redisClient.GetClient(), cfg.CacheTTL)
	} else {
		memoryCache := cache.NewBoundedCache(cfg.CacheTTL, cfg.CacheMaxEntries)
		defer errors.SafeClose(memoryCache, "memory cache")
		store = memoryCache
	}

	limiterConfig := ratelimit.DefaultConfig()
	limiterConfig.IPLimitPerMin = cfg.IPRateLimitPerMin
	limiterConfig.TenantLimitPerMin = cfg.TenantRateLimitPerMin
	limiter := ratelimit.NewRateLimiter(redisClient, limiterConfig, appMetrics)
	defer limiter.Close()

	var authenticator *auth.Authenticator
	if cfg.AdminEnabled() {
		authenticator, err = auth.NewAuthenticator(cfg.AdminJWTSecret, cfg.AdminJWTIssuer)
		if err != nil {
			slog.Error("Failed to initialize admin authentication", "error", err)
			os.Exit(1)
		}
	}

	srv := &Server{
		cfg:     cfg,
		configs: attribution.NewConfigStore(cfg.ModelConfigDir),
		store:   store,
		runs:    runs,
		boards:  boards,
		db:      db,
		redis:   redisClient,
		limiter: limiter,
		auth:    authenticator,
		metrics: appMetrics,
		logger:  appLogger,
		tracer:  monitoring.NewTracer(serviceName, appLogger),
		started: time.Now(),
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           setupRouter(srv),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Starting server", "addr", httpServer.Addr, "redis", redisClient.IsEnabled(), "store_runs", cfg.StoreRuns)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}
