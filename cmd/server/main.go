package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cardotrejos/babypeek-sub000/config"
	"github.com/cardotrejos/babypeek-sub000/internal/clock"
	"github.com/cardotrejos/babypeek-sub000/internal/generation"
	"github.com/cardotrejos/babypeek-sub000/internal/health"
	"github.com/cardotrejos/babypeek-sub000/internal/infrastructure/postgres"
	"github.com/cardotrejos/babypeek-sub000/internal/lifecycle"
	ctxlog "github.com/cardotrejos/babypeek-sub000/internal/log"
	"github.com/cardotrejos/babypeek-sub000/internal/metrics"
	"github.com/cardotrejos/babypeek-sub000/internal/ratelimit"
	"github.com/cardotrejos/babypeek-sub000/internal/retry"
	"github.com/cardotrejos/babypeek-sub000/internal/sweeper"
	httptransport "github.com/cardotrejos/babypeek-sub000/internal/transport/http"
	"github.com/cardotrejos/babypeek-sub000/internal/transport/http/handler"
	"github.com/cardotrejos/babypeek-sub000/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		stop()
		log.Fatalf("migrate: %v", err)
	}

	metrics.Register()
	checker := health.NewChecker(logger, prometheus.DefaultRegisterer)
	checker.Add("postgres", pool)

	sysClock := clock.System()

	jobStore := postgres.NewJobStore(pool)
	machine := lifecycle.NewMachine(jobStore, sysClock, logger)

	var limiter ratelimit.Store
	var windowSweeper sweeper.WindowSweeper
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			stop()
			log.Fatalf("redis: %v", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		checker.Add("redis", health.PingerFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
		limiter = ratelimit.NewRedisStore(rdb, cfg.RateLimit, cfg.RateWindow())
		logger.Info("rate limiter using redis store")
	} else {
		memStore := ratelimit.NewMemoryStore(cfg.RateLimit, cfg.RateWindow(), sysClock)
		limiter = memStore
		windowSweeper = memStore
		logger.Info("rate limiter using in-process store")
	}

	generator := generation.NewClient(generation.ClientConfig{
		BaseURL: cfg.GenerationURL,
		APIKey:  cfg.GenerationAPIKey,
		Model:   cfg.GenerationModel,
		Timeout: time.Duration(cfg.GenerationTimeout) * time.Second,
	})

	policy := retry.Policy{
		MaxRetries:     cfg.RetryMax,
		BaseDelay:      time.Duration(cfg.RetryBaseMS) * time.Millisecond,
		Multiplier:     2,
		JitterFraction: 0.1,
		Timeout:        time.Duration(cfg.RetryTimeoutSec) * time.Second,
	}

	jobUsecase := usecase.NewJobUsecase(machine, generator, policy, logger)
	jobHandler := handler.NewJobHandler(jobUsecase, logger)

	swp, err := sweeper.New(windowSweeper, jobStore, sysClock, logger, cfg.SweepInterval(), cfg.StaleAfter())
	if err != nil {
		stop()
		log.Fatalf("sweeper: %v", err)
	}
	swp.Start()
	defer swp.Stop()

	srv := http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httptransport.NewRouter(logger, jobHandler, limiter, cfg.RateKeySalt, []byte(cfg.JWTSecret)),
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
