package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/salespulse/salespulse/internal/analytics"
	"github.com/salespulse/salespulse/internal/app"
	"github.com/salespulse/salespulse/internal/dashboard"
	dashboardhttp "github.com/salespulse/salespulse/internal/dashboard/http"
	"github.com/salespulse/salespulse/internal/observability"
	"github.com/salespulse/salespulse/internal/platform/cache"
	"github.com/salespulse/salespulse/internal/platform/db"
	"github.com/salespulse/salespulse/internal/records"
	"github.com/salespulse/salespulse/jobs"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.TestMode {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] != "serve" {
		os.Exit(runOps(ctx, cfg, os.Args[1:], os.Stdout))
	}

	if err := serve(ctx, stop, cfg, logger); err != nil {
		logger.Error("salespulse", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{ApplicationName: "salespulse-api"})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, snapshot versions disabled", slog.Any("error", err))
		redisClient = nil
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	service := newDashboardService(cfg, pool, logger, metrics)

	notifier := dashboard.NewNotifier(redisClient)
	if version, err := notifier.Version(ctx); err != nil {
		logger.Warn("read snapshot version", slog.Any("error", err))
	} else {
		service.SetSnapshotVersion(version)
	}
	if err := notifier.Listen(ctx, service.SetSnapshotVersion); err != nil {
		logger.Warn("subscribe snapshot announcements", slog.Any("error", err))
	}

	var enqueuer dashboardhttp.RefreshEnqueuer
	var jobHandler *jobs.Handler
	if redisClient != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		client := jobs.NewClient(redisOpts)
		defer func() { _ = client.Close() }()
		enqueuer = client
		inspector := asynq.NewInspector(redisOpts)
		defer func() { _ = inspector.Close() }()
		jobHandler = jobs.NewHandler(inspector, logger)
	} else {
		jobHandler = jobs.NewHandler(nil, logger)
	}

	var bumper dashboardhttp.SnapshotBumper
	if redisClient != nil {
		bumper = notifier
	}
	handler := dashboardhttp.NewHandler(logger, service, bumper, enqueuer, cfg.DashboardRequestTimeout)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		DashboardHandler: handler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
		Readiness:        readinessChecks(pool, redisClient),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func newDashboardService(cfg *app.Config, pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *dashboard.Service {
	ingestor := analytics.NewIngestor(cfg.Location())
	repo := records.NewConsistentRepository(pool, ingestor)
	return dashboard.NewService(repo, logger, metrics.Dashboard(), cfg.DashboardDefaults())
}

func readinessChecks(pool *pgxpool.Pool, redisClient *redis.Client) map[string]app.ReadinessCheck {
	checks := map[string]app.ReadinessCheck{
		"postgres": pool.Ping,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return cache.Ping(ctx, redisClient)
		}
	}
	return checks
}
