package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/wheelworks/wheelworks/internal/alerts"
	"github.com/wheelworks/wheelworks/internal/app"
	"github.com/wheelworks/wheelworks/internal/platform/db"
	"github.com/wheelworks/wheelworks/internal/shared"
	"github.com/wheelworks/wheelworks/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	alertsRepo := alerts.NewRepository(pool)
	alertsService := alerts.NewService(alertsRepo, auditLogger, logger,
		alerts.ServiceConfig{OverstockFactor: cfg.OverstockFactor})

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAlertEvaluate, Handler: jobs.NewAlertEvaluateHandler(alertsService)},
			{Type: jobs.TaskAlertReorderScan, Handler: jobs.NewAlertReorderScanHandler(alertsService)},
			{Type: jobs.TaskIdempotencyCleanup, Handler: jobs.NewIdempotencyCleanupHandler(idempotencyStore)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/15 * * * *", Task: jobs.NewAlertReorderScanTask(), Options: []asynq.Option{asynq.MaxRetry(2), asynq.Queue(jobs.QueueAlerts)}},
			{Spec: "30 3 * * *", Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
