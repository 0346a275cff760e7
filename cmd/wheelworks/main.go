package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/wheelworks/wheelworks/internal/alerts"
	"github.com/wheelworks/wheelworks/internal/app"
	"github.com/wheelworks/wheelworks/internal/bom"
	"github.com/wheelworks/wheelworks/internal/catalog"
	"github.com/wheelworks/wheelworks/internal/orders"
	"github.com/wheelworks/wheelworks/internal/picklist"
	"github.com/wheelworks/wheelworks/internal/platform/cache"
	"github.com/wheelworks/wheelworks/internal/platform/db"
	"github.com/wheelworks/wheelworks/internal/shared"
	"github.com/wheelworks/wheelworks/internal/stock"
	"github.com/wheelworks/wheelworks/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("asynq client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	alertNotifier := jobs.NewAlertEnqueuer(jobClient, logger)

	catalogRepo := catalog.NewRepository(dbpool)
	catalogService := catalog.NewService(catalogRepo, auditLogger)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	stockRepo := stock.NewRepository(dbpool)
	stockService := stock.NewService(stockRepo, auditLogger, idempotencyStore, alertNotifier,
		stock.ServiceConfig{AllowNegativeStock: cfg.AllowNegativeStock})
	summaryCache := stock.NewSummaryCache(stockRepo, redisClient, cfg.StockCacheTTL, logger)
	stockHandler := stock.NewHandler(logger, stockService, stock.NewLabelPrinter(), summaryCache)

	alertsRepo := alerts.NewRepository(dbpool)
	alertsService := alerts.NewService(alertsRepo, auditLogger, logger,
		alerts.ServiceConfig{OverstockFactor: cfg.OverstockFactor})
	alertsHandler := alerts.NewHandler(logger, alertsService)

	bomRepo := bom.NewRepository(dbpool)
	bomService := bom.NewService(bomRepo, auditLogger)
	bomHandler := bom.NewHandler(logger, bomService)

	ordersRepo := orders.NewRepository(dbpool)
	picklistRepo := picklist.NewRepository(dbpool)
	picklistService := picklist.NewService(picklistRepo, ordersRepo, bomService, auditLogger,
		alertNotifier, logger, picklist.ServiceConfig{AllowNegativeStock: cfg.AllowNegativeStock})
	picklistHandler := picklist.NewHandler(logger, picklistService, picklist.NewDocumentPrinter())

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		CatalogHandler:  catalogHandler,
		StockHandler:    stockHandler,
		AlertsHandler:   alertsHandler,
		BOMHandler:      bomHandler,
		PickListHandler: picklistHandler,
		JobHandler:      jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
