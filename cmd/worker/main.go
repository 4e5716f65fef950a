package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/finledger/finledger/internal/accounting/accounts"
	"github.com/finledger/finledger/internal/accounting/journals"
	"github.com/finledger/finledger/internal/accounting/mappings"
	"github.com/finledger/finledger/internal/app"
	"github.com/finledger/finledger/internal/depreciation"
	"github.com/finledger/finledger/internal/ingest"
	jobmetrics "github.com/finledger/finledger/internal/jobs"
	"github.com/finledger/finledger/internal/platform/cache"
	"github.com/finledger/finledger/internal/platform/db"
	"github.com/finledger/finledger/internal/shared"
	"github.com/finledger/finledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	_ = godotenv.Load()

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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, account cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	auditLogger := shared.NewAuditLogger(pool)

	accountsRepo := accounts.NewRepository(pool)
	accountsCache := accounts.NewCache(redisClient, cfg.CacheTTL)
	accountsService := accounts.NewService(accountsRepo, accountsCache)

	journalsRepo := journals.NewRepository(pool)
	journalsService := journals.NewService(journalsRepo, accountsService, auditLogger)

	mappingsRepo := mappings.NewRepository(pool)

	ingestRepo := ingest.NewRepository(pool)
	ingestService := ingest.NewService(ingestRepo, mappingsRepo, journalsService, logger)

	depreciationRepo := depreciation.NewRepository(pool)
	depreciationService := depreciation.NewService(depreciationRepo, mappingsRepo, journalsService, auditLogger, logger)

	metrics := jobmetrics.NewMetrics(nil)
	ingestJob := jobs.NewIngestJob(ingestService, logger, metrics)
	depreciationJob := jobs.NewDepreciationJob(depreciationService, logger, metrics)

	depreciationTask, err := jobs.NewDepreciationCalculateTask(jobs.DepreciationCalculatePayload{})
	if err != nil {
		logger.Error("build depreciation task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerEventIngest, Handler: ingestJob.Handle},
			{Type: jobs.TaskDepreciationCalculate, Handler: depreciationJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.DepreciationCron, Task: depreciationTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
