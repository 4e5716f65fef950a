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
	"github.com/joho/godotenv"

	"github.com/finledger/finledger/internal/accounting/accounts"
	"github.com/finledger/finledger/internal/accounting/journals"
	"github.com/finledger/finledger/internal/accounting/mappings"
	"github.com/finledger/finledger/internal/accounting/periods"
	"github.com/finledger/finledger/internal/app"
	"github.com/finledger/finledger/internal/depreciation"
	"github.com/finledger/finledger/internal/ingest"
	"github.com/finledger/finledger/internal/observability"
	"github.com/finledger/finledger/internal/platform/cache"
	"github.com/finledger/finledger/internal/platform/db"
	"github.com/finledger/finledger/internal/recon"
	"github.com/finledger/finledger/internal/shared"
	"github.com/finledger/finledger/jobs"
	"github.com/finledger/finledger/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	if cfg.AutoMigrate {
		if err := db.Migrate(cfg.PGDSN, migrations.FS); err != nil {
			logger.Error("apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	auditLogger := shared.NewAuditLogger(dbpool)

	accountsRepo := accounts.NewRepository(dbpool)
	accountsCache := accounts.NewCache(redisClient, cfg.CacheTTL)
	accountsService := accounts.NewService(accountsRepo, accountsCache)
	accountsHandler := accounts.NewHandler(logger, accountsService)

	periodsRepo := periods.NewRepository(dbpool)
	periodsService := periods.NewService(periodsRepo, auditLogger)
	periodsHandler := periods.NewHandler(logger, periodsService)

	journalsRepo := journals.NewRepository(dbpool)
	journalsService := journals.NewService(journalsRepo, accountsService, auditLogger)
	journalsHandler := journals.NewHandler(logger, journalsService)

	mappingsRepo := mappings.NewRepository(dbpool)
	mappingsHandler := mappings.NewHandler(logger, mappingsRepo)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobsClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobsInspector := asynq.NewInspector(redisOpts)
	jobsHandler := jobs.NewHandler(jobsInspector, logger)

	ingestRepo := ingest.NewRepository(dbpool)
	ingestService := ingest.NewService(ingestRepo, mappingsRepo, journalsService, logger)
	ingestHandler := ingest.NewHandler(logger, ingestService, jobsClient)

	reconRepo := recon.NewRepository(dbpool)
	reconService := recon.NewService(reconRepo, auditLogger, logger)
	reconHandler := recon.NewHandler(logger, reconService)

	depreciationRepo := depreciation.NewRepository(dbpool)
	depreciationService := depreciation.NewService(depreciationRepo, mappingsRepo, journalsService, auditLogger, logger)
	depreciationHandler := depreciation.NewHandler(logger, depreciationService)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		AccountsHandler:     accountsHandler,
		PeriodsHandler:      periodsHandler,
		JournalsHandler:     journalsHandler,
		MappingsHandler:     mappingsHandler,
		IngestHandler:       ingestHandler,
		ReconHandler:        reconHandler,
		DepreciationHandler: depreciationHandler,
		JobsHandler:         jobsHandler,
		Metrics:             metrics,
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
