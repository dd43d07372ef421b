package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/harborstay/harborstay/internal/app"
	"github.com/harborstay/harborstay/internal/bank"
	"github.com/harborstay/harborstay/internal/folio"
	"github.com/harborstay/harborstay/internal/nightaudit"
	"github.com/harborstay/harborstay/internal/observability"
	"github.com/harborstay/harborstay/internal/platform/cache"
	"github.com/harborstay/harborstay/internal/platform/db"
	"github.com/harborstay/harborstay/internal/policy"
	"github.com/harborstay/harborstay/internal/qr"
	"github.com/harborstay/harborstay/internal/stay"
	"github.com/harborstay/harborstay/jobs"
)

func main() {
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
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	stayRepo := stay.NewRepository(pool)
	bankRepo := bank.NewRepository(pool)
	policyRepo := policy.NewRepository(pool)

	folioRepo := folio.NewRepository(pool)
	folioService := folio.NewService(folioRepo, stayRepo, policyRepo, folio.ServiceConfig{
		TaxRateBps:              cfg.TaxRateBps,
		RefundApprovalThreshold: cfg.RefundApprovalThreshold,
	}, logger)

	imageClient := qr.NewImageClient(cfg.QRProviderURL, cfg.QRProviderTimeout)
	qrRepo := qr.NewRepository(pool)
	qrService := qr.NewService(qrRepo, folioRepo, stayRepo, bankRepo, imageClient, cfg.QRRequestTTL, logger)

	auditLock := nightaudit.NewRedisLock(redisClient, 30*time.Minute, logger)
	auditService := nightaudit.NewService(stayRepo, folioService, policyRepo, auditLock, metrics, cfg.NightAuditConcurrency, logger)

	auditJob := jobs.NewNightAuditJob(auditService, logger)
	sweepJob := jobs.NewQRExpireSweepJob(qrService, logger)

	auditTask, err := jobs.NewNightAuditTask(jobs.NightAuditPayload{})
	if err != nil {
		logger.Error("build night audit task", slog.Any("error", err))
		os.Exit(1)
	}
	sweepTask := jobs.NewQRExpireSweepTask()

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskNightAudit, Handler: auditJob.Handle},
			{Type: jobs.TaskQRExpireSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.NightAuditCron, Task: auditTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.QRExpireSweepCron, Task: sweepTask},
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
