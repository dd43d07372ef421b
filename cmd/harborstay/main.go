package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harborstay/harborstay/internal/app"
	"github.com/harborstay/harborstay/internal/bank"
	"github.com/harborstay/harborstay/internal/folio"
	"github.com/harborstay/harborstay/internal/invoice"
	"github.com/harborstay/harborstay/internal/nightaudit"
	"github.com/harborstay/harborstay/internal/observability"
	"github.com/harborstay/harborstay/internal/platform/cache"
	"github.com/harborstay/harborstay/internal/platform/db"
	"github.com/harborstay/harborstay/internal/policy"
	"github.com/harborstay/harborstay/internal/qr"
	"github.com/harborstay/harborstay/internal/recon"
	"github.com/harborstay/harborstay/internal/shared"
	"github.com/harborstay/harborstay/internal/stay"
	"github.com/harborstay/harborstay/internal/summary"
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
	auditLogger := shared.NewAuditLogger(pool)

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

	invoiceRepo := invoice.NewRepository(pool)
	invoiceService := invoice.NewService(invoiceRepo, logger)

	signer := recon.NewSigner(cfg.WebhookSecret)
	reconRepo := recon.NewRepository(pool)
	reconService := recon.NewService(reconRepo, qrRepo, signer, cfg.AmountTolerance, logger)

	auditLock := nightaudit.NewRedisLock(redisClient, 30*time.Minute, logger)
	auditService := nightaudit.NewService(stayRepo, folioService, policyRepo, auditLock, metrics, cfg.NightAuditConcurrency, logger)

	summaryCache := summary.NewCache(redisClient, 10*time.Second)
	summaryService := summary.NewService(folioService, stayRepo, invoiceRepo, qrRepo, summaryCache, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		FolioHandler:      folio.NewHandler(logger, folioService),
		QRHandler:         qr.NewHandler(logger, qrService),
		InvoiceHandler:    invoice.NewHandler(logger, invoiceService),
		SummaryHandler:    summary.NewHandler(logger, summaryService),
		ReconHandler:      recon.NewHandler(logger, reconService, reconRepo, auditLogger, metrics),
		NightAuditHandler: nightaudit.NewHandler(logger, auditService),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
