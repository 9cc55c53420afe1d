package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"cashbook/internal/amqp"
	"cashbook/internal/auth"
	"cashbook/internal/cache"
	"cashbook/internal/cli"
	"cashbook/internal/core"
	apphttp "cashbook/internal/http"
	"cashbook/internal/log"
	"cashbook/internal/metrics"
	"cashbook/internal/middleware/ratelimit"
	"cashbook/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	m := metrics.New()

	// The publisher stays a nil interface when AMQP is not configured.
	var publisher services.SettlementPublisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("AMQP unavailable, settlements will not be exported", log.FieldError, err)
		} else {
			publisher = amqpClient
		}
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	overviewCache := cache.NewLRUCache[core.MonthTotals](cfg.OverviewCacheSize, cfg.OverviewCacheTTL)
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(overviewCache)
	cacheManager.StartCleanup(cfg.OverviewCacheTTL)

	overview := services.NewOverviewService(repo, repo, repo, overviewCache, m, logger)
	debts := services.NewDebtService(repo, publisher, m, logger, services.DebtConfig{
		SettlementMode:  cfg.SettlementMode,
		SettledPageSize: cfg.SettledPageSize,
	})
	svc := apphttp.Services{
		Profiles:  services.NewProfileService(repo, logger),
		Debts:     debts,
		Recurring: services.NewRecurringService(repo, overview, logger),
		CashFlows: services.NewCashFlowService(repo, repo, debts, overview, logger),
		Overview:  overview,
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr: ":" + cfg.Port,
		JWT:  auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL),
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		Ready:   repo.Ping,
		Metrics: m,
	}, svc, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("AMQP close error", log.FieldError, err)
			}
		}
	})

	logger.Info("Starting cashbook server",
		"port", cfg.Port,
		"settlement_mode", cfg.SettlementMode,
		"amqp", amqpClient != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
