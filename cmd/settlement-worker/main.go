package main

import (
	"context"
	"errors"
	"os"
	"time"

	"cashbook/internal/amqp"
	"cashbook/internal/backend"
	"cashbook/internal/cli"
	"cashbook/internal/log"
	"cashbook/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting settlement-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the settlement worker")
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid export backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateExporter(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize export backend", log.FieldError, err, "backend", backendCfg.Type.String())
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer result.Cleanup()
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	w := worker.NewSettlementWorker(repo, result.Exporter, backendCfg.Type.String(), nil, logger, cfg.SettledPageSize)

	ctx, done := cli.GracefulShutdown(logger, 15*time.Second, nil)

	// Catch up on settlements whose message was lost while the worker was down.
	logger.Info("Performing startup reconcile...")
	if err := w.Reconcile(ctx); err != nil {
		logger.Error("Startup reconcile failed", log.FieldError, err)
	}

	go func() {
		ticker := time.NewTicker(cfg.ReconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.Reconcile(ctx); err != nil {
					logger.Error("Periodic reconcile failed", log.FieldError, err)
				}
			}
		}
	}()

	logger.Info("Consuming settlement messages", "queue", cfg.AMQPQueue, "backend", backendCfg.Type.String())
	if err := amqpClient.ConsumeSettlementCreated(ctx, w.HandleSettlementCreated); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Settlement worker stopped")
}
