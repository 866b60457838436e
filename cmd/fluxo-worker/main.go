package main

import (
	"context"
	"errors"
	"os"
	"time"

	"fluxo/internal/amqp"
	"fluxo/internal/backend"
	"fluxo/internal/cli"
	"fluxo/internal/log"
	gsheet "fluxo/internal/sheets/google"
	"fluxo/internal/worker"
)

const dialAttempts = 8

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting fluxo-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Worker configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	// The worker only reads; change events come from the consumer below
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	backendCfg.AMQPURL = ""
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err.Error(), "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer res.Cleanup()

	sheetsClient, err := gsheet.New(context.Background(), gsheet.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		LedgerBase:      cfg.GoogleSheetBase,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	// The broker may still be starting alongside us
	amqpClient, err := amqp.DialWithRetry(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, dialAttempts)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(res.Store, sheetsClient)

	logger.Info("Performing startup sync...")
	if err := syncWorker.StartupSync(ctx); err != nil {
		// Not fatal: the next change event exports the year again
		logger.Error("Startup sync failed", log.FieldError, err.Error())
	}

	if err := amqpClient.ConsumeChanges(ctx, syncWorker.HandleChange); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
