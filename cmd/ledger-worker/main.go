package main

import (
	"context"
	"errors"
	"os"
	"time"

	"kasharian/internal/amqp"
	"kasharian/internal/backend"
	"kasharian/internal/cli"
	"kasharian/internal/config"
	applog "kasharian/internal/log"
	"kasharian/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(applog.ComponentWorker)

	logger.Info("Starting ledger-worker")

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	remote, err := backend.NewSheetsClient(context.Background(), backend.Config{
		Type:               backend.SheetsBackend,
		SpreadsheetID:      cfg.SpreadsheetID,
		SummarySheet:       cfg.SummarySheetName,
		ExpensesSheet:      cfg.ExpensesSheetName,
		ServiceAccountJSON: cfg.ServiceAccountJSON,
		ServiceAccountFile: cfg.ServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.SpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(sqliteRepo, remote, cfg.Policy(), cfg.SyncBatchSize)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.Info("Performing startup sync check")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", applog.FieldError, err)
	}

	go func() {
		err := amqpClient.ConsumeLedgerSync(ctx, syncWorker.HandleSyncMessage)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", applog.FieldError, err)
		}
	}()

	ticker := time.NewTicker(cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			<-done
			logger.Info("Worker stopped")
			return
		case <-ticker.C:
			if err := syncWorker.ProcessPending(ctx); err != nil {
				logger.Error("Periodic sync failed", applog.FieldError, err)
			}
		}
	}
}
