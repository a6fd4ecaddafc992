package main

import (
	"context"
	"os"
	"time"

	"nelfy/internal/amqp"
	"nelfy/internal/cli"
	"nelfy/internal/config"
	"nelfy/internal/log"
	"nelfy/internal/services"
	"nelfy/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	logger.Info("Starting nelfy-worker")

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

	db := cli.OpenStorage(logger, cfg.SessionDBPath)
	defer db.Close()

	sheetsClient, err := cli.NewSheetsClient(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, nil)
	ctx = log.NewContext(ctx, logger)

	processor := services.NewExportProcessor(db.Exports(), sheetsClient)
	exportWorker := worker.NewExportWorker(processor, db.Exports(), 0)

	logger.Info("Worker ready, consuming export requests", "exchange", cfg.AMQPExchange)
	if err := exportWorker.Run(ctx, amqpClient); err != nil {
		logger.Error("Export worker stopped", log.FieldError, err)
		os.Exit(1)
	}

	<-done
	logger.Info("Worker stopped gracefully")
}
