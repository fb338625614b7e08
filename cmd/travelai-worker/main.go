package main

import (
	"context"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"travelai/internal/amqp"
	"travelai/internal/cli"
	"travelai/internal/export/sheets"
	"travelai/internal/log"
	"travelai/internal/services"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentWorker)
	logger.Info("Starting travelai-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the worker")
		os.Exit(1)
	}
	if cfg.GoogleSpreadsheetID == "" {
		logger.Error("GOOGLE_SPREADSHEET_ID is required by the worker")
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	exporter, err := sheets.New(ctx, sheets.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSummarySheet,
		CredentialsJSON: cfg.GoogleCredentialsJSON,
		CredentialsFile: cfg.GoogleCredentialsFile,
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets exporter", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Google Sheets exporter initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPExportQueue, amqp.RecomputedKey, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer amqpClient.Close()

	procCfg := services.DefaultExportProcessorConfig()
	procCfg.PollInterval = cfg.ExportInterval
	processor := services.NewExportProcessor(exporter, procCfg, logger)
	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start export processor", log.FieldError, err.Error())
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.Consume(gctx, processor.HandleEvent)
	})

	err = g.Wait()

	// Flush what the consumer already accepted before exiting.
	logger.Info("Shutting down worker...", "pending", processor.Pending())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if stopErr := processor.Stop(shutdownCtx); stopErr != nil {
		logger.Warn("Export processor did not stop cleanly", log.FieldError, stopErr.Error())
	}

	if err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
