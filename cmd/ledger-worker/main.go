package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"receiptledger/internal/cli"
	"receiptledger/internal/log"
	"receiptledger/internal/sheets"
	gsheet "receiptledger/internal/sheets/google"
	"receiptledger/internal/sheets/memory"
	"receiptledger/internal/worker"
)

// periodicSyncInterval bounds how long a report can stay unmirrored when
// its event was lost.
const periodicSyncInterval = 15 * time.Minute

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		slog.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	logger.Info("Starting ledger-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), cfg.OperationTimeout)
	res, err := cli.OpenBackend(startCtx, cfg, logger)
	startCancel()
	if err != nil {
		logger.Error("Failed to open backend", log.FieldError, err)
		os.Exit(1)
	}
	if res.Events == nil {
		_ = res.Cleanup()
		logger.Error("AMQP broker unreachable")
		os.Exit(1)
	}

	var mirror sheets.ReportMirror
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(context.Background(), gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleReportsSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			_ = res.Cleanup()
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
		mirror = client
	} else {
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, mirroring reports in memory only")
		mirror = memory.New()
	}

	mirrorWorker := worker.NewReportMirrorWorker(res.Ledger, mirror, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Cleanup failed", log.FieldError, err)
		}
	})

	logger.Info("Performing startup sync check...")
	syncCtx, syncCancel := context.WithTimeout(ctx, cfg.OperationTimeout)
	if _, err := mirrorWorker.SyncPending(syncCtx); err != nil {
		logger.Error("Failed startup sync check", log.FieldError, err)
	}
	syncCancel()

	go func() {
		ticker := time.NewTicker(periodicSyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := mirrorWorker.SyncPending(ctx); err != nil {
					logger.Error("Periodic sync failed", log.FieldError, err)
				}
			}
		}
	}()

	if err := res.Events.ConsumeEvents(ctx, mirrorWorker.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Event consumption failed", log.FieldError, err)
		_ = res.Cleanup()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
