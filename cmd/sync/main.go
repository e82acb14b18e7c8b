package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devlin/erpmirror/internal/config"
	"github.com/devlin/erpmirror/internal/erp"
	"github.com/devlin/erpmirror/internal/logger"
	"github.com/devlin/erpmirror/internal/repository"
	"github.com/devlin/erpmirror/internal/service"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "erpmirror-sync",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	pageDelay := flag.Duration("page-delay", -1, "Override the politeness delay between page fetches")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if *pageDelay >= 0 {
		cfg.Sync.PageDelay = *pageDelay
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize stores and remote client
	mirrorStore := repository.NewMirrorStore(db)
	runStore := repository.NewSyncRunRepository(db)
	erpClient := erp.NewClient(&erp.Config{
		BaseURL:          cfg.ERP.BaseURL,
		APIKey:           cfg.ERP.APIKey,
		RequestTimeout:   cfg.ERP.RequestTimeout,
		MaxRetries:       cfg.ERP.MaxRetries,
		RetryBackoff:     cfg.ERP.RetryBackoff,
		MaxInFlight:      cfg.ERP.MaxInFlight,
		EmployeeCacheTTL: cfg.ERP.EmployeeCacheTTL,
	}, appLogger)

	orchestrator := service.NewOrchestrator(erpClient, mirrorStore, runStore, appLogger, service.Config{
		PageSize:        cfg.Sync.PageSize,
		BatchSize:       cfg.Sync.BatchSize,
		DeleteBatchSize: cfg.Sync.DeleteBatchSize,
		MaxFailedPages:  cfg.Sync.MaxFailedPages,
		PageDelay:       cfg.Sync.PageDelay,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	start := time.Now()
	run, err := orchestrator.RunFullSync(ctx)
	if err != nil {
		appLogger.WithError(err).Fatal("Full sync failed")
	}

	appLogger.WithFields(logger.Fields{
		"run_id":    run.ID,
		"records":   run.TotalRecords,
		"processed": run.ProcessedRecords,
		"deleted":   run.DeletedRecords,
		"failed":    run.FailedPages,
		"duration":  time.Since(start).String(),
	}).Info("Full sync completed")
}
