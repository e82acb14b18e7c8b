package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devlin/erpmirror/internal/api"
	"github.com/devlin/erpmirror/internal/api/middleware"
	"github.com/devlin/erpmirror/internal/config"
	"github.com/devlin/erpmirror/internal/erp"
	"github.com/devlin/erpmirror/internal/logger"
	"github.com/devlin/erpmirror/internal/repository"
	"github.com/devlin/erpmirror/internal/service"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize stores
	mirrorStore := repository.NewMirrorStore(db)
	runStore := repository.NewSyncRunRepository(db)

	// Initialize remote ERP client
	erpClient := erp.NewClient(&erp.Config{
		BaseURL:          cfg.ERP.BaseURL,
		APIKey:           cfg.ERP.APIKey,
		RequestTimeout:   cfg.ERP.RequestTimeout,
		MaxRetries:       cfg.ERP.MaxRetries,
		RetryBackoff:     cfg.ERP.RetryBackoff,
		MaxInFlight:      cfg.ERP.MaxInFlight,
		EmployeeCacheTTL: cfg.ERP.EmployeeCacheTTL,
	}, appLogger)

	// Initialize sync orchestrator
	orchestrator := service.NewOrchestrator(erpClient, mirrorStore, runStore, appLogger, service.Config{
		PageSize:        cfg.Sync.PageSize,
		BatchSize:       cfg.Sync.BatchSize,
		DeleteBatchSize: cfg.Sync.DeleteBatchSize,
		MaxFailedPages:  cfg.Sync.MaxFailedPages,
		PageDelay:       cfg.Sync.PageDelay,
	})

	// Setup router
	router := api.SetupRouter(orchestrator, appLogger, api.RouterConfig{
		Mode: cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
