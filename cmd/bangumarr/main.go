package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/amaumene/bangumarr/internal/api"
	"github.com/amaumene/bangumarr/internal/config"
	"github.com/amaumene/bangumarr/internal/controllers"
	"github.com/amaumene/bangumarr/internal/models"
	"github.com/amaumene/bangumarr/internal/scheduler"
	"github.com/amaumene/bangumarr/internal/services/bangumi"
	"github.com/amaumene/bangumarr/internal/services/dataset"
	"github.com/amaumene/bangumarr/internal/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Setup logger
	logger := utils.NewLogger(cfg.LogLevel)
	logger.Info("Starting Bangumarr")
	logger.WithField("config_dir", filepath.Dir(cfg.DatabaseFile)).Info("Configuration loaded")

	// 3. Initialize database
	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	logger.Info("Database initialized")

	// 4. Initialize custom mapping store
	mappings, err := dataset.NewMappingStore(cfg.MappingFile, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize custom mapping store: %w", err)
	}

	// 5. Initialize dataset cache and preload it in the background
	cache, err := dataset.NewCache(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dataset cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if _, err := cache.Items(ctx); err != nil {
			logger.WithError(err).Warn("Dataset preload failed, matching degrades to catalog search")
		}
	}()

	// 6. Verify bangumi credentials
	client, err := bangumi.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize bangumi client: %w", err)
	}
	if err := client.GetMe(ctx); err != nil {
		return fmt.Errorf("bangumi credential check failed: %w", err)
	}
	logger.WithField("username", cfg.BangumiUsername).Info("Bangumi credentials verified")

	// 7. Initialize matcher and sync controller
	matcher := dataset.NewMatcher(cache, mappings, logger)
	syncCtrl := controllers.NewSyncController(cfg, db, matcher, logger)
	syncCtrl.Start(ctx)
	defer syncCtrl.Stop()
	logger.Info("Sync controller initialized")

	// 8. Initialize scheduler
	sched := scheduler.NewScheduler(syncCtrl, cache, db, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// 9. Initialize HTTP server
	server := api.NewServer(cfg, db, syncCtrl, cache, logger)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErrChan <- err
		}
	}()

	// 10. Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Bangumarr is running")

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
		if err := server.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Error("Error during server shutdown")
		}
	}

	logger.Info("Bangumarr stopped")
	return nil
}
