package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/bangumarr/internal/api/handlers"
	"github.com/amaumene/bangumarr/internal/api/middleware"
	"github.com/amaumene/bangumarr/internal/config"
	"github.com/amaumene/bangumarr/internal/controllers"
	"github.com/amaumene/bangumarr/internal/models"
	"github.com/amaumene/bangumarr/internal/services/dataset"
)

// Server represents the HTTP server
type Server struct {
	server   *http.Server
	db       *models.Database
	syncCtrl *controllers.SyncController
	cache    *dataset.Cache
	logger   *logrus.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, db *models.Database, syncCtrl *controllers.SyncController, cache *dataset.Cache, logger *logrus.Logger) *Server {
	s := &Server{
		db:       db,
		syncCtrl: syncCtrl,
		cache:    cache,
		logger:   logger,
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	s.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      middleware.Logging(mux, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Health check
	healthHandler := handlers.NewHealthHandler(s.logger)
	mux.HandleFunc("/health", healthHandler.ServeHTTP)

	// Status endpoint
	statusHandler := handlers.NewStatusHandler(s.db, s.syncCtrl, s.cache, s.logger)
	mux.HandleFunc("/status", statusHandler.ServeHTTP)

	// Watched-episode sync
	syncHandler := handlers.NewSyncHandler(s.syncCtrl, s.logger)
	mux.HandleFunc("/api/sync", syncHandler.ServeHTTP)

	// Task polling
	taskHandler := handlers.NewTaskHandler(s.syncCtrl, s.logger)
	mux.HandleFunc("/api/tasks/", taskHandler.ServeHTTP)

	// Manual dataset refresh
	refreshHandler := handlers.NewRefreshHandler(s.cache, s.logger)
	mux.HandleFunc("/api/dataset/refresh", refreshHandler.ServeHTTP)
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("port", s.server.Addr).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
