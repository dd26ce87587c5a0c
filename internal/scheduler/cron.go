package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/bangumarr/internal/controllers"
	"github.com/amaumene/bangumarr/internal/models"
	"github.com/amaumene/bangumarr/internal/services/dataset"
)

// Retention windows for the periodic cleanup jobs
const (
	taskRetention   = 24 * time.Hour
	recordRetention = 90 * 24 * time.Hour
)

// Scheduler manages scheduled tasks
type Scheduler struct {
	cron     *cron.Cron
	syncCtrl *controllers.SyncController
	cache    *dataset.Cache
	db       *models.Database
	logger   *logrus.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(syncCtrl *controllers.SyncController, cache *dataset.Cache, db *models.Database, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		syncCtrl: syncCtrl,
		cache:    cache,
		db:       db,
		logger:   logger,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler")

	// Daily at 04:00: refresh the dataset when it passed its TTL
	_, err := s.cron.AddFunc("0 4 * * *", func() {
		s.runDatasetFreshness()
	})
	if err != nil {
		return fmt.Errorf("failed to add dataset freshness job: %w", err)
	}

	// Every hour: drop finished tasks older than the retention window
	_, err = s.cron.AddFunc("0 * * * *", func() {
		s.runTaskCleanup()
	})
	if err != nil {
		return fmt.Errorf("failed to add task cleanup job: %w", err)
	}

	// Daily at 05:00: prune old sync records from the database
	_, err = s.cron.AddFunc("0 5 * * *", func() {
		s.runRecordCleanup()
	})
	if err != nil {
		return fmt.Errorf("failed to add record cleanup job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cron.Stop()
}

// runDatasetFreshness executes the dataset freshness job
func (s *Scheduler) runDatasetFreshness() {
	s.logger.Debug("Running scheduled dataset freshness check")

	if !s.cache.EnsureFresh(context.Background()) {
		s.logger.Error("Dataset freshness check failed with no usable local copy")
	}
}

// runTaskCleanup executes the task registry cleanup job
func (s *Scheduler) runTaskCleanup() {
	removed := s.syncCtrl.CleanupTasks(taskRetention)
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("Cleaned up finished sync tasks")
	}
}

// runRecordCleanup executes the sync record cleanup job
func (s *Scheduler) runRecordCleanup() {
	cutoff := time.Now().Add(-recordRetention)
	deleted, err := s.db.DeleteSyncRecordsBefore(cutoff)
	if err != nil {
		s.logger.WithError(err).Error("Sync record cleanup failed")
		return
	}
	if deleted > 0 {
		s.logger.WithField("deleted", deleted).Info("Pruned old sync records")
	}
}
