package controllers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/bangumarr/internal/config"
	"github.com/amaumene/bangumarr/internal/models"
	"github.com/amaumene/bangumarr/internal/services/bangumi"
	"github.com/amaumene/bangumarr/internal/services/dataset"
	"github.com/amaumene/bangumarr/internal/utils"
)

// queueCapacity bounds the number of tasks waiting for a worker
const queueCapacity = 100

// ErrQueueFull is returned by Submit when the worker queue is saturated
var ErrQueueFull = fmt.Errorf("sync queue is full")

// SyncController runs the watched-episode pipeline: validate the incoming
// item, resolve it to a catalog subject and episode, and mark it watched.
// Requests are processed asynchronously by a fixed pool of workers.
type SyncController struct {
	cfg       *config.Config
	db        *models.Database
	matcher   *dataset.Matcher
	blocklist *utils.Blocklist
	tasks     *taskRegistry
	logger    *logrus.Logger

	jobs chan *Task
	wg   sync.WaitGroup
}

// NewSyncController creates a new sync controller
func NewSyncController(cfg *config.Config, db *models.Database, matcher *dataset.Matcher, logger *logrus.Logger) *SyncController {
	return &SyncController{
		cfg:       cfg,
		db:        db,
		matcher:   matcher,
		blocklist: utils.NewBlocklist(cfg.BlockedKeywords),
		tasks:     newTaskRegistry(),
		logger:    logger,
		jobs:      make(chan *Task, queueCapacity),
	}
}

// Start launches the worker pool. Workers exit when the context is cancelled
// or the queue is closed.
func (c *SyncController) Start(ctx context.Context) {
	for i := 0; i < c.cfg.SyncWorkers; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task, ok := <-c.jobs:
					if !ok {
						return
					}
					c.process(ctx, task)
				}
			}
		}()
	}
	c.logger.WithField("workers", c.cfg.SyncWorkers).Info("Sync workers started")
}

// Stop closes the queue and waits for in-flight tasks to finish
func (c *SyncController) Stop() {
	close(c.jobs)
	c.wg.Wait()
}

// Submit queues one sync item and returns the task id for polling
func (c *SyncController) Submit(item models.SyncItem) (string, error) {
	task := c.tasks.add(item)

	select {
	case c.jobs <- task:
	default:
		c.tasks.finish(task.ID, &models.SyncResponse{
			Status:  models.StatusError,
			Message: ErrQueueFull.Error(),
		})
		return "", ErrQueueFull
	}

	c.logger.WithFields(logrus.Fields{
		"task_id": task.ID,
		"title":   item.Title,
		"season":  item.Season,
		"episode": item.Episode,
	}).Info("Sync task queued")
	return task.ID, nil
}

// GetTask returns a snapshot of one task
func (c *SyncController) GetTask(id string) (Task, bool) {
	return c.tasks.get(id)
}

// RecentTasks returns snapshots of the most recent tasks, newest first
func (c *SyncController) RecentTasks(limit int) []Task {
	return c.tasks.recent(limit)
}

// TaskCounts returns the number of tasks per lifecycle state
func (c *SyncController) TaskCounts() map[models.TaskState]int {
	return c.tasks.counts()
}

// CleanupTasks drops finished tasks older than maxAge
func (c *SyncController) CleanupTasks(maxAge time.Duration) int {
	return c.tasks.cleanup(maxAge)
}

// process runs the full pipeline for one task and records the outcome
func (c *SyncController) process(ctx context.Context, task *Task) {
	c.tasks.setRunning(task.ID)

	response := c.sync(ctx, &task.Item)
	c.tasks.finish(task.ID, response)

	record := &models.SyncRecord{
		UserName: task.Item.UserName,
		Title:    task.Item.Title,
		OriTitle: task.Item.OriTitle,
		Season:   task.Item.Season,
		Episode:  task.Item.Episode,
		Status:   response.Status,
		Message:  response.Message,
		Source:   task.Item.Source,
	}
	if response.Data != nil {
		record.SubjectID = response.Data.SubjectID
		record.EpisodeID = response.Data.EpisodeID
	}
	if err := c.db.LogSyncRecord(record); err != nil {
		c.logger.WithError(err).Error("Failed to persist sync record")
	}

	c.logger.WithFields(logrus.Fields{
		"task_id": task.ID,
		"title":   task.Item.Title,
		"status":  response.Status,
		"message": response.Message,
	}).Info("Sync task finished")
}

// sync validates and resolves one item against the catalog
func (c *SyncController) sync(ctx context.Context, item *models.SyncItem) *models.SyncResponse {
	if response := c.validate(item); response != nil {
		return response
	}

	// A fresh client per task keeps the per-instance memoization scoped to
	// one resolution
	client, err := bangumi.NewClient(c.cfg, c.logger)
	if err != nil {
		return errorResponse("failed to create catalog client: " + err.Error())
	}

	resolution, err := c.matcher.Find(ctx, item, client)
	if err != nil {
		return errorResponse("title matching failed: " + err.Error())
	}
	if resolution == nil {
		return errorResponse(fmt.Sprintf("no catalog match for %q", item.Title))
	}

	resolver := bangumi.NewResolver(client, c.logger)
	subjectID, episodeID, err := resolver.Resolve(ctx, resolution.SubjectID, item.Season, item.Episode, resolution.SeasonSpecific)
	if err != nil {
		if bangumi.IsCredentialError(err) {
			return errorResponse("bangumi credentials rejected: " + err.Error())
		}
		return errorResponse("season/episode resolution failed: " + err.Error())
	}
	if subjectID == "" || episodeID == "" {
		return errorResponse(fmt.Sprintf("no episode found for %q S%02dE%02d", item.Title, item.Season, item.Episode))
	}

	marker := bangumi.NewMarker(client, c.logger)
	result, err := marker.MarkWatched(ctx, subjectID, episodeID)
	if err != nil {
		if bangumi.IsCredentialError(err) {
			return errorResponse("bangumi credentials rejected: " + err.Error())
		}
		return errorResponse("failed to mark episode watched: " + err.Error())
	}

	message := ""
	switch result {
	case bangumi.AlreadyWatched:
		message = "episode already watched"
	case bangumi.Marked:
		message = "episode marked watched"
	case bangumi.CollectedAndMarked:
		message = "subject collected and episode marked watched"
	}

	return &models.SyncResponse{
		Status:  models.StatusSuccess,
		Message: message,
		Data: &models.SyncData{
			Title:     resolution.MatchedTitle,
			Season:    item.Season,
			Episode:   item.Episode,
			SubjectID: subjectID,
			EpisodeID: episodeID,
		},
	}
}

// validate applies the pre-resolution gates. A nil return means the item may
// proceed to matching.
func (c *SyncController) validate(item *models.SyncItem) *models.SyncResponse {
	if item.MediaType != "episode" {
		return ignoredResponse(fmt.Sprintf("media type %q is not synced", item.MediaType))
	}
	if item.Title == "" {
		return errorResponse("title is required")
	}
	if item.Season <= 0 {
		// Season 0 is specials, which bangumi tracks outside regular episodes
		return ignoredResponse("specials and season 0 are not synced")
	}
	if item.Episode < 1 {
		return errorResponse("episode must be at least 1")
	}
	if item.UserName != c.cfg.SyncUsername {
		return ignoredResponse(fmt.Sprintf("user %q is not the configured sync user", item.UserName))
	}
	if blocked, term := c.blocklist.IsBlocked(item.Title, item.OriTitle); blocked {
		return ignoredResponse(fmt.Sprintf("title matches blocked keyword %q", term))
	}
	return nil
}

func ignoredResponse(message string) *models.SyncResponse {
	return &models.SyncResponse{Status: models.StatusIgnored, Message: message}
}

func errorResponse(message string) *models.SyncResponse {
	return &models.SyncResponse{Status: models.StatusError, Message: message}
}
