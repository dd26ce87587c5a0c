package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/bangumarr/internal/api/middleware"
	"github.com/amaumene/bangumarr/internal/controllers"
	"github.com/amaumene/bangumarr/internal/models"
)

// SyncHandler accepts watched-episode events and queues them for resolution
type SyncHandler struct {
	syncCtrl *controllers.SyncController
	logger   *logrus.Logger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(syncCtrl *controllers.SyncController, logger *logrus.Logger) *SyncHandler {
	return &SyncHandler{
		syncCtrl: syncCtrl,
		logger:   logger,
	}
}

// ServeHTTP handles the sync endpoint. Requests are enqueued, never processed
// inline; the response carries a task id for polling.
func (h *SyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var item models.SyncItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		h.logger.WithError(err).Error("Failed to decode sync payload")
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	if item.Source == "" {
		item.Source = models.SourceCustom
	}

	taskID, err := h.syncCtrl.Submit(item)
	if err != nil {
		if errors.Is(err, controllers.ErrQueueFull) {
			http.Error(w, "Sync queue is full", http.StatusServiceUnavailable)
			return
		}
		h.logger.WithError(err).Error("Failed to queue sync task")
		http.Error(w, "Failed to queue sync task", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(middleware.TaskIDHeader, taskID)
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "queued",
		"task_id": taskID,
	})
}

// TaskHandler exposes the state of queued sync tasks
type TaskHandler struct {
	syncCtrl *controllers.SyncController
	logger   *logrus.Logger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(syncCtrl *controllers.SyncController, logger *logrus.Logger) *TaskHandler {
	return &TaskHandler{
		syncCtrl: syncCtrl,
		logger:   logger,
	}
}

// ServeHTTP handles task lookups under /api/tasks/{id}
func (h *TaskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "Task id is required", http.StatusBadRequest)
		return
	}

	task, ok := h.syncCtrl.GetTask(id)
	if !ok {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(task)
}
