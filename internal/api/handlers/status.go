package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/bangumarr/internal/controllers"
	"github.com/amaumene/bangumarr/internal/models"
	"github.com/amaumene/bangumarr/internal/services/dataset"
)

// recentRecordLimit bounds the record list returned by the status endpoint
const recentRecordLimit = 20

// StatusHandler handles status requests
type StatusHandler struct {
	db       *models.Database
	syncCtrl *controllers.SyncController
	cache    *dataset.Cache
	logger   *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db *models.Database, syncCtrl *controllers.SyncController, cache *dataset.Cache, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		db:       db,
		syncCtrl: syncCtrl,
		cache:    cache,
		logger:   logger,
	}
}

// StatusResponse represents the status response
type StatusResponse struct {
	RecordCounts  map[models.SyncStatus]int `json:"record_counts"`
	RecentRecords []*models.SyncRecord      `json:"recent_records"`
	TaskCounts    map[models.TaskState]int  `json:"task_counts"`
	Dataset       dataset.Stats             `json:"dataset"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	counts, err := h.db.CountSyncRecordsByStatus()
	if err != nil {
		h.logger.WithError(err).Error("Failed to count sync records")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	records, err := h.db.GetRecentSyncRecords(recentRecordLimit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get recent sync records")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := StatusResponse{
		RecordCounts:  counts,
		RecentRecords: records,
		TaskCounts:    h.syncCtrl.TaskCounts(),
		Dataset:       h.cache.Stats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
