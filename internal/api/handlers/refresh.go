package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/bangumarr/internal/services/dataset"
)

// RefreshHandler forces a re-download of the bangumi-data dataset
type RefreshHandler struct {
	cache  *dataset.Cache
	logger *logrus.Logger
}

// NewRefreshHandler creates a new dataset refresh handler
func NewRefreshHandler(cache *dataset.Cache, logger *logrus.Logger) *RefreshHandler {
	return &RefreshHandler{
		cache:  cache,
		logger: logger,
	}
}

// ServeHTTP handles the dataset refresh endpoint
func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.cache.ForceRefresh(r.Context()) {
		http.Error(w, "Dataset refresh failed", http.StatusBadGateway)
		return
	}

	stats := h.cache.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "refreshed",
		"items":  stats.Items,
	})
}
