package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/bangumarr/internal/api/middleware"
	"github.com/amaumene/bangumarr/internal/config"
	"github.com/amaumene/bangumarr/internal/controllers"
	"github.com/amaumene/bangumarr/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestSyncController(t *testing.T) *controllers.SyncController {
	t.Helper()

	cfg := &config.Config{
		BangumiUsername: "tester",
		BangumiToken:    "token",
		SyncUsername:    "alice",
		SyncWorkers:     1,
	}
	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// No workers started: tasks stay queued, which is all these tests need
	return controllers.NewSyncController(cfg, db, nil, testLogger())
}

func TestSyncHandlerQueues(t *testing.T) {
	handler := NewSyncHandler(newTestSyncController(t), testLogger())

	body := `{"media_type": "episode", "title": "某作品", "season": 1, "episode": 3, "user_name": "alice"}`
	req := httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "queued", resp["status"])
	assert.NotEmpty(t, resp["task_id"])
	assert.Equal(t, resp["task_id"], rec.Header().Get(middleware.TaskIDHeader))
}

func TestSyncHandlerRejectsGet(t *testing.T) {
	handler := NewSyncHandler(newTestSyncController(t), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/sync", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSyncHandlerRejectsBadJSON(t *testing.T) {
	handler := NewSyncHandler(newTestSyncController(t), testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTaskHandlerLookup(t *testing.T) {
	ctrl := newTestSyncController(t)
	syncHandler := NewSyncHandler(ctrl, testLogger())
	taskHandler := NewTaskHandler(ctrl, testLogger())

	body := `{"media_type": "episode", "title": "某作品", "season": 1, "episode": 3, "user_name": "alice"}`
	req := httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(body))
	rec := httptest.NewRecorder()
	syncHandler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var queued map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&queued))

	req = httptest.NewRequest(http.MethodGet, "/api/tasks/"+queued["task_id"], nil)
	rec = httptest.NewRecorder()
	taskHandler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var task controllers.Task
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&task))
	assert.Equal(t, models.TaskPending, task.State)
	assert.Equal(t, "某作品", task.Item.Title)
}

func TestTaskHandlerNotFound(t *testing.T) {
	taskHandler := NewTaskHandler(newTestSyncController(t), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/missing", nil)
	rec := httptest.NewRecorder()
	taskHandler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	handler := NewHealthHandler(testLogger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp["status"])
}
