package dataset

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/bangumarr/internal/config"
)

const sampleDataset = `{
	"siteMeta": {"bangumi": {"title": "bangumi", "urlTemplate": "https://bangumi.tv/subject/{{id}}"}},
	"items": [
		{
			"title": "【推しの子】",
			"type": "tv",
			"titleTranslate": {"zh-Hans": ["我推的孩子"]},
			"begin": "2023-04-12T00:00:00.000Z",
			"sites": [{"site": "bangumi", "id": "386809"}]
		},
		{
			"title": "葬送のフリーレン",
			"type": "tv",
			"titleTranslate": {"zh-Hans": ["葬送的芙莉莲"]},
			"begin": "2023-09-29T00:00:00.000Z",
			"sites": [{"site": "bangumi", "id": "400602"}]
		}
	]
}`

func testCacheLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestCache(t *testing.T, dataURL string) *Cache {
	t.Helper()

	cfg := &config.Config{
		DataURL:       dataURL,
		DataTTLDays:   7,
		DataCachePath: filepath.Join(t.TempDir(), "bangumi_data.json"),
	}
	cache, err := NewCache(cfg, testCacheLogger())
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	return cache
}

func TestParseItemsStreaming(t *testing.T) {
	items, err := parseItems(strings.NewReader(sampleDataset))
	if err != nil {
		t.Fatalf("parseItems failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].BangumiID() != "386809" {
		t.Errorf("expected bangumi id 386809, got %q", items[0].BangumiID())
	}
	if got := items[0].ZhHansTitles(); len(got) != 1 || got[0] != "我推的孩子" {
		t.Errorf("unexpected zh-Hans titles: %v", got)
	}
}

func TestParseItemsNoItemsKey(t *testing.T) {
	if _, err := parseItems(strings.NewReader(`{"siteMeta": {}}`)); err == nil {
		t.Error("expected error for payload without items")
	}
}

func TestItemsDownloadsWhenMissing(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(sampleDataset))
	}))
	defer server.Close()

	cache := newTestCache(t, server.URL)
	items, err := cache.Items(context.Background())
	if err != nil {
		t.Fatalf("Items failed: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 items, got %d", len(items))
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("expected 1 download, got %d", hits)
	}
	if _, err := os.Stat(cache.path); err != nil {
		t.Errorf("dataset file not persisted: %v", err)
	}
}

func TestItemsUsesFreshFileWithoutNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("fresh local copy must not trigger a download")
	}))
	defer server.Close()

	cache := newTestCache(t, server.URL)
	if err := os.WriteFile(cache.path, []byte(sampleDataset), 0644); err != nil {
		t.Fatal(err)
	}

	items, err := cache.Items(context.Background())
	if err != nil {
		t.Fatalf("Items failed: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 items, got %d", len(items))
	}
}

func TestStaleFallbackOnDownloadFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cache := newTestCache(t, server.URL)
	if err := os.WriteFile(cache.path, []byte(sampleDataset), 0644); err != nil {
		t.Fatal(err)
	}
	stale := time.Now().Add(-30 * 24 * time.Hour)
	if err := os.Chtimes(cache.path, stale, stale); err != nil {
		t.Fatal(err)
	}

	items, err := cache.Items(context.Background())
	if err != nil {
		t.Fatalf("stale copy should still serve: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 items from stale copy, got %d", len(items))
	}
}

func TestUnavailableWithoutAnyCopy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cache := newTestCache(t, server.URL)
	_, err := cache.Items(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestForceRefreshSwapsItems(t *testing.T) {
	payload := sampleDataset
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer server.Close()

	cache := newTestCache(t, server.URL)
	items, err := cache.Items(context.Background())
	if err != nil {
		t.Fatalf("Items failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	payload = `{"items": [{"title": "新作品", "type": "tv", "sites": [{"site": "bangumi", "id": "1"}]}]}`
	if !cache.ForceRefresh(context.Background()) {
		t.Fatal("ForceRefresh failed")
	}

	items, err = cache.Items(context.Background())
	if err != nil {
		t.Fatalf("Items after refresh failed: %v", err)
	}
	if len(items) != 1 || items[0].Title != "新作品" {
		t.Errorf("refresh did not swap the collection: %v", items)
	}
}

func TestStats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleDataset))
	}))
	defer server.Close()

	cache := newTestCache(t, server.URL)
	if _, err := cache.Items(context.Background()); err != nil {
		t.Fatal(err)
	}

	stats := cache.Stats()
	if stats.Items != 2 {
		t.Errorf("expected 2 items in stats, got %d", stats.Items)
	}
	if stats.LastRefresh.IsZero() || stats.FileModTime.IsZero() {
		t.Error("stats timestamps should be set after a load")
	}
}
