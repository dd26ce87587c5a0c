package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/bangumarr/internal/config"
)

// ErrUnavailable means the dataset could not be downloaded and no usable
// local copy exists. Matching degrades to catalog-search-only.
var ErrUnavailable = errors.New("dataset unavailable: download failed and no local copy exists")

// Cache maintains a locally persisted, TTL-bounded copy of the bangumi-data
// dataset. The payload is streamed during download and parse so the raw
// transport buffer is never held in memory; after the first full parse a
// materialized copy is kept and swapped wholesale on refresh.
type Cache struct {
	dataURL    string
	path       string
	ttl        time.Duration
	httpClient *http.Client
	logger     *logrus.Logger

	mu          sync.RWMutex
	items       []Item
	lastRefresh time.Time
}

// Stats describes the current state of the cache
type Stats struct {
	Items       int       `json:"items"`
	LastRefresh time.Time `json:"last_refresh"`
	FileModTime time.Time `json:"file_mod_time"`
}

// NewCache creates a new dataset cache
func NewCache(cfg *config.Config, logger *logrus.Logger) (*Cache, error) {
	httpClient := &http.Client{Timeout: 5 * time.Minute}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			return nil, fmt.Errorf("invalid HTTP_PROXY: %w", err)
		}
		httpClient = &http.Client{
			Timeout:   5 * time.Minute,
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
	}

	return &Cache{
		dataURL:    cfg.DataURL,
		path:       cfg.DataCachePath,
		ttl:        time.Duration(cfg.DataTTLDays) * 24 * time.Hour,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// EnsureFresh makes sure a usable local copy exists, re-downloading when the
// persisted copy is older than the TTL. A failed download falls back to the
// stale copy when one exists; with no copy at all it returns false.
func (c *Cache) EnsureFresh(ctx context.Context) bool {
	if c.isFileFresh() {
		return true
	}

	c.logger.Debug("Dataset cache missing or stale, downloading")
	if err := c.download(ctx); err != nil {
		if _, statErr := os.Stat(c.path); statErr == nil {
			c.logger.WithError(err).Warn("Dataset download failed, using stale local copy")
			return true
		}
		c.logger.WithError(err).Error("Dataset download failed and no local copy exists")
		return false
	}

	c.invalidate()
	return true
}

// ForceRefresh re-downloads the dataset regardless of TTL and swaps in the
// newly parsed collection
func (c *Cache) ForceRefresh(ctx context.Context) bool {
	c.logger.Info("Forcing dataset refresh")
	if err := c.download(ctx); err != nil {
		c.logger.WithError(err).Error("Forced dataset refresh failed")
		return false
	}

	c.invalidate()
	if _, err := c.Items(ctx); err != nil {
		c.logger.WithError(err).Error("Failed to reload dataset after refresh")
		return false
	}
	return true
}

// Items returns the materialized dataset, parsing the local copy on first
// use. The returned slice is read-only and fully replaced on refresh.
func (c *Cache) Items(ctx context.Context) ([]Item, error) {
	c.mu.RLock()
	if c.items != nil {
		items := c.items
		c.mu.RUnlock()
		return items, nil
	}
	c.mu.RUnlock()

	if !c.EnsureFresh(ctx) {
		return nil, ErrUnavailable
	}

	file, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset cache: %w", err)
	}
	defer file.Close()

	items, err := parseItems(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dataset cache: %w", err)
	}

	c.logger.WithField("items", len(items)).Info("Dataset loaded into memory")

	// Swap on complete so readers never observe a partial collection
	c.mu.Lock()
	c.items = items
	c.lastRefresh = time.Now()
	c.mu.Unlock()

	return items, nil
}

// Stats returns cache statistics for the status endpoint
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	stats := Stats{
		Items:       len(c.items),
		LastRefresh: c.lastRefresh,
	}
	c.mu.RUnlock()

	if info, err := os.Stat(c.path); err == nil {
		stats.FileModTime = info.ModTime()
	}
	return stats
}

// invalidate drops the materialized collection so the next Items call
// re-parses the local copy
func (c *Cache) invalidate() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}

// isFileFresh checks whether the persisted copy exists and is within the TTL
func (c *Cache) isFileFresh() bool {
	info, err := os.Stat(c.path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < c.ttl
}

// download streams the dataset to a temporary file and renames it into place
// so a failed download never clobbers the previous copy. Transient HTTP
// errors are retried with exponential backoff (2s, 4s, 8s).
func (c *Cache) download(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = 8 * time.Second
	b.MaxElapsedTime = 0

	operation := func() error {
		return c.downloadOnce(ctx)
	}

	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, 3), ctx))
}

func (c *Cache) downloadOnce(ctx context.Context) error {
	c.logger.WithField("url", c.dataURL).Debug("Downloading bangumi-data dataset")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.dataURL, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create dataset request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dataset request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("dataset download returned status %d", resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("dataset download returned status %d", resp.StatusCode))
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create cache directory: %w", err))
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), "bangumi_data_*.json")
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create temp file: %w", err))
	}
	defer os.Remove(tmp.Name())

	// Stream to disk in chunks, never the whole payload in memory
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to stream dataset to disk: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to move dataset into place: %w", err))
	}

	c.logger.WithField("path", c.path).Debug("Dataset cached to disk")
	return nil
}

// parseItems decodes the items array of a bangumi-data payload with a
// streaming decoder, one item at a time
func parseItems(r io.Reader) ([]Item, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("unexpected top-level token %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key token %v", keyTok)
		}

		if key != "items" {
			// Skip siteMeta and any other top-level value
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
			continue
		}

		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		var items []Item
		for dec.More() {
			var item Item
			if err := dec.Decode(&item); err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	}

	return nil, fmt.Errorf("dataset has no items array")
}
