package bangumi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/bangumarr/internal/config"
)

const (
	baseURL       = "https://api.bgm.tv/v0"
	legacyBaseURL = "https://api.bgm.tv"
	userAgent     = "amaumene/bangumarr (https://github.com/amaumene/bangumarr)"

	maxRetries = 3
)

// Client handles communication with the bangumi.tv API.
//
// A Client is created per resolution (or per account) and discarded
// afterwards: its response cache and proxy state are never shared across
// accounts.
type Client struct {
	username string
	token    string
	private  bool

	baseURL   string
	legacyURL string

	httpClient   *http.Client // proxy-aware when a proxy is configured
	directClient *http.Client // always bypasses the proxy

	proxyConfigured bool
	proxyFailed     bool // once true, all requests route directly

	// respCache memoizes read endpoints for the lifetime of this instance
	respCache *cache.Cache

	newBackOff func() backoff.BackOff
	logger     *logrus.Logger
}

// NewClient creates a new bangumi API client
func NewClient(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	if cfg.BangumiUsername == "" {
		return nil, fmt.Errorf("bangumi username is required")
	}
	if cfg.BangumiToken == "" {
		return nil, fmt.Errorf("bangumi access token is required")
	}

	directClient := &http.Client{Timeout: 30 * time.Second}
	httpClient := directClient

	proxyConfigured := false
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			return nil, fmt.Errorf("invalid HTTP_PROXY: %w", err)
		}
		httpClient = &http.Client{
			Timeout:   30 * time.Second,
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
		proxyConfigured = true
	}

	return &Client{
		username:        cfg.BangumiUsername,
		token:           cfg.BangumiToken,
		private:         cfg.BangumiPrivate,
		baseURL:         baseURL,
		legacyURL:       legacyBaseURL,
		httpClient:      httpClient,
		directClient:    directClient,
		proxyConfigured: proxyConfigured,
		respCache:       cache.New(cache.NoExpiration, cache.NoExpiration),
		newBackOff:      defaultBackOff,
		logger:          logger,
	}, nil
}

// defaultBackOff builds the retry policy: up to 3 additional attempts with
// exponential delays of 2s, 4s, 8s
func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = 8 * time.Second
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, maxRetries)
}

// doRequest performs an HTTP request with retry, returning the response body.
// Transient statuses (429/5xx) and connection errors are retried; 401 raises
// a CredentialError that is never retried. When a proxy is configured and all
// attempts fail at the connection level, one direct request is attempted; if
// it succeeds the proxy is marked unusable for the rest of this instance's
// lifetime.
func (c *Client) doRequest(ctx context.Context, method, fullURL string, body interface{}, authed bool) ([]byte, error) {
	var reqBody []byte
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = jsonData
	}

	c.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    fullURL,
	}).Debug("Making bangumi API request")

	client := c.httpClient
	if c.proxyFailed {
		client = c.directClient
	}

	respBody, err := c.attemptWithRetry(ctx, client, method, fullURL, reqBody, authed)
	if err == nil {
		return respBody, nil
	}

	// Proxy fallback: one direct attempt after connection-level exhaustion
	if isTransportError(err) && c.proxyConfigured && !c.proxyFailed {
		c.logDiagnostics(err, fullURL)
		c.logger.WithError(err).Warn("Proxy requests exhausted, attempting direct connection")

		respBody, directErr := c.attempt(ctx, c.directClient, method, fullURL, reqBody, authed)
		if directErr == nil {
			c.proxyFailed = true
			c.logger.Info("Direct connection succeeded, bypassing proxy for remaining requests")
			return respBody, nil
		}
		return nil, fmt.Errorf("request failed via proxy and direct connection: %w", err)
	}

	if isTransportError(err) {
		c.logDiagnostics(err, fullURL)
	}

	return nil, err
}

// attemptWithRetry runs attempt under the retry policy
func (c *Client) attemptWithRetry(ctx context.Context, client *http.Client, method, fullURL string, reqBody []byte, authed bool) ([]byte, error) {
	var respBody []byte

	operation := func() error {
		body, err := c.attempt(ctx, client, method, fullURL, reqBody, authed)
		if err != nil {
			var ce *CredentialError
			if errors.As(err, &ce) {
				return backoff.Permanent(err)
			}
			var se *StatusError
			if errors.As(err, &se) && !se.Retryable() {
				return backoff.Permanent(err)
			}
			c.logger.WithError(err).WithField("url", fullURL).Error("Bangumi request failed, retrying")
			return err
		}
		respBody = body
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.newBackOff(), ctx)); err != nil {
		// Unwrap the Permanent marker
		var pe *backoff.PermanentError
		if errors.As(err, &pe) {
			return nil, pe.Err
		}
		return nil, err
	}
	return respBody, nil
}

// attempt performs a single HTTP round trip
func (c *Client) attempt(ctx context.Context, client *http.Client, method, fullURL string, reqBody []byte, authed bool) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		bodyReader = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &CredentialError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

// logDiagnostics runs a best-effort DNS/TCP diagnostic pass for operator
// logs when a transport failure looks DNS-related. It never changes control
// flow.
func (c *Client) logDiagnostics(err error, fullURL string) {
	var dnsErr *net.DNSError
	if !errors.As(err, &dnsErr) {
		return
	}
	if u, parseErr := url.Parse(fullURL); parseErr == nil {
		DiagnoseConnectivity(c.logger, u.Hostname())
	}
}

// get performs a GET request against the v0 API
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.doRequest(ctx, http.MethodGet, buildURL(c.baseURL, path, params), nil, true)
}

// getCached performs a GET request memoized for this client instance
func (c *Client) getCached(ctx context.Context, path string, params url.Values) ([]byte, error) {
	key := path
	if len(params) > 0 {
		key += "?" + params.Encode()
	}

	if cached, found := c.respCache.Get(key); found {
		return cached.([]byte), nil
	}

	body, err := c.get(ctx, path, params)
	if err != nil {
		return nil, err
	}

	c.respCache.Set(key, body, cache.DefaultExpiration)
	return body, nil
}

// post performs a POST request against the v0 API
func (c *Client) post(ctx context.Context, path string, body interface{}, params url.Values, authed bool) ([]byte, error) {
	return c.doRequest(ctx, http.MethodPost, buildURL(c.baseURL, path, params), body, authed)
}

// put performs a PUT request against the v0 API
func (c *Client) put(ctx context.Context, path string, body interface{}) ([]byte, error) {
	return c.doRequest(ctx, http.MethodPut, buildURL(c.baseURL, path, nil), body, true)
}

// patch performs a PATCH request against the v0 API
func (c *Client) patch(ctx context.Context, path string, body interface{}) ([]byte, error) {
	return c.doRequest(ctx, http.MethodPatch, buildURL(c.baseURL, path, nil), body, true)
}

// buildURL joins a base URL, path and query parameters
func buildURL(base, path string, params url.Values) string {
	fullURL := base + "/" + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}
	return fullURL
}
