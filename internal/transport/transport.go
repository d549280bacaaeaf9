// Package transport implements the HTTP fetch capability consumed by the
// ingestion pipeline: pooled connections, retry with exponential backoff on
// transient failures, client-side rate limiting, and bearer authentication
// with a single refresh-and-retry on 401.
package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/marketprofile/go-bar-ingest/internal/token"
)

const (
	defaultBaseURL = "https://api.schwabapi.com"

	defaultTimeout           = 30 * time.Second
	defaultMaxRetries        = 3
	defaultInitialRetryDelay = 400 * time.Millisecond
	defaultMaxRetryDelay     = 10 * time.Second
	defaultRequestsPerSecond = 10
)

// Fetcher is the opaque fetch capability the orchestrator depends on. It is
// an interface so tests can substitute a fake without any reset logic.
type Fetcher interface {
	// Fetch performs a GET against endpoint with the given query parameters
	// and returns the raw response body.
	Fetch(ctx context.Context, endpoint string, params map[string]string) ([]byte, error)
}

// StatusError is the terminal failure for a non-2xx response that survived
// the retry schedule.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Config holds the transport tuning knobs. Zero values fall back to the
// package defaults.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	MaxRetries        uint64
	InitialRetryDelay time.Duration
	MaxRetryDelay     time.Duration
	RequestsPerSecond int
}

// Client is the production Fetcher: one pooled http.Client shared across
// requests, injected rather than process-global so tests and callers can
// hold independent instances.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     token.Provider
	limiter    *rate.Limiter
	logger     *slog.Logger

	maxRetries        uint64
	initialRetryDelay time.Duration
	maxRetryDelay     time.Duration
}

// NewClient creates a transport client using tokens for bearer credentials.
func NewClient(cfg Config, tokens token.Provider, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.InitialRetryDelay <= 0 {
		cfg.InitialRetryDelay = defaultInitialRetryDelay
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = defaultMaxRetryDelay
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRequestsPerSecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		tokens:            tokens,
		limiter:           rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:            logger.With("component", "transport"),
		maxRetries:        cfg.MaxRetries,
		initialRetryDelay: cfg.InitialRetryDelay,
		maxRetryDelay:     cfg.MaxRetryDelay,
	}
}

// Fetch implements Fetcher. Transient failures (network errors, 429, 5xx)
// are retried on an exponential backoff schedule; a 401 triggers one token
// refresh and one more attempt before surfacing as a StatusError. All other
// non-2xx statuses fail immediately.
func (c *Client) Fetch(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	requestURL, err := c.buildURL(endpoint, params)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialRetryDelay
	bo.MaxInterval = c.maxRetryDelay
	bo.MaxElapsedTime = 0 // bounded by max retries and the context

	var body []byte
	refreshed := false

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}

		tok, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("obtain access token: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("request failed, will retry", "url", requestURL, "error", err)
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			body = data
			return nil
		case resp.StatusCode == http.StatusUnauthorized:
			if refreshed {
				return backoff.Permanent(&StatusError{StatusCode: resp.StatusCode, Body: string(data)})
			}
			refreshed = true
			c.logger.Info("token rejected, refreshing once", "url", requestURL)
			if err := c.tokens.Refresh(ctx); err != nil {
				return backoff.Permanent(fmt.Errorf("refresh access token: %w", err))
			}
			return fmt.Errorf("token refreshed, retrying")
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			c.logger.Warn("transient status, will retry", "url", requestURL, "status", resp.StatusCode)
			return &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
		default:
			return backoff.Permanent(&StatusError{StatusCode: resp.StatusCode, Body: string(data)})
		}
	}

	err = backoff.Retry(operation, backoff.WithMaxRetries(backoff.WithContext(bo, ctx), c.maxRetries))
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) buildURL(endpoint string, params map[string]string) (string, error) {
	u, err := url.Parse(c.baseURL + "/" + strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	query := u.Query()
	for key, value := range params {
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}
