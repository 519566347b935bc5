// Package eoz implements the rate-limited client for the EOZ procurement API.
//
// The API exposes two endpoint shapes: POST /get/page returns one page of a
// paginated entity listing, POST /get/object returns the full raw object for
// one identifier. The client enforces a global requests-per-second ceiling
// and a maximum number of in-flight requests; both must be satisfied before
// a request starts, excess callers block.
package eoz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/powerhouse-kz/powerhouse/internal/common"
	"github.com/powerhouse-kz/powerhouse/internal/model"
)

// DefaultPageLength is the number of records requested per list page. The API
// caps length at 1000.
const DefaultPageLength = 1000

// Config holds client configuration.
type Config struct {
	BaseURL           string
	SessionCookie     string
	RetryDelays       []time.Duration
	RequestsPerSecond int
	MaxConcurrent     int
	Timeout           time.Duration
	PageLength        int
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10,
		MaxConcurrent:     25,
		Timeout:           60 * time.Second,
		PageLength:        DefaultPageLength,
		RetryDelays:       common.DefaultBackoff,
	}
}

// Client is a rate-limited, bounded-concurrency EOZ API client. It holds no
// persistent state, only concurrency and rate accounting.
type Client struct {
	httpClient *http.Client
	limiter    *rateLimiter
	slots      chan struct{}
	cfg        Config
}

// PageResponse is one page of a paginated entity listing.
type PageResponse struct {
	Content       []json.RawMessage `json:"content"`
	TotalPages    int               `json:"totalPages"`
	TotalElements int               `json:"totalElements"`
}

// pagePayload is the request body for the list endpoint.
type pagePayload struct {
	Filter map[string]any `json:"filter"`
	Entity string         `json:"entity"`
	Page   int            `json:"page"`
	Length int            `json:"length"`
}

// objectPayload is the request body for the object endpoint.
type objectPayload struct {
	Entity string `json:"entity"`
	UUID   string `json:"uuid"`
}

// NewClient creates a new EOZ API client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: api.base_url", common.ErrMissingConfig)
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultConfig().RequestsPerSecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.PageLength <= 0 || cfg.PageLength > DefaultPageLength {
		cfg.PageLength = DefaultPageLength
	}
	if len(cfg.RetryDelays) == 0 {
		cfg.RetryDelays = common.DefaultBackoff
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: newRateLimiter(cfg.RequestsPerSecond),
		slots:   make(chan struct{}, cfg.MaxConcurrent),
	}, nil
}

// MaxConcurrent returns the in-flight request ceiling.
func (c *Client) MaxConcurrent() int {
	return c.cfg.MaxConcurrent
}

// Close releases the client's rate limiter.
func (c *Client) Close() {
	c.limiter.Close()
}

// FetchPage fetches one page of the listing for an entity kind.
func (c *Client) FetchPage(ctx context.Context, kind model.Kind, page int) (*PageResponse, error) {
	payload := pagePayload{
		Page:   page,
		Entity: kind.APIName(),
		Length: c.cfg.PageLength,
		Filter: kind.ListFilter(),
	}

	var resp PageResponse
	err := common.WithRetry(ctx, func() error {
		body, reqErr := c.post(ctx, "/get/page", payload, kind)
		if reqErr != nil {
			return reqErr
		}
		if unmarshalErr := json.Unmarshal(body, &resp); unmarshalErr != nil {
			return fmt.Errorf("%w: page response: %v", common.ErrMalformedBody, unmarshalErr)
		}
		return nil
	}, c.cfg.RetryDelays)
	if err != nil {
		return nil, fmt.Errorf("fetch %s page %d: %w", kind, page, err)
	}

	return &resp, nil
}

// FetchObject fetches the full raw object for one identifier. An empty
// response body is reported as common.ErrNotFound.
func (c *Client) FetchObject(ctx context.Context, kind model.Kind, id string) (json.RawMessage, error) {
	payload := objectPayload{
		Entity: kind.APIName(),
		UUID:   id,
	}

	var raw json.RawMessage
	err := common.WithRetry(ctx, func() error {
		body, reqErr := c.post(ctx, "/get/object", payload, kind)
		if reqErr != nil {
			return reqErr
		}
		if isEmptyObject(body) {
			return fmt.Errorf("object %s/%s: %w", kind, id, common.ErrNotFound)
		}
		if !json.Valid(body) {
			return fmt.Errorf("%w: object response", common.ErrMalformedBody)
		}
		raw = json.RawMessage(body)
		return nil
	}, c.cfg.RetryDelays)
	if err != nil {
		return nil, err
	}

	return raw, nil
}

// post issues one request under both ceilings and classifies failures.
func (c *Client) post(ctx context.Context, path string, payload any, kind model.Kind) ([]byte, error) {
	select {
	case c.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.slots }()

	if err := c.limiter.wait(ctx); err != nil {
		return nil, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.SessionCookie != "" && kind.NeedsSession() {
		req.Header.Set("Cookie", c.cfg.SessionCookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport-level failures (timeouts, resets) are retryable.
		return nil, &common.RetryableError{Err: err, Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &common.RetryableError{Err: err, Retryable: true}
	}

	if err := classifyStatus(resp.StatusCode); err != nil {
		slog.Debug("Request failed",
			"path", path,
			"status", resp.StatusCode,
			"entity", kind.APIName())
		return nil, err
	}

	return body, nil
}

// classifyStatus maps an HTTP status to the error taxonomy: rate-limit and
// gateway/timeout classes are transient, all other non-2xx are permanent.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("status %d: %w", status, common.ErrRateLimit)
	case status == http.StatusRequestTimeout || status >= 500:
		return fmt.Errorf("status %d: %w", status, common.ErrTransient)
	default:
		return fmt.Errorf("status %d: %w", status, common.ErrPermanent)
	}
}

// isEmptyObject reports whether an object response signals "not found": an
// empty body, JSON null, or an empty JSON object.
func isEmptyObject(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return true
	}
	switch string(trimmed) {
	case "null", "{}":
		return true
	}
	return false
}
