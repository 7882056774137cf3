package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Client is the provider surface the sync core consumes. Implementations
// must return *APIError for provider-side failures so callers can
// distinguish them from local ones.
type Client interface {
	RetrieveLiveSchema(ctx context.Context, databaseID string) ([]DataSourceProperty, error)
	RetrievePage(ctx context.Context, pageID string) (*Page, error)
	UpdateSchema(ctx context.Context, databaseID string, properties map[string]any) error
	NotifySyncIndicator(ctx context.Context, pageID, label string) error
}

// APIError is a failed Notion call after the client's own retry budget.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion api: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
}

// Retryable reports whether the failure is transient (rate limit or server
// side) rather than permanent.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// HTTPClient is a minimal client covering only the four calls the sync core
// needs. Pagination and block traversal are intentionally absent.
type HTTPClient struct {
	baseURL       string
	token         string
	version       string
	indicatorProp string
	httpClient    *http.Client
	maxRetries    int
	log           zerolog.Logger
}

// HTTPClientOptions configures the HTTP client.
type HTTPClientOptions struct {
	BaseURL       string
	Token         string
	IndicatorProp string // select property updated by NotifySyncIndicator
	Timeout       time.Duration
	MaxRetries    int
	Logger        zerolog.Logger
}

// NewHTTPClient builds the client with sane defaults.
func NewHTTPClient(opts HTTPClientOptions) *HTTPClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.notion.com"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.IndicatorProp == "" {
		opts.IndicatorProp = "Sync Status"
	}
	return &HTTPClient{
		baseURL:       opts.BaseURL,
		token:         opts.Token,
		version:       "2022-06-28",
		indicatorProp: opts.IndicatorProp,
		httpClient:    &http.Client{Timeout: opts.Timeout},
		maxRetries:    opts.MaxRetries,
		log:           opts.Logger,
	}
}

type databaseResponse struct {
	Properties map[string]struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"properties"`
}

// RetrieveLiveSchema fetches the database and flattens its property map
// into {name, type} snapshots.
func (c *HTTPClient) RetrieveLiveSchema(ctx context.Context, databaseID string) ([]DataSourceProperty, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/databases/"+databaseID, nil)
	if err != nil {
		return nil, err
	}
	var resp databaseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode database: %w", err)
	}
	props := make([]DataSourceProperty, 0, len(resp.Properties))
	for name, p := range resp.Properties {
		props = append(props, DataSourceProperty{ID: p.ID, Name: name, Type: p.Type})
	}
	return props, nil
}

// RetrievePage fetches a single page with its property payloads.
func (c *HTTPClient) RetrievePage(ctx context.Context, pageID string) (*Page, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/pages/"+pageID, nil)
	if err != nil {
		return nil, err
	}
	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return &page, nil
}

// UpdateSchema applies a migration payload to the database schema.
func (c *HTTPClient) UpdateSchema(ctx context.Context, databaseID string, properties map[string]any) error {
	payload := map[string]any{"properties": properties}
	_, err := c.do(ctx, http.MethodPatch, "/v1/databases/"+databaseID, payload)
	return err
}

// NotifySyncIndicator sets the configured indicator select property on a
// page. Callers treat failures as best-effort.
func (c *HTTPClient) NotifySyncIndicator(ctx context.Context, pageID, label string) error {
	payload := map[string]any{
		"properties": map[string]any{
			c.indicatorProp: map[string]any{
				"select": map[string]any{"name": label},
			},
		},
	}
	_, err := c.do(ctx, http.MethodPatch, "/v1/pages/"+pageID, payload)
	return err
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody []byte
	if payload != nil {
		var err error
		reqBody, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		var body io.Reader
		if reqBody != nil {
			body = bytes.NewReader(reqBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Notion-Version", c.version)
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("notion request: %w", err)
			continue
		}
		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode < http.StatusBadRequest {
			return respBody, nil
		}

		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(respBody, apiErr)
		if apiErr.Retryable() && attempt < c.maxRetries {
			c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Int("attempt", attempt+1).
				Msg("retrying notion call")
			lastErr = apiErr
			continue
		}
		return nil, apiErr
	}
	return nil, lastErr
}
