// Package client is a Go client for the swap coordinator HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chainsafe/swap-coordinator/pkg/api"
	"github.com/chainsafe/swap-coordinator/pkg/config"
	"github.com/chainsafe/swap-coordinator/pkg/swap"
)

const maxResponseBytes = 4 << 20

// APIError is a non-2xx answer from the coordinator
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("coordinator returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("coordinator returned status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the coordinator API
type Client struct {
	baseURL  string
	token    string
	walletID string
	http     *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client from configuration
func New(cfg *config.ClientConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		walletID: cfg.WalletID,
		http:     &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Quote prices a swap without accepting it.
func (c *Client) Quote(ctx context.Context, req api.QuoteRequest) (*api.QuoteResponse, error) {
	var out api.QuoteResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/quotes", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSwap accepts a fresh quote for req.
func (c *Client) CreateSwap(ctx context.Context, req api.SwapRequest) (*api.SwapResponse, error) {
	var out api.SwapResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/swaps", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSwaps lists the caller's swaps, newest first. An empty status lists all.
func (c *Client) ListSwaps(ctx context.Context, status swap.Status, limit int) ([]api.SwapResponse, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []api.SwapResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/swaps", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSwap returns one swap.
func (c *Client) GetSwap(ctx context.Context, id string) (*api.SwapResponse, error) {
	var out api.SwapResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/swaps/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SwapStatus returns the display state of one swap.
func (c *Client) SwapStatus(ctx context.Context, id string) (*api.SwapStatusResponse, error) {
	var out api.SwapStatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/swaps/"+url.PathEscape(id)+"/status", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AbortSwap stops the coordinator from driving a swap.
func (c *Client) AbortSwap(ctx context.Context, id string) (*api.AbortResponse, error) {
	var out api.AbortResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/swaps/"+url.PathEscape(id)+"/abort", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Statuses lists the lifecycle statuses.
func (c *Client) Statuses(ctx context.Context) ([]api.StatusInfo, error) {
	var out []api.StatusInfo
	if err := c.do(ctx, http.MethodGet, "/api/v1/statuses", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.walletID != "" {
		req.Header.Set(api.WalletHeader, c.walletID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s %s: failed to read response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}
