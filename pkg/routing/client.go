// Package routing is a client for a LI.FI-compatible bridge-aggregation service.
package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/swap-coordinator/pkg/config"
)

// ErrMalformedResponse is returned when a response cannot be decoded or fails validation.
var ErrMalformedResponse = errors.New("malformed routing response")

const maxResponseBytes = 8 << 20

// APIError is a non-2xx answer from the routing service
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("routing service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("routing service returned status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the routing service
type Client struct {
	baseURL    string
	apiKey     string
	integrator string
	options    RouteOptions
	http       *http.Client
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a routing client from configuration
func NewClient(cfg config.RoutingConfig, logger *zap.Logger, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		integrator: cfg.Integrator,
		options: RouteOptions{
			Integrator: cfg.Integrator,
			Slippage:   cfg.Slippage,
			Referrer:   cfg.Referrer,
			Fee:        cfg.Fee,
		},
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetQuote calls GET /quote
func (c *Client) GetQuote(ctx context.Context, req QuoteRequest) (*Step, error) {
	q := url.Values{}
	q.Set("fromChain", strconv.FormatInt(req.FromChain, 10))
	q.Set("toChain", strconv.FormatInt(req.ToChain, 10))
	q.Set("fromToken", req.FromToken)
	q.Set("toToken", req.ToToken)
	if req.FromAmount != nil {
		q.Set("fromAmount", req.FromAmount.String())
	}
	if req.FromAddress != "" {
		q.Set("fromAddress", req.FromAddress)
	}
	if c.integrator != "" {
		q.Set("integrator", c.integrator)
	}

	var step Step
	if err := c.do(ctx, http.MethodGet, "/quote", q, nil, &step); err != nil {
		return nil, err
	}
	if _, err := step.Estimate.ToAmountDecimal(); err != nil {
		return nil, err
	}
	return &step, nil
}

// GetRoutes calls POST /advanced/routes. Routes are returned in the service's order.
func (c *Client) GetRoutes(ctx context.Context, req RoutesRequest) ([]Route, error) {
	if req.Options == nil {
		opts := c.options
		req.Options = &opts
	}

	var resp routesResponse
	if err := c.do(ctx, http.MethodPost, "/advanced/routes", nil, req, &resp); err != nil {
		return nil, err
	}
	return resp.Routes, nil
}

// GetStepTransaction calls POST /advanced/stepTransaction and returns the step
// populated with its transaction request.
func (c *Client) GetStepTransaction(ctx context.Context, step Step) (*Step, error) {
	var populated Step
	if err := c.do(ctx, http.MethodPost, "/advanced/stepTransaction", nil, step, &populated); err != nil {
		return nil, err
	}
	if populated.TransactionRequest == nil {
		return nil, fmt.Errorf("%w: step %s has no transaction request", ErrMalformedResponse, step.ID)
	}
	return &populated, nil
}

// GetStatus calls GET /status
func (c *Client) GetStatus(ctx context.Context, req StatusRequest) (*StatusResponse, error) {
	q := url.Values{}
	if req.Bridge != "" {
		q.Set("bridge", req.Bridge)
	}
	q.Set("fromChain", strconv.FormatInt(req.FromChain, 10))
	q.Set("toChain", strconv.FormatInt(req.ToChain, 10))
	q.Set("txHash", req.TxHash)

	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, "/status", q, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
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
	if c.apiKey != "" {
		req.Header.Set("x-lifi-api-key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s %s: failed to read response: %w", method, path, err)
	}

	c.logger.Debug("Routing request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrMalformedResponse, method, path, err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrMalformedResponse, method, path, err)
	}
	return nil
}
