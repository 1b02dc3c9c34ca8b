// Package client provides the commerce GraphQL API client with cost-based
// rate limiting, retry and error classification.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/pim-sync/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for commerce client operations.
var (
	commerceRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pim_commerce_requests_total",
		Help: "Total commerce API requests by operation and status",
	}, []string{"operation", "status"})

	commerceRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pim_commerce_request_duration_seconds",
		Help:    "Commerce API request duration in seconds by operation",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"operation"})
)

// maxErrorBody bounds how much of a failed response body ends up in an HTTPError.
const maxErrorBody = 4 << 10

// Client is the commerce GraphQL API client.
//
// A process constructs one Client at its boundary (see cmd/pim-sync) and
// passes it to whatever needs it; the budget tracker lives inside it.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Tracker
	executor   *Executor
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Endpoint is the GraphQL endpoint URL (REQUIRED).
	Endpoint string

	// AccessToken authenticates the application (REQUIRED).
	AccessToken string

	// AuthHeader is the header carrying the token. "Authorization" sends
	// "Bearer <token>", any other header name sends the raw token.
	AuthHeader string

	// UserAgent identifies the application.
	UserAgent string

	// Timeout bounds a single HTTP round trip.
	Timeout time.Duration

	// DefaultCost is the cost estimate used when a caller passes 0.
	DefaultCost float64

	// Retry configures the executor.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(endpoint, accessToken string) Config {
	return Config{
		Endpoint:    endpoint,
		AccessToken: accessToken,
		AuthHeader:  "Authorization",
		UserAgent:   "pim-sync/0.1.0",
		Timeout:     30 * time.Second,
		DefaultCost: 50,
		Retry:       DefaultRetryConfig(),
	}
}

// New creates a new commerce client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("access token is required")
	}
	if cfg.AuthHeader == "" {
		cfg.AuthHeader = "Authorization"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.DefaultCost <= 0 {
		cfg.DefaultCost = 50
	}

	logger := log.With().Str("component", "commerce-client").Logger()
	limiter := ratelimit.NewTracker(logger)

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:  limiter,
		executor: NewExecutor(limiter, cfg.Retry, logger),
		config:   cfg,
		logger:   logger,
	}, nil
}

// Query runs a GraphQL query and returns the raw data object.
// A cost of 0 uses the configured default estimate.
func (c *Client) Query(ctx context.Context, query string, variables map[string]any, cost float64) (json.RawMessage, error) {
	resp, err := c.Do(ctx, query, variables, cost)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Do runs a GraphQL query through the executor and returns the full response.
func (c *Client) Do(ctx context.Context, query string, variables map[string]any, cost float64) (*Response, error) {
	if cost <= 0 {
		cost = c.config.DefaultCost
	}

	body, err := json.Marshal(Request{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	operation := operationName(query)
	startTime := time.Now()
	defer func() {
		commerceRequestDuration.WithLabelValues(operation).Observe(time.Since(startTime).Seconds())
	}()

	return c.executor.Execute(ctx, func(ctx context.Context) (*Response, error) {
		return c.send(ctx, operation, body)
	}, cost)
}

// send performs a single HTTP round trip.
func (c *Client) send(ctx context.Context, operation string, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if strings.EqualFold(c.config.AuthHeader, "Authorization") {
		req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
	} else {
		req.Header.Set(c.config.AuthHeader, c.config.AccessToken)
	}

	c.logger.Debug().
		Str("operation", operation).
		Msg("Executing commerce API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		commerceRequestsTotal.WithLabelValues(operation, "network_error").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	commerceRequestsTotal.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn().
			Str("operation", operation).
			Int("status", resp.StatusCode).
			Msg("Commerce API request error")
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return &out, nil
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// operationName extracts a metrics label from a GraphQL document,
// e.g. "query ProductsPage($first: Int!)" → "ProductsPage". Documents
// without an operation name are labelled "anonymous".
func operationName(query string) string {
	query = strings.TrimSpace(query)
	for _, keyword := range []string{"query", "mutation"} {
		rest, ok := strings.CutPrefix(query, keyword)
		if !ok || (rest != "" && isNameRune(rune(rest[0]))) {
			continue
		}
		rest = strings.TrimLeft(rest, " \t\r\n")
		end := strings.IndexFunc(rest, func(r rune) bool { return !isNameRune(r) })
		if end < 0 {
			end = len(rest)
		}
		if end > 0 {
			return rest[:end]
		}
		break
	}
	return "anonymous"
}

func isNameRune(r rune) bool {
	return r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}

// RateLimiter returns the budget tracker.
func (c *Client) RateLimiter() *ratelimit.Tracker {
	return c.limiter
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetSleeper replaces the executor's wait function (for testing).
func (c *Client) SetSleeper(s Sleeper) {
	c.executor.SetSleeper(s)
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
