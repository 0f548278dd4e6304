// Package graph implements the GraphClient port against the Facebook Graph API.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gregjones/httpcache"
	"golang.org/x/time/rate"

	"github.com/ericfisherdev/leadsync/internal/domain/port/driven"
	"github.com/ericfisherdev/leadsync/internal/metrics"
)

const (
	// DefaultBaseURL is the Graph API host; the API version is appended per request.
	DefaultBaseURL = "https://graph.facebook.com/"

	// DefaultTimeout bounds every Graph API request.
	DefaultTimeout = 30 * time.Second

	// FallbackErrorMessage is used when a failed response carries no error.message.
	FallbackErrorMessage = "Unexpected error contacting Facebook."

	maxResponseBytes = 10 << 20
)

// Compile-time interface satisfaction check.
var _ driven.GraphClient = (*Client)(nil)

// AppConfig is the Facebook app identity used for token exchanges and the API
// version prefix used for every request.
type AppConfig struct {
	AppID      string
	AppSecret  string
	APIVersion string
}

// Client implements driven.GraphClient. It holds no per-user state: every
// method takes the token it should use.
type Client struct {
	app     AppConfig
	baseURL string

	httpClient   *http.Client
	cachedClient *http.Client // form metadata reads only

	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL sets a custom base URL, e.g. an httptest server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client used for uncached requests. The cached
// client reuses its transport beneath a fresh in-memory cache.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
		c.cachedClient = newCachedClient(httpClient)
	}
}

// WithRateLimit paces outbound requests to requestsPerSecond. Zero disables pacing.
func WithRateLimit(requestsPerSecond int) Option {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithMetrics records per-operation request metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger sets the logger used for request-level debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Graph API client with the following transport stack:
//  1. rate.Limiter (client-side pacing, never retries)
//  2. httpcache for form metadata reads (honors Graph API cache headers)
//  3. net/http with a 30 second timeout
func NewClient(app AppConfig, opts ...Option) *Client {
	httpClient := &http.Client{Timeout: DefaultTimeout}
	c := &Client{
		app:          app,
		baseURL:      DefaultBaseURL,
		httpClient:   httpClient,
		cachedClient: newCachedClient(httpClient),
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.app.APIVersion == "" {
		c.app.APIVersion = "v18.0"
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c
}

func newCachedClient(base *http.Client) *http.Client {
	transport := httpcache.NewMemoryCacheTransport()
	if base.Transport != nil {
		transport.Transport = base.Transport
	}
	return &http.Client{
		Timeout:   base.Timeout,
		Transport: transport,
	}
}

// BuildURL joins the base URL, API version and path, and appends params as a
// URL-encoded query string.
func (c *Client) BuildURL(path string, params url.Values) string {
	u := strings.TrimRight(c.baseURL, "/") + "/" + c.app.APIVersion + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// Get issues a GET request with params in the query string and returns the
// decoded JSON object. An empty 2xx body yields an empty map.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (map[string]any, error) {
	return c.object(ctx, "get", http.MethodGet, path, params)
}

// Post issues a POST request with params as a form-encoded body and returns
// the decoded JSON object. An empty 2xx body yields an empty map.
func (c *Client) Post(ctx context.Context, path string, params url.Values) (map[string]any, error) {
	return c.object(ctx, "post", http.MethodPost, path, params)
}

func (c *Client) object(ctx context.Context, op, method, path string, params url.Values) (map[string]any, error) {
	body, err := c.call(ctx, c.httpClient, op, method, path, params)
	if err != nil {
		return nil, err
	}

	out := map[string]any{}
	if err := decode(body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// call performs one request and classifies the outcome. On success it
// returns the raw 2xx body, which may be empty.
func (c *Client) call(ctx context.Context, hc *http.Client, op, method, path string, params url.Values) ([]byte, error) {
	start := time.Now()
	body, outcome, err := c.send(ctx, hc, method, path, params)
	elapsed := time.Since(start)

	c.metrics.RecordGraphRequest(op, outcome, elapsed.Seconds())
	c.logger.Debug("graph request",
		"op", op,
		"method", method,
		"path", path,
		"outcome", outcome,
		"duration", elapsed.Round(time.Millisecond),
	)

	return body, err
}

func (c *Client) send(ctx context.Context, hc *http.Client, method, path string, params url.Values) ([]byte, string, error) {
	op := method + " " + path

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, "transport_error", &driven.TransportError{Op: op, Err: err}
		}
	}

	var req *http.Request
	var err error
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, c.BuildURL(path, params), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.BuildURL(path, nil), strings.NewReader(params.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, "transport_error", &driven.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, "transport_error", &driven.TransportError{Op: op, Err: stripURL(err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, "transport_error", &driven.TransportError{Op: op, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "api_error", parseAPIError(resp.StatusCode, body)
	}

	return body, "success", nil
}

// stripURL drops the request URL from *url.Error values. Graph URLs carry
// access tokens and the app secret in the query string.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

// graphErrorBody is the error envelope returned by the Graph API.
type graphErrorBody struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func parseAPIError(status int, body []byte) *driven.APIError {
	apiErr := &driven.APIError{StatusCode: status, Message: FallbackErrorMessage}

	var envelope graphErrorBody
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
		return apiErr
	}
	if envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
	}
	apiErr.Type = envelope.Error.Type
	apiErr.Code = envelope.Error.Code
	return apiErr
}

// decode unmarshals a 2xx body into out. An empty body or well-formed JSON
// that is not an object (null, arrays, scalars) leaves out untouched, so the
// caller sees an empty result. Malformed JSON, or an object that does not fit
// out, is reported as an APIError.
func decode(body []byte, out any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	if !json.Valid(trimmed) {
		return &driven.APIError{StatusCode: http.StatusOK, Message: FallbackErrorMessage}
	}
	if trimmed[0] != '{' {
		return nil
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return &driven.APIError{StatusCode: http.StatusOK, Message: FallbackErrorMessage}
	}
	return nil
}
