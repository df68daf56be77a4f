package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nucleus/itsm-core/internal/core"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig configures the HTTP client behavior.
type ClientConfig struct {
	// BaseURL is the instance URI, e.g. https://acme.service-now.com.
	BaseURL string

	// Auth configures authentication.
	Auth AuthConfig

	// Timeout for individual requests (default: 30s).
	Timeout time.Duration

	// MaxRetries for rate limited or failed server responses (default: 3).
	// Negative disables retries.
	MaxRetries int

	// RateLimit requests per second (default: 10).
	RateLimit float64

	// RateBurst maximum burst size (default: 5).
	RateBurst int

	// Headers to add to all requests.
	Headers map[string]string

	UserAgent string

	// Transport allows injecting a custom HTTP transport (for tests/stubs).
	Transport http.RoundTripper

	Logger *zap.Logger
}

// DefaultClientConfig returns a client config with sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Auth:       NoAuth{},
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RateLimit:  10.0,
		RateBurst:  5,
		UserAgent:  "itsm-core/1.0",
		Headers:    make(map[string]string),
	}
}

// =============================================================================
// HTTP CLIENT
// =============================================================================

// Executor performs requests against the ITSM service. Client implements it;
// tests substitute their own.
type Executor interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Client is a rate-limited, retry-capable JSON client.
type Client struct {
	config      *ClientConfig
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *zap.Logger
}

// NewClient creates a new HTTP client with the given configuration.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}
	if config.Auth == nil {
		config.Auth = NoAuth{}
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RateLimit == 0 {
		config.RateLimit = 10.0
	}
	if config.RateBurst == 0 {
		config.RateBurst = 5
	}
	if config.UserAgent == "" {
		config.UserAgent = "itsm-core/1.0"
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: config.Transport,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
		logger:      logger,
	}
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string { return strings.TrimSuffix(c.config.BaseURL, "/") }

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// Request represents an HTTP request to be made.
type Request struct {
	Method string
	// Path is joined to the base URL. URL, when set, is used verbatim
	// instead; cursors from Link headers are absolute URLs.
	Path  string
	URL   string
	Query url.Values
	Body  []byte
}

// Response wraps an HTTP response with convenience methods.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON unmarshals the response body into the given target.
func (r *Response) JSON(target any) error {
	return json.Unmarshal(r.Body, target)
}

// Document decodes the body as a JSON object.
func (r *Response) Document() (core.Document, error) {
	var doc core.Document
	if err := r.JSON(&doc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return doc, nil
}

// IsSuccess reports whether the service accepted the request. The table API
// answers 200 for reads and updates and 201 for creates.
func (r *Response) IsSuccess() bool {
	return r.StatusCode == http.StatusOK || r.StatusCode == http.StatusCreated
}

// =============================================================================
// CLIENT METHODS
// =============================================================================

// Do executes a request with rate limiting and retry. Responses other than
// 200 and 201 are returned as *core.TransportError carrying status and body.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		resp, err := c.doOnce(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == c.config.MaxRetries {
			break
		}

		backoff := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
		c.logger.Debug("retrying request", zap.String("method", req.Method), zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, lastErr
}

func (c *Client) resolve(req *Request) string {
	if req.URL != "" {
		return req.URL
	}
	full := c.BaseURL()
	if req.Path != "" {
		full += "/" + strings.TrimPrefix(req.Path, "/")
	}
	if len(req.Query) > 0 {
		full += "?" + req.Query.Encode()
	}
	return full
}

// doOnce executes a single request attempt.
func (c *Client) doOnce(ctx context.Context, req *Request) (*Response, error) {
	target := c.resolve(req)
	op := req.Method + " " + target

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, &core.TransportError{Op: op, Err: err}
	}

	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}
	c.config.Auth.Apply(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &core.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	response := &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
	}
	if !response.IsSuccess() {
		return response, &core.TransportError{Op: op, StatusCode: resp.StatusCode, Body: string(data)}
	}
	return response, nil
}

// Get performs a GET request on a path below the base URL.
func Get(ctx context.Context, exec Executor, path string, query url.Values) (*Response, error) {
	return exec.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// GetURL performs a GET on an absolute URL.
func GetURL(ctx context.Context, exec Executor, rawURL string) (*Response, error) {
	return exec.Do(ctx, &Request{Method: http.MethodGet, URL: rawURL})
}

// Post performs a POST request with JSON body.
func Post(ctx context.Context, exec Executor, path string, body any) (*Response, error) {
	return send(ctx, exec, http.MethodPost, path, body)
}

// Put performs a PUT request with JSON body.
func Put(ctx context.Context, exec Executor, path string, body any) (*Response, error) {
	return send(ctx, exec, http.MethodPut, path, body)
}

func send(ctx context.Context, exec Executor, method, path string, body any) (*Response, error) {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
	}
	return exec.Do(ctx, &Request{Method: method, Path: path, Body: data})
}

// =============================================================================
// ERRORS
// =============================================================================

// IsRateLimited reports whether err is a 429 response.
func IsRateLimited(err error) bool {
	var te *core.TransportError
	return errors.As(err, &te) && te.StatusCode == http.StatusTooManyRequests
}

// IsServerError reports whether err is a 5xx response.
func IsServerError(err error) bool {
	var te *core.TransportError
	return errors.As(err, &te) && te.StatusCode >= 500
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var te *core.TransportError
	return errors.As(err, &te) && te.StatusCode == http.StatusNotFound
}

// isRetryable determines if an error should be retried.
func isRetryable(err error) bool {
	return IsRateLimited(err) || IsServerError(err)
}
