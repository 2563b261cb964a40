// Package httpclient provides the HTTP client used for upstream registry and
// artifact requests.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the default maximum response size (100MB)
	MaxResponseSize = 100 * 1024 * 1024

	// DefaultMaxTries is the default number of attempts for transient failures
	DefaultMaxTries = 4

	// BrowserUserAgent is sent by default; some artifact hosts reject unknown agents.
	BrowserUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
)

// ErrResponseTooLarge is returned when a body exceeds the configured size limit
var ErrResponseTooLarge = errors.New("response exceeds maximum allowed size")

// Client is an interface for HTTP operations
//
//go:generate mockgen -destination=mocks/mock_client.go -package=mocks github.com/stacklok/depsync/internal/httpclient Client
type Client interface {
	// Get performs an HTTP GET request and returns the response body.
	// Redirects are followed; transient failures are retried.
	Get(ctx context.Context, url string) ([]byte, error)
}

// DefaultClient is the default HTTP client implementation
type DefaultClient struct {
	client          *http.Client
	userAgent       string
	accept          string
	maxTries        uint
	maxResponseSize int64
	newBackOff      func() backoff.BackOff
}

// Option configures a DefaultClient
type Option func(*DefaultClient)

// WithUserAgent overrides the User-Agent header
func WithUserAgent(userAgent string) Option {
	return func(c *DefaultClient) {
		c.userAgent = userAgent
	}
}

// WithAccept sets the Accept header
func WithAccept(accept string) Option {
	return func(c *DefaultClient) {
		c.accept = accept
	}
}

// WithTransport sets the round tripper, e.g. an authenticating transport
func WithTransport(rt http.RoundTripper) Option {
	return func(c *DefaultClient) {
		c.client.Transport = rt
	}
}

// WithMaxTries caps the number of attempts; 1 disables retries
func WithMaxTries(n uint) Option {
	return func(c *DefaultClient) {
		if n > 0 {
			c.maxTries = n
		}
	}
}

// WithMaxResponseSize overrides the response size limit
func WithMaxResponseSize(n int64) Option {
	return func(c *DefaultClient) {
		if n > 0 {
			c.maxResponseSize = n
		}
	}
}

// WithBackOff sets the retry schedule factory; a fresh schedule is created per request
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *DefaultClient) {
		c.newBackOff = newBackOff
	}
}

// NewDefaultClient creates a new default HTTP client with the specified timeout.
// If timeout is 0, uses DefaultTimeout.
func NewDefaultClient(timeout time.Duration, opts ...Option) *DefaultClient {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	c := &DefaultClient{
		client:          &http.Client{Timeout: timeout},
		userAgent:       BrowserUserAgent,
		accept:          "*/*",
		maxTries:        DefaultMaxTries,
		maxResponseSize: MaxResponseSize,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Client = (*DefaultClient)(nil)

// Get performs an HTTP GET request
func (c *DefaultClient) Get(ctx context.Context, url string) ([]byte, error) {
	attempt := 0
	return backoff.Retry(ctx, func() ([]byte, error) {
		attempt++
		body, err := c.get(ctx, url)
		if err == nil {
			return body, nil
		}
		if !retryable(ctx, err) {
			return nil, backoff.Permanent(err)
		}
		slog.Debug("Retrying HTTP request", "url", url, "attempt", attempt, "error", err)
		return nil, err
	}, backoff.WithBackOff(c.newBackOff()), backoff.WithMaxTries(c.maxTries))
}

func (c *DefaultClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", c.accept)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		// drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return nil, NewHTTPError(resp.StatusCode, url, resp.Status)
	}

	if resp.ContentLength > c.maxResponseSize {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrResponseTooLarge, resp.ContentLength, c.maxResponseSize)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > c.maxResponseSize {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrResponseTooLarge, c.maxResponseSize)
	}

	return body, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, ErrResponseTooLarge) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	return true
}
