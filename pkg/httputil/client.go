// Package httputil provides the HTTP client remote source stores share.
//
// A [Client] applies a request timeout and default headers, maps response
// status codes to [ErrNotFound] and [ErrNetwork], and retries transient
// failures (transport errors and 5xx responses) with exponential backoff.
// Other failures are returned immediately.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/matzehuels/atlaspack/pkg/buildinfo"
)

const (
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 10 * time.Second

	// DefaultAttempts is how often a transient failure is tried in total.
	DefaultAttempts = 3

	// DefaultDelay is the first backoff interval. It doubles per retry.
	DefaultDelay = time.Second

	// MaxBodySize is the default limit on a response body read by Get.
	MaxBodySize int64 = 64 << 20
)

var (
	// ErrNotFound is returned for 404 and 410 responses.
	ErrNotFound = errors.New("resource not found")

	// ErrNetwork is returned for transport failures and unexpected status codes.
	ErrNetwork = errors.New("network error")

	// ErrTooLarge is returned when a response body exceeds the client's
	// size limit. It is never retried.
	ErrTooLarge = errors.New("response body too large")
)

// Client performs GET and HEAD requests with retries.
type Client struct {
	http     *http.Client
	headers  http.Header
	attempts int
	delay    time.Duration
	maxBody  int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers.Set(key, value) }
}

// WithRetry sets the number of attempts and the first backoff interval.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		c.attempts = max(attempts, 1)
		c.delay = delay
	}
}

// WithMaxBodySize limits the bytes Get reads from a response body.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// NewClient creates a client with a DefaultTimeout and an atlaspack
// User-Agent.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{Timeout: DefaultTimeout},
		headers:  http.Header{"User-Agent": {buildinfo.UserAgent()}},
		attempts: DefaultAttempts,
		delay:    DefaultDelay,
		maxBody:  MaxBodySize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches url and returns its body and response headers. Bodies larger
// than the client's limit fail with [ErrTooLarge].
func (c *Client) Get(ctx context.Context, url string) ([]byte, http.Header, error) {
	var (
		body   []byte
		header http.Header
	)
	err := Retry(ctx, c.attempts, c.delay, func() error {
		resp, err := c.do(ctx, http.MethodGet, url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
		if err != nil {
			return Retryable(fmt.Errorf("%w: read body: %v", ErrNetwork, err))
		}
		if int64(len(data)) > c.maxBody {
			return fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, url, c.maxBody)
		}
		body, header = data, resp.Header
		return nil
	})
	return body, header, err
}

// Head returns the response headers of url without its body.
func (c *Client) Head(ctx context.Context, url string) (http.Header, error) {
	var header http.Header
	err := Retry(ctx, c.attempts, c.delay, func() error {
		resp, err := c.do(ctx, http.MethodHead, url)
		if err != nil {
			return err
		}
		resp.Body.Close()
		header = resp.Header
		return nil
	})
	return header, err
}

func (c *Client) do(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, Retryable(fmt.Errorf("%w: %v", ErrNetwork, err))
	}
	if err := checkStatus(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func checkStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound, code == http.StatusGone:
		return ErrNotFound
	case code == http.StatusTooManyRequests, code >= 500:
		return Retryable(fmt.Errorf("%w: status %d", ErrNetwork, code))
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}
