// Package httpclient is the outbound HTTP client used for provider APIs. It
// retries transient failures with a fixed delay behind a circuit breaker.
package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jwalitptl/telecare-api/pkg/circuitbreaker"
)

const (
	DefaultAttempts = 3
	DefaultDelay    = 500 * time.Millisecond
	DefaultTimeout  = 15 * time.Second
)

// StatusError is returned when the upstream keeps answering with a
// retryable status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	Name     string
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration
}

type Client struct {
	http     *http.Client
	attempts int
	delay    time.Duration
	cb       *circuitbreaker.CircuitBreaker
}

func New(cfg Config) *Client {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		http:     &http.Client{Timeout: cfg.Timeout},
		attempts: cfg.Attempts,
		delay:    cfg.Delay,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        cfg.Name,
			MaxFailures: 5,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
		}),
	}
}

// Do sends req through the breaker. Responses with status < 500 (other than
// 429) are returned to the caller as-is.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := c.cb.Execute(func() error {
		var err error
		resp, err = c.fetchWithRetry(req, c.attempts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// DoOnce sends req through the breaker a single time. Use it for calls the
// upstream cannot deduplicate, where a retry after a lost response would
// repeat the side effect. A 5xx or 429 answer is still reported as a
// *StatusError.
func (c *Client) DoOnce(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := c.cb.Execute(func() error {
		var err error
		resp, err = c.fetchWithRetry(req, 1)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) fetchWithRetry(req *http.Request, attempts int) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(c.delay):
			}
		}

		r, err := cloneRequest(req)
		if err != nil {
			return nil, err
		}

		resp, err := c.http.Do(r)
		if err != nil {
			lastErr = err
			continue
		}
		if !retryable(resp.StatusCode) {
			return resp, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		lastErr = &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil, fmt.Errorf("request to %s failed after %d attempts: %w", req.URL.Host, attempts, lastErr)
}

func cloneRequest(req *http.Request) (*http.Request, error) {
	r := req.Clone(req.Context())
	if req.Body == nil || req.GetBody == nil {
		return r, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("failed to rewind request body: %w", err)
	}
	r.Body = body
	return r, nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
