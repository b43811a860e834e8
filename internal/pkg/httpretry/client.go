// Package httpretry wraps an HTTP client with exponential backoff and
// jitter so outbound delivery calls survive transient upstream failures.
package httpretry

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPDoer executes HTTP requests. Both *http.Client and *Client
// satisfy it, so callers can layer retries transparently.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client retries transient failures with full-jitter exponential
// backoff. Client errors (4xx other than 429) are returned untouched.
type Client struct {
	inner      HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	log        zerolog.Logger
}

// New wraps inner with retry behavior. A nil inner gets a default
// http.Client with a 30s timeout. maxRetries counts attempts after the
// first request; values below one fall back to 3.
func New(inner HTTPDoer, maxRetries int, log zerolog.Logger) *Client {
	if inner == nil {
		inner = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Client{
		inner:      inner,
		maxRetries: maxRetries,
		baseDelay:  time.Second,
		maxDelay:   30 * time.Second,
		log:        log,
	}
}

// Do executes req, retrying on 429/5xx responses and transient network
// errors. Context cancellation stops the loop immediately. The final
// attempt's response is returned as-is so callers can inspect status
// and body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := req.Context().Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		if attempt > 0 {
			// Rewind the body before resending.
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: reset request body: %w", err)
				}
				req.Body = body
			}

			delay := c.backoff(attempt)
			c.log.Debug().
				Int("attempt", attempt).
				Int("max_retries", c.maxRetries).
				Str("method", req.Method).
				Str("host", req.URL.Host).
				Dur("delay", delay).
				Msg("retrying request")

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-req.Context().Done():
				timer.Stop()
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, req.Context().Err()
			}
		}

		resp, err := c.inner.Do(req)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			continue
		}

		if !retryable(resp.StatusCode) {
			return resp, nil
		}
		if attempt == c.maxRetries {
			return resp, nil
		}

		// Drain so the connection can be reused.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// backoff returns the full-jitter delay for the given attempt:
// random(0, min(maxDelay, baseDelay*2^(attempt-1))), floored at 100ms.
func (c *Client) backoff(attempt int) time.Duration {
	exp := float64(c.baseDelay) * math.Pow(2, float64(attempt-1))
	if exp > float64(c.maxDelay) {
		exp = float64(c.maxDelay)
	}
	d := time.Duration(rand.Float64() * exp)
	if d < 100*time.Millisecond {
		d = 100 * time.Millisecond
	}
	return d
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
