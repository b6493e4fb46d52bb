package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"jaqpot/backend/go/internal/config"
	"jaqpot/backend/go/pkg/circuitbreaker"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client is a custom HTTP client that wraps the standard http.Client
// and provides built-in support for circuit breaking.
type Client struct {
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker
}

// NewClient creates a new Client. Only 5xx responses and transport errors
// count against the breaker; a disabled breaker passes every call through.
func NewClient(cfg config.CircuitBreakerConfig, timeout time.Duration) (*Client, error) {
	breaker, err := circuitbreaker.FromConfig(cfg, circuitbreaker.IgnoreErrors(isClientError))
	if err != nil {
		return nil, err
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
	}, nil
}

// NewClientWith wraps an existing http.Client, mainly for tests.
func NewClientWith(hc *http.Client, breaker circuitbreaker.CircuitBreaker) *Client {
	return &Client{httpClient: hc, breaker: breaker}
}

// PostJSON sends body as JSON and decodes a 2xx response into out (when non-nil).
func (c *Client) PostJSON(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}

func (c *Client) execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.breaker == nil {
		return fn(ctx)
	}
	return c.breaker.Execute(ctx, fn)
}

func isClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode < http.StatusInternalServerError
}
