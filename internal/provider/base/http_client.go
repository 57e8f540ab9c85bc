// Package base provides the shared outbound HTTP plumbing for provider
// adapters: bounded timeouts, a circuit breaker per provider, and
// credential-free logging.
package base

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

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

// Client is an HTTP client scoped to one provider.
type Client struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*Response]
	baseURL string
	name    string // provider name for logging
}

// NewClient creates a client with the given call timeout. A zero timeout
// falls back to 30s; every provider call must stay bounded.
func NewClient(providerName string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		client: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
			Name:    providerName,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		name: providerName,
	}
}

// SetBaseURL sets the base URL for all requests.
func (c *Client) SetBaseURL(baseURL string) { c.baseURL = baseURL }

// PostForm makes a POST request with form-encoded payload.
func (c *Client) PostForm(ctx context.Context, endpoint string, form url.Values, headers map[string]string) (*Response, error) {
	return c.do(ctx, "POST", endpoint, strings.NewReader(form.Encode()),
		"application/x-www-form-urlencoded", headers)
}

// PostJSON makes a POST request with JSON payload.
func (c *Client) PostJSON(ctx context.Context, endpoint string, payload any, headers map[string]string) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return c.do(ctx, "POST", endpoint, bytes.NewReader(body), "application/json", headers)
}

// Get makes a GET request.
func (c *Client) Get(ctx context.Context, endpoint string, headers map[string]string) (*Response, error) {
	return c.do(ctx, "GET", endpoint, nil, "", headers)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string, headers map[string]string) (*Response, error) {
	u := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", fmt.Sprintf("paygate/%s", c.name))
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	log.Debug().
		Str("provider", c.name).
		Str("method", method).
		Str("url", u).
		Msg("making HTTP request")

	resp, err := c.breaker.Execute(func() (*Response, error) {
		raw, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		return readResponse(raw)
	})
	if err != nil {
		log.Error().
			Str("provider", c.name).
			Str("url", u).
			Err(err).
			Msg("HTTP request failed")
		return nil, err
	}

	log.Debug().
		Str("provider", c.name).
		Int("status_code", resp.StatusCode).
		Int("body_length", len(resp.Body)).
		Msg("received HTTP response")

	return resp, nil
}

// IsTimeout reports whether err was caused by the call timeout or a canceled
// deadline rather than a provider-side rejection.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Timeout()
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// Response represents an HTTP response with the body already drained.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

func readResponse(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

// IsSuccess checks for a 2xx status code.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// UnmarshalJSON unmarshals the response body into v.
func (r *Response) UnmarshalJSON(v any) error {
	return json.Unmarshal(r.Body, v)
}
