// Package api is the HTTP client for the remote storefront REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tophome-storefront/internal/observability"
)

// maxBodySize caps how much of a response body is read
const maxBodySize = 4 << 20

// TokenSource supplies the bearer token for outgoing requests. It is
// consulted on every request so logout and token rotation apply immediately.
type TokenSource interface {
	Token() string
}

type noToken struct{}

func (noToken) Token() string { return "" }

// Client calls the remote API. Copies made with WithTokenSource share the
// underlying http.Client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// NewClient creates an anonymous client. A nil httpClient gets a client with a 30s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		tokens:     noToken{},
	}
}

// WithTokenSource returns a copy of the client that authenticates with ts
func (c *Client) WithTokenSource(ts TokenSource) *Client {
	clone := *c
	if ts == nil {
		ts = noToken{}
	}
	clone.tokens = ts
	return &clone
}

// send performs one request and returns the raw body of a 2xx response.
// Every failure is returned as *Error.
func (c *Client) send(ctx context.Context, operation, method, path string, query url.Values, body any) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Message: FallbackMessage, Err: fmt.Errorf("failed to encode %s request: %w", operation, err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &Error{Message: FallbackMessage, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.UpstreamRequestDuration.WithLabelValues(operation, "error").Observe(time.Since(start).Seconds())
		observability.FromContext(ctx).Warn("upstream request failed",
			slog.String("operation", operation),
			slog.String("error", err.Error()))
		return nil, &Error{Message: FallbackMessage, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	observability.UpstreamRequestDuration.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &Error{Status: resp.StatusCode, Message: FallbackMessage, Err: fmt.Errorf("failed to read %s response: %w", operation, err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := normalizeMessage(data)
		observability.FromContext(ctx).Debug("upstream returned error",
			slog.String("operation", operation),
			slog.Int("status", resp.StatusCode),
			slog.String("message", msg))
		return nil, &Error{Status: resp.StatusCode, Message: msg}
	}

	return data, nil
}

// decode unmarshals a 2xx body, reporting malformed payloads as *Error
func decode(operation string, data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Status: http.StatusOK, Message: FallbackMessage, Err: fmt.Errorf("failed to decode %s response: %w", operation, err)}
	}
	return nil
}
