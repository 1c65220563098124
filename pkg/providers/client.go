package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ClientConfig configures the shared retrying HTTP client.
type ClientConfig struct {
	// Timeout is the per-request timeout.
	// Default: 30 seconds
	Timeout time.Duration

	// MaxRetries is how many times a failed request is retried.
	// Default: 3
	MaxRetries int

	// InitialBackoff is the delay before the first retry; it doubles on
	// each subsequent retry.
	// Default: 500 milliseconds
	InitialBackoff time.Duration

	// HTTPClient overrides the underlying client. When set, Timeout is
	// ignored.
	HTTPClient *http.Client
}

// Client is a retrying HTTP client shared by all provider fetchers. Requests
// that fail at the network level or return a 5xx status are retried with
// exponential backoff; any other status is returned to the caller.
type Client struct {
	client         *http.Client
	maxRetries     int
	initialBackoff time.Duration
	logger         *slog.Logger
}

// NewClient creates a Client, applying defaults for unset fields.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	client := cfg.HTTPClient
	if client == nil {
		transport := &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		}
		client = &http.Client{Transport: transport, Timeout: cfg.Timeout}
	}
	return &Client{
		client:         client,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		logger:         slog.Default().With("component", "providers.client"),
	}
}

// DoRequest performs an HTTP request, retrying network failures and 5xx
// responses with exponential backoff. The final response is returned as-is;
// non-5xx error statuses are the caller's to interpret.
func (c *Client) DoRequest(ctx context.Context, provider, method, url string, body []byte, headers map[string]string) (*http.Response, error) {
	var lastErr error
	backoff := c.initialBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying request",
				"provider", provider,
				"attempt", attempt,
				"max_retries", c.maxRetries,
				"backoff", backoff,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		for key, value := range headers {
			req.Header.Set(key, value)
		}
		if req.Header.Get("Content-Type") == "" && body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			c.logger.Warn("request failed, will retry",
				"provider", provider,
				"error", err,
			)
			continue
		}

		if resp.StatusCode >= 500 && resp.StatusCode < 600 {
			lastErr = &ProviderError{
				Provider:   provider,
				StatusCode: resp.StatusCode,
				Message:    "server error",
			}
			resp.Body.Close()
			continue
		}
		return resp, nil
	}

	return nil, &ProviderError{
		Provider: provider,
		Message:  fmt.Sprintf("request failed after %d retries", c.maxRetries),
		Cause:    lastErr,
	}
}

// DoJSON performs a request and decodes a JSON response into out. A non-2xx
// status is returned as a ProviderError carrying the response body.
func (c *Client) DoJSON(ctx context.Context, provider, method, url string, reqBody, out interface{}) error {
	return c.DoJSONWithHeaders(ctx, provider, method, url, reqBody, nil, out)
}

// DoJSONWithHeaders is DoJSON with explicit request headers.
func (c *Client) DoJSONWithHeaders(ctx context.Context, provider, method, url string, reqBody interface{}, headers map[string]string, out interface{}) error {
	var bodyBytes []byte
	if reqBody != nil {
		var err error
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	resp, err := c.DoRequest(ctx, provider, method, url, bodyBytes, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ParseError{
			Provider: provider,
			Cause:    fmt.Errorf("failed to read response: %w", err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Message:    string(respBytes),
		}
	}

	if out != nil && len(respBytes) > 0 {
		if err := json.Unmarshal(respBytes, out); err != nil {
			return &ParseError{
				Provider:    provider,
				RawResponse: string(respBytes),
				Cause:       fmt.Errorf("failed to unmarshal response: %w", err),
			}
		}
	}
	return nil
}

// DoJSONRaw is DoJSONWithHeaders but also returns the raw response body, for
// callers that archive verbatim pages.
func (c *Client) DoJSONRaw(ctx context.Context, provider, method, url string, reqBody interface{}, headers map[string]string, out interface{}) ([]byte, error) {
	var bodyBytes []byte
	if reqBody != nil {
		var err error
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	resp, err := c.DoRequest(ctx, provider, method, url, bodyBytes, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ParseError{
			Provider: provider,
			Cause:    fmt.Errorf("failed to read response: %w", err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProviderError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Message:    string(respBytes),
		}
	}

	if out != nil && len(respBytes) > 0 {
		if err := json.Unmarshal(respBytes, out); err != nil {
			return nil, &ParseError{
				Provider:    provider,
				RawResponse: string(respBytes),
				Cause:       fmt.Errorf("failed to unmarshal response: %w", err),
			}
		}
	}
	return respBytes, nil
}
