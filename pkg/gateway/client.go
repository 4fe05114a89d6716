// ABOUTME: HTTP client for the chat gateway with retry on 429/5xx
// ABOUTME: Exponential backoff with context-aware sleeps; per-call header injection

package gateway

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	maxRetries    = 3
	baseBackoffMs = 500
	maxBackoffMs  = 10000
)

// Client wraps an http.Client with retry logic against a single base URL.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a gateway client. Proxy support comes from the stdlib's
// default transport (HTTP_PROXY, HTTPS_PROXY).
func NewClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		baseURL: NormalizeBaseURL(baseURL),
	}
}

// BaseURL returns the base URL configured on this client.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do sends an HTTP request with retry on 429 and 5xx status codes. It
// returns the response from the last attempt, even if retries were
// exhausted. If body implements io.Seeker, it is rewound before each retry.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, headers map[string]string) (*http.Response, error) {
	seeker, _ := body.(io.Seeker)

	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := rewindBody(seeker, attempt); err != nil {
			return nil, fmt.Errorf("rewinding request body: %w", err)
		}

		req, err := c.buildRequest(ctx, method, path, body, headers)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http request failed: %w", err)
		}

		if !isRetryable(resp.StatusCode) {
			return resp, nil
		}

		resp.Body.Close()

		if attempt < maxRetries-1 {
			if err := sleepWithContext(ctx, backoff(attempt)); err != nil {
				return nil, fmt.Errorf("context cancelled during retry backoff: %w", err)
			}
		}
	}

	// Retries exhausted: one final request so the caller gets a readable
	// response with the terminal status code.
	if err := rewindBody(seeker, maxRetries); err != nil {
		return nil, fmt.Errorf("rewinding request body: %w", err)
	}

	req, err := c.buildRequest(ctx, method, path, body, headers)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed after retries: %w", err)
	}
	return resp, nil
}

func (c *Client) buildRequest(ctx context.Context, method, path string, body io.Reader, headers map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s %s: %w", method, path, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// rewindBody resets a seekable body for retry attempts. No-op on the first
// attempt or when seeker is nil.
func rewindBody(seeker io.Seeker, attempt int) error {
	if seeker == nil || attempt == 0 {
		return nil
	}
	_, err := seeker.Seek(0, io.SeekStart)
	return err
}

// isRetryable returns true for status codes that warrant a retry.
func isRetryable(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

// backoff returns the exponential backoff duration for an attempt.
func backoff(attempt int) time.Duration {
	ms := float64(baseBackoffMs) * math.Pow(2, float64(attempt))
	if ms > maxBackoffMs {
		ms = maxBackoffMs
	}
	return time.Duration(ms) * time.Millisecond
}

// sleepWithContext waits for d or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NormalizeBaseURL strips a trailing slash and a sole top-level "/api" path
// so client paths (which all start with /api/) don't double up.
func NormalizeBaseURL(baseURL string) string {
	if baseURL == "" {
		return ""
	}
	baseURL = strings.TrimRight(baseURL, "/")

	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	if u.Path == "/api" {
		u.Path = ""
		return strings.TrimRight(u.String(), "/")
	}
	return baseURL
}
