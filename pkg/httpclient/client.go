package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultUserAgent is sent when the caller sets none
const DefaultUserAgent = "movies-sync-service/1.0"

// StatusError is returned for a non-2xx response that was not retried
// successfully
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Status)
}

// IsStatus reports whether err is a StatusError with the given code
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Options configures a Client. Zero fields fall back to defaults.
type Options struct {
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	// Proxies are base URLs ("https://proxy.example.com") that replace the
	// scheme and host of outgoing requests. One is picked per attempt.
	Proxies   []string
	UserAgent string
}

// Client is an HTTP client with retry and proxy support
type Client struct {
	httpClient *http.Client
	proxies    []string
	retries    int
	retryDelay time.Duration
	userAgent  string
}

// NewClient creates a new HTTP client
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	proxies := make([]string, 0, len(opts.Proxies))
	for _, p := range opts.Proxies {
		if p = strings.TrimRight(strings.TrimSpace(p), "/"); p != "" {
			proxies = append(proxies, p)
		}
	}

	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		proxies:    proxies,
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		userAgent:  opts.UserAgent,
	}
}

// proxied rewrites targetURL onto a random proxy base
func (c *Client) proxied(targetURL string) (string, bool) {
	if len(c.proxies) == 0 {
		return targetURL, false
	}
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return targetURL, false
	}
	proxy := c.proxies[rand.Intn(len(c.proxies))]
	return proxy + parsed.RequestURI(), true
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// Get fetches targetURL and returns the response body. Transport errors,
// 429 and 5xx responses are retried with exponential backoff; any other
// non-2xx status fails at once with a *StatusError.
func (c *Client) Get(ctx context.Context, targetURL string, header http.Header) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retries; attempt++ {
		if attempt > 1 {
			wait := c.retryDelay << (attempt - 2)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, fmt.Errorf("request cancelled after %d attempts: %w", attempt-1, ctx.Err())
			}
		}

		finalURL, viaProxy := c.proxied(targetURL)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		req.Header.Set("User-Agent", c.userAgent)
		if req.Header.Get("Accept") == "" {
			req.Header.Set("Accept", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			log.Warn().
				Int("attempt", attempt).
				Err(err).
				Bool("proxy", viaProxy).
				Str("url", targetURL).
				Msg("Request failed")
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			serr := &StatusError{Code: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
			if !retryable(resp.StatusCode) {
				return nil, serr
			}
			lastErr = serr
			log.Warn().
				Int("attempt", attempt).
				Int("status", resp.StatusCode).
				Str("url", targetURL).
				Msg("Request rate limited or upstream error")
			continue
		}
		if err != nil {
			lastErr = fmt.Errorf("read body: %w", err)
			continue
		}
		return body, nil
	}

	return nil, fmt.Errorf("all retries failed: %w", lastErr)
}

// HasProxy returns true if proxies are configured
func (c *Client) HasProxy() bool {
	return len(c.proxies) > 0
}
