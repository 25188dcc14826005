package collect

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// Client is the shared HTTP client for collectors: fixed timeout, exponential
// backoff on 5xx/connection errors, longer backoff on 429, bounded retries.
type Client struct {
	http          *http.Client
	maxRetries    int
	backoffBase   time.Duration
	rateLimitBase time.Duration
	userAgent     string
}

// ClientOptions tunes the collector client.
type ClientOptions struct {
	Timeout       time.Duration
	MaxRetries    int
	BackoffBase   time.Duration
	RateLimitBase time.Duration
}

// NewClient applies defaults for unset options.
func NewClient(opts ClientOptions) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	retries := opts.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := opts.BackoffBase
	if backoff == 0 {
		backoff = 2 * time.Second
	}
	rateLimit := opts.RateLimitBase
	if rateLimit == 0 {
		rateLimit = 30 * time.Second
	}
	return &Client{
		http:          &http.Client{Timeout: timeout},
		maxRetries:    retries,
		backoffBase:   backoff,
		rateLimitBase: rateLimit,
		userAgent:     "bountyhunter/1.0",
	}
}

// Get fetches a URL with retries and returns the body. Headers may be nil.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build request %s: %w", url, err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if !c.wait(ctx, c.expBackoff(attempt)) {
				return nil, ctx.Err()
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limited by %s", url)
			if !c.wait(ctx, c.rateLimitBase*time.Duration(attempt)) {
				return nil, ctx.Err()
			}
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error %d from %s", resp.StatusCode, url)
			if !c.wait(ctx, c.expBackoff(attempt)) {
				return nil, ctx.Err()
			}
		case resp.StatusCode >= 400:
			return nil, fmt.Errorf("request %s failed: status %d", url, resp.StatusCode)
		case readErr != nil:
			lastErr = readErr
			if !c.wait(ctx, c.expBackoff(attempt)) {
				return nil, ctx.Err()
			}
		default:
			return body, nil
		}
	}
	return nil, fmt.Errorf("giving up on %s after %d attempts: %w", url, c.maxRetries, lastErr)
}

func (c *Client) expBackoff(attempt int) time.Duration {
	return time.Duration(float64(c.backoffBase) * math.Pow(2, float64(attempt-1)))
}

func (c *Client) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
