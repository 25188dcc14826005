package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ErrRetryable marks transient collaborator failures (5xx, connection drops).
// Wrap with fmt.Errorf("...: %w", ErrRetryable) to opt into retries.
var ErrRetryable = errors.New("retryable external error")

// ErrRateLimited marks 429-style responses that deserve a longer backoff.
var ErrRateLimited = errors.New("rate limited by platform")

// RetryPolicy bounds how often a stage retries a collaborator call.
type RetryPolicy struct {
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	RateLimitWait  time.Duration
}

// DefaultRetryPolicy matches the collector client defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		BackoffInitial: 2 * time.Second,
		BackoffMax:     time.Minute,
		RateLimitWait:  30 * time.Second,
	}
}

// Do runs fn, retrying transient failures with jittered exponential backoff
// and waiting longer on rate limits. Non-retryable errors and exhausted
// attempts surface to the caller as the stage's permanent failure.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		var wait time.Duration
		switch {
		case errors.Is(err, ErrRateLimited):
			wait = p.RateLimitWait * time.Duration(attempt)
		case errors.Is(err, ErrRetryable):
			wait = backoffWithJitter(p.BackoffInitial, p.BackoffMax, attempt)
		default:
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = time.Minute
	}
	if attempt <= 0 {
		return base
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	wait := time.Duration(exp)
	if wait > max {
		wait = max
	}
	jitter := time.Duration(rand.Int63n(int64(wait/2) + 1))
	return wait/2 + jitter
}
