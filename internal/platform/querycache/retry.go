package querycache

import (
	"context"
	"errors"
	"time"
)

const (
	baseDelay = time.Second
	maxDelay  = 30 * time.Second
)

// StatusCoder is implemented by errors that carry an HTTP status, such as
// the backend client's APIError.
type StatusCoder interface {
	HTTPStatus() int
}

// RetryPolicy bounds how often and how patiently a failed request is repeated.
type RetryPolicy struct {
	MaxRetries int
	Delay      func(attempt int) time.Duration
}

// QueryPolicy: 3 retries with exponential backoff, for reads.
var QueryPolicy = RetryPolicy{MaxRetries: 3, Delay: ExponentialDelay}

// MutationPolicy: a single retry after a fixed second, for side-effecting requests.
var MutationPolicy = RetryPolicy{MaxRetries: 1, Delay: func(int) time.Duration { return baseDelay }}

// ExponentialDelay returns min(1000 * 2^attempt, 30000) milliseconds.
func ExponentialDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxDelay
	}
	d := baseDelay << uint(attempt)
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// IsRetryable reports whether err is worth repeating. Client errors (4xx) are
// permanent until the input changes; cancellation is the caller giving up.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		status := sc.HTTPStatus()
		if status >= 400 && status < 500 {
			return false
		}
	}
	return true
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func realSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs fn until it succeeds, returns a non-retryable error or the policy
// is exhausted. attempts is the number of times fn ran.
func Do[T any](ctx context.Context, policy RetryPolicy, sleep Sleeper, fn func(context.Context) (T, error)) (result T, attempts int, err error) {
	if sleep == nil {
		sleep = realSleep
	}
	delay := policy.Delay
	if delay == nil {
		delay = ExponentialDelay
	}
	for attempt := 0; ; attempt++ {
		attempts++
		result, err = fn(ctx)
		if err == nil {
			return result, attempts, nil
		}
		if attempt >= policy.MaxRetries || !IsRetryable(err) {
			return result, attempts, err
		}
		if serr := sleep(ctx, delay(attempt)); serr != nil {
			return result, attempts, err
		}
	}
}
