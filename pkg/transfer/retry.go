package transfer

import (
	"context"
	"time"
)

// Backoff defaults. The delay for attempt n is
// min(InitialDelay * 2^n, MaxDelay); an operation is tried at most
// MaxRetries+1 times.
const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = 3 * time.Second
	DefaultMaxDelay     = 30 * time.Second
)

// BackoffPolicy bounds how many times a failing transfer is retried and
// how long to wait between attempts.
type BackoffPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultBackoff returns the platform's standard retry policy.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
	}
}

// Delay returns the capped exponential delay preceding re-attempt number
// attempt (zero-based: Delay(0) precedes the first retry).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	d := p.InitialDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// RetryWithBackoff runs op up to p.MaxRetries+1 times, sleeping the
// policy's capped exponential delay between attempts. onRetry, if
// non-nil, is invoked before each re-attempt with the upcoming attempt
// number (1-based) and the error that caused it. The last error is
// returned once attempts are exhausted; context cancellation aborts the
// wait immediately.
func RetryWithBackoff(ctx context.Context, p BackoffPolicy, op func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			if onRetry != nil {
				onRetry(attempt, lastErr)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Delay(attempt - 1)):
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}
