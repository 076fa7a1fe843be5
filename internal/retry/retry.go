// Package retry provides a bounded retry executor with exponential backoff
// and full jitter. Every outbound network call in this service goes through
// Do; the caller supplies a classifier that decides which failures are worth
// another attempt.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy bounds a retryable call.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff: attempt k sleeps up to
	// min(MaxDelay, BaseDelay * 2^(k-1)) before attempt k+1.
	BaseDelay time.Duration
	// MaxDelay caps the computed delay and any provider-suggested delay.
	MaxDelay time.Duration
}

// Classifier reports whether a failure should be retried. A nil classifier
// retries everything until attempts run out.
type Classifier func(error) bool

// DelayHinter is implemented by errors that carry a provider-suggested
// backoff (e.g. a 429 Retry-After). The hint replaces the computed delay for
// the attempt it accompanies, still bounded by Policy.MaxDelay.
type DelayHinter interface {
	RetryAfterHint() time.Duration
}

// jitterFrac returns the jitter multiplier in [0,1]. Overridable in tests to
// pin the sleep to its upper bound.
var jitterFrac = rand.Float64

// Do runs op until it succeeds, the classifier rejects the failure, the
// policy is exhausted, or ctx is canceled. Attempts are strictly sequential.
// On exhaustion or a non-retryable failure the last error is returned
// unchanged so callers can inspect its category themselves.
func Do[T any](ctx context.Context, p Policy, retryable Classifier, op func(context.Context) (T, error)) (T, error) {
	var zero T

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if attempt >= attempts {
			break
		}
		if retryable != nil && !retryable(err) {
			break
		}

		delay := backoffDelay(p, attempt)
		if hinter, ok := lastErr.(DelayHinter); ok {
			if hint := hinter.RetryAfterHint(); hint > 0 {
				delay = hint
				if p.MaxDelay > 0 && delay > p.MaxDelay {
					delay = p.MaxDelay
				}
			}
		}

		if err := sleep(ctx, jitter(delay)); err != nil {
			return zero, lastErr
		}
	}
	return zero, lastErr
}

// backoffDelay computes the pre-jitter delay after the given 1-indexed
// attempt: min(cap, base * 2^(attempt-1)).
func backoffDelay(p Policy, attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// jitter applies full jitter: uniform in [0, d].
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(jitterFrac() * float64(d))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
