package reliability

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

// Backoff tracks consecutive failures. A success resets it.
type Backoff struct {
	Base    time.Duration
	Cap     time.Duration
	Clock   clockwork.Clock
	attempt int
}

// Wait sleeps for the next delay or until ctx is done.
func (b *Backoff) Wait(ctx context.Context) error {
	clock := b.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	d := ExponentialBackoff(b.attempt, b.Base, b.Cap)
	b.attempt++

	timer := clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}

func (b *Backoff) Reset() { b.attempt = 0 }

func (b *Backoff) Attempt() int { return b.attempt }
