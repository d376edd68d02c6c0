package statesync

import (
	"math/rand"
	"time"
)

// RetryPolicy computes the delay before re-enqueueing a failed operation.
// With ExponentialBackoff the delay doubles per attempt, capped at
// MaxDelay; jitter spreads retries of operations that failed together so
// they do not hammer the backend in lockstep.
type RetryPolicy struct {
	// BaseDelay is the delay for attempt 0.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay before jitter is applied.
	MaxDelay time.Duration

	// ExponentialBackoff doubles the delay per attempt when set;
	// otherwise every attempt waits BaseDelay.
	ExponentialBackoff bool

	// Jitter adds a uniformly random offset in
	// [-delay*JitterFactor/2, +delay*JitterFactor/2].
	Jitter bool

	// JitterFactor controls the jitter window width. Zero falls back to
	// DefaultJitterFactor.
	JitterFactor float64
}

// DefaultRetryPolicy mirrors the per-data-type retry defaults.
var DefaultRetryPolicy = RetryPolicy{
	BaseDelay:          time.Second,
	MaxDelay:           30 * time.Second,
	ExponentialBackoff: true,
	Jitter:             true,
	JitterFactor:       DefaultJitterFactor,
}

// Delay returns the backoff delay for the given zero-based attempt.
// The result is never negative.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := p.BaseDelay
	if p.ExponentialBackoff {
		for i := 0; i < attempt; i++ {
			delay *= 2
			if p.MaxDelay > 0 && delay >= p.MaxDelay {
				delay = p.MaxDelay
				break
			}
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if p.Jitter {
		factor := p.JitterFactor
		if factor <= 0 {
			factor = DefaultJitterFactor
		}
		window := float64(delay) * factor
		offset := (rand.Float64() - 0.5) * window
		delay += time.Duration(offset)
	}

	if delay < 0 {
		delay = 0
	}
	return delay
}
