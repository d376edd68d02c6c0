package statesync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayExponentialGrowth(t *testing.T) {
	p := RetryPolicy{
		BaseDelay:          time.Second,
		MaxDelay:           30 * time.Second,
		ExponentialBackoff: true,
	}

	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 8*time.Second, p.Delay(3))
}

func TestDelayCappedAtMax(t *testing.T) {
	p := RetryPolicy{
		BaseDelay:          time.Second,
		MaxDelay:           5 * time.Second,
		ExponentialBackoff: true,
	}

	assert.Equal(t, 5*time.Second, p.Delay(10))
	assert.Equal(t, 5*time.Second, p.Delay(100), "large attempt counts must not overflow")
}

func TestDelayWithoutBackoffIsConstant(t *testing.T) {
	p := RetryPolicy{BaseDelay: 500 * time.Millisecond}

	assert.Equal(t, 500*time.Millisecond, p.Delay(0))
	assert.Equal(t, 500*time.Millisecond, p.Delay(5))
}

func TestDelayJitterStaysInWindow(t *testing.T) {
	p := RetryPolicy{
		BaseDelay:          10 * time.Second,
		MaxDelay:           30 * time.Second,
		ExponentialBackoff: true,
		Jitter:             true,
		JitterFactor:       0.1,
	}

	// Attempt 0 is 10s before jitter; with factor 0.1 the result must stay
	// within +-5% of that.
	lo := time.Duration(float64(10*time.Second) * 0.95)
	hi := time.Duration(float64(10*time.Second) * 1.05)
	for i := 0; i < 50; i++ {
		d := p.Delay(0)
		assert.GreaterOrEqual(t, d, lo)
		assert.LessOrEqual(t, d, hi)
	}
}

func TestDelayNegativeAttempt(t *testing.T) {
	p := DefaultRetryPolicy
	assert.GreaterOrEqual(t, p.Delay(-3), time.Duration(0))
}
