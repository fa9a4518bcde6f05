package fetch

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/rpattn/rollcall/internal/domain"
)

// RetryPolicy decides whether a failed attempt is retried and how long to wait.
// attempt is 1-based and counts the attempt that just failed.
type RetryPolicy interface {
	Next(attempt int, err error) (time.Duration, bool)
}

// NoRetry gives up after the first failure.
type NoRetry struct{}

func (NoRetry) Next(int, error) (time.Duration, bool) {
	return 0, false
}

// ExponentialBackoff retries transient failures with a growing, jittered delay.
type ExponentialBackoff struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	// Jitter spreads each delay by up to +/- Jitter*delay.
	Jitter float64
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() *ExponentialBackoff {
	return &ExponentialBackoff{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Factor:       2.0,
		Jitter:       0.1,
	}
}

func (p *ExponentialBackoff) Next(attempt int, err error) (time.Duration, bool) {
	if attempt >= p.MaxAttempts || !Retryable(err) {
		return 0, false
	}

	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(factor, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		delay += delay * p.Jitter * (rand.Float64()*2 - 1)
	}

	return time.Duration(delay), true
}

// Retryable reports whether err is a transient fetch failure. A missing
// resource is final.
func Retryable(err error) bool {
	return errors.Is(err, domain.ErrUnavailable)
}
