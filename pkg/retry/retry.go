// Package retry implements bounded exponential backoff with jitter.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/ajitpratap0/edgesql/pkg/config"
	"github.com/ajitpratap0/edgesql/pkg/errors"
)

// Policy defines retry behavior
type Policy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64

	// OnRetry is called before each wait with the failed attempt number (1-based).
	OnRetry func(attempt int, delay time.Duration, err error)
}

// FromConfig builds a policy from the reliability section.
func FromConfig(rc config.ReliabilityConfig) *Policy {
	return &Policy{
		MaxAttempts:     rc.RetryAttempts,
		InitialDelay:    rc.RetryDelay,
		MaxDelay:        rc.MaxRetryDelay,
		Multiplier:      rc.RetryMultiplier,
		RandomizeFactor: 0.25,
	}
}

// None returns a policy that doesn't retry
func None() *Policy {
	return &Policy{MaxAttempts: 1}
}

// Do runs fn until it succeeds, shouldRetry rejects the error, or attempts run
// out. It returns the number of attempts made. Errors rejected by shouldRetry
// are returned unchanged.
func (p *Policy) Do(ctx context.Context, fn func(attempt int) error, shouldRetry func(error) bool) (int, error) {
	if shouldRetry == nil {
		shouldRetry = errors.IsRetryable
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return attempt, err
		}

		if attempt == maxAttempts {
			break
		}

		delay := p.calculateDelay(attempt - 1)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return maxAttempts, fmt.Errorf("all %d attempts failed: %w", maxAttempts, lastErr)
}

// calculateDelay calculates the delay for a given zero-based retry
func (p *Policy) calculateDelay(retry int) time.Duration {
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(multiplier, float64(retry))

	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.RandomizeFactor > 0 {
		delta := delay * p.RandomizeFactor
		minDelay := delay - delta
		maxDelay := delay + delta
		delay = minDelay + (rand.Float64() * (maxDelay - minDelay)) //nolint:gosec // jitter only
	}

	return time.Duration(delay)
}
