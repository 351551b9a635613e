// Package retry implements exponential backoff with jitter for provider
// transport errors.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/Devliang24/casecraft/internal/ccerrors"
	"go.uber.org/zap"
)

// Policy configures the backoff schedule. Matches spec.md §4.5: start at
// 1s, cap at 30s, multiplier 2.0, ±25% jitter.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
	OnRetry      func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy returns the policy mandated by spec.md §4.5.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retryer retries a function against the same provider while its errors
// are transport-retryable (ccerrors.IsRetryable), observing context
// cancellation between attempts.
type Retryer struct {
	policy *Policy
	logger *zap.Logger
}

// New creates a Retryer. A nil policy falls back to DefaultPolicy; a
// nil logger is a no-op.
func New(policy *Policy, logger *zap.Logger) *Retryer {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 2.0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retryer{policy: policy, logger: logger}
}

// Do runs fn, retrying on a transport-retryable error up to MaxRetries
// times. Fatal errors (ccerrors.ProviderFatalError and anything else not
// recognized as retryable) return immediately.
func (r *Retryer) Do(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.calculateDelay(attempt)
			r.logger.Debug("retrying provider call",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}
			select {
			case <-ctx.Done():
				return &ccerrors.Cancelled{Stage: "retry backoff"}
			case <-time.After(delay):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !ccerrors.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt >= r.policy.MaxRetries {
			break
		}
	}

	return fmt.Errorf("exhausted %d retries: %w", r.policy.MaxRetries, lastErr)
}

func (r *Retryer) calculateDelay(attempt int) time.Duration {
	delay := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}
	if r.policy.Jitter {
		jitter := delay * 0.25
		delay = delay + (rand.Float64()*2-1)*jitter
	}
	if delay < float64(r.policy.InitialDelay) {
		delay = float64(r.policy.InitialDelay)
	}
	return time.Duration(delay)
}
