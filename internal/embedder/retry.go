package embedder

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"
)

// RetryConfig configures exponential backoff retry behavior
type RetryConfig struct {
	MaxAttempts    int           // Total attempts including the first
	BaseDelay      time.Duration // Initial delay between attempts
	MaxDelay       time.Duration // Maximum delay between attempts
	Multiplier     float64       // Exponential backoff multiplier
	Jitter         float64       // Fractional random spread applied to each delay
	AttemptTimeout time.Duration // Deadline for a single attempt
}

// DefaultRetryConfig returns the standard retry policy: three attempts,
// backoff doubling from one second capped at ten, 10% jitter, and a 30
// second deadline per attempt.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.10,
		AttemptTimeout: 30 * time.Second,
	}
}

// retryWithBackoff executes fn with exponential backoff between
// attempts. Permanent errors and context cancellation stop the loop
// immediately; otherwise the last error is returned once attempts are
// exhausted.
func retryWithBackoff[T any](ctx context.Context, config RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var lastErr error
	var zero T

	attempts := config.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := config.BaseDelay

	for attempt := 0; attempt < attempts; attempt++ {
		attemptCtx, cancel := attemptContext(ctx, config.AttemptTimeout)
		result, err := fn(attemptCtx)
		cancel()
		if err == nil {
			return result, nil
		}

		lastErr = err

		// Retrying a permanent failure cannot change the outcome.
		if isPermanent(err) {
			return zero, err
		}

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(jitteredDelay(backoff, config.Jitter)):
				backoff = time.Duration(float64(backoff) * config.Multiplier)
				if config.MaxDelay > 0 && backoff > config.MaxDelay {
					backoff = config.MaxDelay
				}
			}
		}
	}

	return zero, lastErr
}

func attemptContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// jitteredDelay spreads a delay by up to ±fraction so synchronized
// clients do not retry in lockstep.
func jitteredDelay(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || d <= 0 {
		return d
	}
	spread := (rand.Float64()*2 - 1) * fraction
	return time.Duration(float64(d) * (1 + spread))
}

// isPermanent reports whether retrying cannot change the outcome.
func isPermanent(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Permanent
	}
	return errors.Is(err, ErrEmptyText) ||
		errors.Is(err, ErrBatchTooLarge) ||
		errors.Is(err, ErrInvalidModel) ||
		errors.Is(err, ErrAPIKeyMissing)
}

// permanentStatus reports whether an HTTP status will not heal on
// retry. Rate limits and server errors are worth another attempt;
// credential and request errors are not.
func permanentStatus(code int) bool {
	switch code {
	case http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound:
		return true
	}
	return false
}
