package embedder

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fastRetry keeps backoff delays negligible in tests.
func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    4 * time.Millisecond,
		Multiplier:  2.0,
		Jitter:      0.10,
	}
}

func TestRetrySuccessFirstTry(t *testing.T) {
	calls := 0
	result, err := retryWithBackoff(context.Background(), fastRetry(3), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("retryWithBackoff() error = %v", err)
	}
	if result != "ok" {
		t.Errorf("Result = %q, want %q", result, "ok")
	}
	if calls != 1 {
		t.Errorf("Calls = %d, want 1", calls)
	}
}

func TestRetryTransientThenSuccess(t *testing.T) {
	calls := 0
	result, err := retryWithBackoff(context.Background(), fastRetry(3), func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, &ProviderError{Provider: ProviderOpenAI, StatusCode: 500, Err: errors.New("server error")}
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("retryWithBackoff() error = %v", err)
	}
	if result != 42 {
		t.Errorf("Result = %d, want 42", result)
	}
	if calls != 3 {
		t.Errorf("Calls = %d, want 3", calls)
	}
}

func TestRetryPermanentStopsImmediately(t *testing.T) {
	calls := 0
	_, err := retryWithBackoff(context.Background(), fastRetry(5), func(ctx context.Context) (string, error) {
		calls++
		return "", &ProviderError{Provider: ProviderOpenAI, StatusCode: 401, Permanent: true, Err: errors.New("bad key")}
	})
	if err == nil {
		t.Fatal("Expected error")
	}
	if calls != 1 {
		t.Errorf("Calls = %d, want 1 for permanent error", calls)
	}
	var perr *ProviderError
	if !errors.As(err, &perr) || !perr.Permanent {
		t.Errorf("Error = %v, want permanent ProviderError", err)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := retryWithBackoff(context.Background(), fastRetry(4), func(ctx context.Context) (string, error) {
		calls++
		return "", fmt.Errorf("error %d", calls)
	})
	if err == nil {
		t.Fatal("Expected error after exhausting attempts")
	}
	if calls != 4 {
		t.Errorf("Calls = %d, want 4", calls)
	}
	if err.Error() != "error 4" {
		t.Errorf("Error = %q, want the last attempt's error", err)
	}
}

func TestRetryZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	cfg := RetryConfig{}
	_, err := retryWithBackoff(context.Background(), cfg, func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("fail")
	})
	if err == nil {
		t.Fatal("Expected error")
	}
	if calls != 1 {
		t.Errorf("Calls = %d, want 1", calls)
	}
}

func TestRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	_, err := retryWithBackoff(ctx, fastRetry(5), func(_ context.Context) (string, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return "", errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Error = %v, want context.Canceled", err)
	}
	if calls != 2 {
		t.Errorf("Calls = %d, want 2", calls)
	}
}

func TestRetryAttemptTimeout(t *testing.T) {
	cfg := fastRetry(3)
	cfg.AttemptTimeout = 10 * time.Millisecond

	calls := 0
	_, err := retryWithBackoff(context.Background(), cfg, func(ctx context.Context) (string, error) {
		calls++
		<-ctx.Done()
		return "", ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Error = %v, want deadline exceeded", err)
	}
	// Per-attempt deadlines are retryable; the parent context is intact.
	if calls != 3 {
		t.Errorf("Calls = %d, want 3", calls)
	}
}

func TestRetryNoAttemptTimeoutByDefault(t *testing.T) {
	_, err := retryWithBackoff(context.Background(), fastRetry(1), func(ctx context.Context) (string, error) {
		if _, ok := ctx.Deadline(); ok {
			return "", errors.New("unexpected deadline")
		}
		return "ok", nil
	})
	if err != nil {
		t.Errorf("retryWithBackoff() error = %v", err)
	}
}

func TestRetryBackoffCapped(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		Multiplier:  1000,
	}

	start := time.Now()
	_, _ = retryWithBackoff(context.Background(), cfg, func(ctx context.Context) (string, error) {
		return "", errors.New("fail")
	})
	elapsed := time.Since(start)

	// Uncapped, the second delay alone would be a full second.
	if elapsed > 500*time.Millisecond {
		t.Errorf("Elapsed %v suggests backoff was not capped", elapsed)
	}
}

func TestJitteredDelay(t *testing.T) {
	base := 100 * time.Millisecond
	lo := 90 * time.Millisecond
	hi := 110 * time.Millisecond

	for i := 0; i < 100; i++ {
		d := jitteredDelay(base, 0.10)
		if d < lo || d > hi {
			t.Fatalf("jitteredDelay() = %v, want within [%v, %v]", d, lo, hi)
		}
	}

	if d := jitteredDelay(base, 0); d != base {
		t.Errorf("jitteredDelay() with zero fraction = %v, want %v", d, base)
	}
	if d := jitteredDelay(0, 0.10); d != 0 {
		t.Errorf("jitteredDelay() with zero delay = %v, want 0", d)
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "permanent provider error",
			err:  &ProviderError{Provider: ProviderOpenAI, StatusCode: 401, Permanent: true, Err: errors.New("x")},
			want: true,
		},
		{
			name: "retryable provider error",
			err:  &ProviderError{Provider: ProviderOpenAI, StatusCode: 429, Err: errors.New("x")},
			want: false,
		},
		{
			name: "wrapped permanent provider error",
			err:  fmt.Errorf("embed: %w", &ProviderError{Provider: ProviderGemini, Permanent: true, Err: errors.New("x")}),
			want: true,
		},
		{
			name: "empty text",
			err:  ErrEmptyText,
			want: true,
		},
		{
			name: "wrapped batch too large",
			err:  fmt.Errorf("%w: 150 texts", ErrBatchTooLarge),
			want: true,
		},
		{
			name: "invalid model",
			err:  ErrInvalidModel,
			want: true,
		},
		{
			name: "missing api key",
			err:  ErrAPIKeyMissing,
			want: true,
		},
		{
			name: "plain error",
			err:  errors.New("connection reset"),
			want: false,
		},
		{
			name: "deadline exceeded",
			err:  context.DeadlineExceeded,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isPermanent(tt.err); got != tt.want {
				t.Errorf("isPermanent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPermanentStatus(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{400, true},
		{401, true},
		{403, true},
		{404, true},
		{408, false},
		{429, false},
		{500, false},
		{502, false},
		{503, false},
		{200, false},
	}

	for _, tt := range tests {
		if got := permanentStatus(tt.code); got != tt.want {
			t.Errorf("permanentStatus(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
