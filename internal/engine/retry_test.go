package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:           3,
		BaseDelay:             time.Millisecond,
		MaxDelay:              5 * time.Millisecond,
		Multiplier:            2.0,
		JitterPercent:         0,
		MaybeClassMaxAttempts: 2,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	result, err := RetryLLMCall(context.Background(), fastRetryConfig(), nil,
		func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("503 service unavailable")
			}
			return "ok", nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %q, want ok", result)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	_, err := RetryLLMCall(context.Background(), fastRetryConfig(), nil,
		func(ctx context.Context) (string, error) {
			calls++
			return "", errors.New("401 unauthorized")
		})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 for non-retryable error", calls)
	}
	if IsRetryExhausted(err) {
		t.Error("non-retryable error should not be wrapped as exhausted")
	}
}

func TestRetryExhaustsRetryable(t *testing.T) {
	calls := 0
	_, err := RetryLLMCall(context.Background(), fastRetryConfig(), nil,
		func(ctx context.Context) (string, error) {
			calls++
			return "", errors.New("503 service unavailable")
		})
	if !IsRetryExhausted(err) {
		t.Fatalf("expected RetryExhaustedError, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want MaxAttempts", calls)
	}
}

func TestRetryMaybeClassCapped(t *testing.T) {
	calls := 0
	_, err := RetryLLMCall(context.Background(), fastRetryConfig(), nil,
		func(ctx context.Context) (string, error) {
			calls++
			return "", errors.New("maximum context length exceeded")
		})
	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected RetryExhaustedError, got %v", err)
	}
	if !exhausted.IsGuarded {
		t.Error("maybe-class exhaustion should be marked guarded")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want MaybeClassMaxAttempts", calls)
	}
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := fastRetryConfig()
	cfg.BaseDelay = time.Second

	_, err := RetryLLMCall(ctx, cfg, nil,
		func(ctx context.Context) (string, error) {
			return "", errors.New("503 service unavailable")
		})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRetryToolCallNonRetryableTool(t *testing.T) {
	calls := 0
	_, err := RetryToolCall(context.Background(), fastRetryConfig(), false, nil,
		func(ctx context.Context) (string, error) {
			calls++
			return "", errors.New("timeout")
		})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 when tool is not retryable", calls)
	}
}

func TestCalculateDelayGrowsAndCaps(t *testing.T) {
	cfg := RetryConfig{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   400 * time.Millisecond,
		Multiplier: 2.0,
	}
	err := errors.New("503")

	d1 := calculateDelay(cfg, 1, err)
	d2 := calculateDelay(cfg, 2, err)
	d5 := calculateDelay(cfg, 5, err)

	if d1 != 100*time.Millisecond {
		t.Errorf("attempt 1 delay = %s, want 100ms", d1)
	}
	if d2 != 200*time.Millisecond {
		t.Errorf("attempt 2 delay = %s, want 200ms", d2)
	}
	if d5 != cfg.MaxDelay {
		t.Errorf("attempt 5 delay = %s, want cap %s", d5, cfg.MaxDelay)
	}
}

func TestCalculateDelayHonorsRetryAfter(t *testing.T) {
	cfg := DefaultRetryConfig()
	err := WrapLLMError(errors.New("429"), 429, "2")
	if d := calculateDelay(cfg, 1, err); d != 2*time.Second {
		t.Errorf("delay = %s, want Retry-After 2s", d)
	}

	// Retry-After above the cap is clamped.
	huge := WrapLLMError(errors.New("429"), 429, "3600")
	if d := calculateDelay(cfg, 1, huge); d != cfg.MaxDelay {
		t.Errorf("delay = %s, want cap %s", d, cfg.MaxDelay)
	}
}
