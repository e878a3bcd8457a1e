package engine

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryConfig controls the exponential backoff policy for transient
// failures inside a single loop step. This is deliberately shorter-lived
// than the recovery layer's backoff: retries here absorb network hiccups,
// while recovery reacts to failures that survive them.
type RetryConfig struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	JitterPercent float64 // 0.2 = +/- 20%

	// MaybeClassMaxAttempts caps retries for "maybe" class errors.
	MaybeClassMaxAttempts int
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:           4,
		BaseDelay:             500 * time.Millisecond,
		MaxDelay:              15 * time.Second,
		Multiplier:            2.0,
		JitterPercent:         0.2,
		MaybeClassMaxAttempts: 2,
	}
}

// RetryWithPolicy executes fn with retries according to the config and
// error classification. classify maps an error to a RetryClass; onAttempt
// is invoked before each retry sleep (nil is fine).
func RetryWithPolicy[T any](
	ctx context.Context,
	cfg RetryConfig,
	classify func(error) RetryClass,
	onAttempt func(attempt int, delay time.Duration, err error),
	fn func(ctx context.Context) (T, error),
) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		class := classify(err)
		switch class {
		case RetryClassNonRetryable:
			return zero, err
		case RetryClassMaybe:
			if attempt >= cfg.MaybeClassMaxAttempts {
				return zero, NewRetryExhaustedError(err, attempt, cfg.MaybeClassMaxAttempts, true)
			}
		case RetryClassRetryable:
			if attempt >= cfg.MaxAttempts {
				return zero, NewRetryExhaustedError(err, attempt, cfg.MaxAttempts, false)
			}
		}

		delay := calculateDelay(cfg, attempt, err)
		if onAttempt != nil {
			onAttempt(attempt, delay, err)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, NewRetryExhaustedError(lastErr, cfg.MaxAttempts, cfg.MaxAttempts, false)
}

// calculateDelay computes the backoff delay for an attempt, honoring a
// server-provided Retry-After when present.
func calculateDelay(cfg RetryConfig, attempt int, err error) time.Duration {
	if retryAfter := ExtractRetryAfter(err); retryAfter > 0 {
		if retryAfter > cfg.MaxDelay {
			return cfg.MaxDelay
		}
		return retryAfter
	}

	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	if cfg.JitterPercent > 0 {
		jitter := delay * cfg.JitterPercent * (2*rand.Float64() - 1)
		delay += jitter
		if delay < 0 {
			delay = 0
		}
	}

	return time.Duration(delay)
}

// RetryLLMCall retries an inference call with the LLM error classifier.
func RetryLLMCall[T any](
	ctx context.Context,
	cfg RetryConfig,
	onAttempt func(attempt int, delay time.Duration, err error),
	fn func(ctx context.Context) (T, error),
) (T, error) {
	return RetryWithPolicy(ctx, cfg, ClassifyLLMError, onAttempt, fn)
}

// RetryToolCall retries a tool execution; only tools marked retryable get
// a second chance.
func RetryToolCall[T any](
	ctx context.Context,
	cfg RetryConfig,
	toolRetryable bool,
	onAttempt func(attempt int, delay time.Duration, err error),
	fn func(ctx context.Context) (T, error),
) (T, error) {
	classify := func(err error) RetryClass {
		return ClassifyToolError(err, toolRetryable)
	}
	return RetryWithPolicy(ctx, cfg, classify, onAttempt, fn)
}
