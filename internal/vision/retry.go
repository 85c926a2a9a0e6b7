package vision

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/bosocmputer/invoice-vision-pipeline/internal/apperr"
	"github.com/bosocmputer/invoice-vision-pipeline/internal/telemetry"
)

// RetryConfig bounds the exponential backoff used around each model
// call.
type RetryConfig struct {
	MaxAttempts int
	MinWait     time.Duration
	MaxWait     time.Duration
}

// backoff returns the delay before the given (1-based) retry attempt,
// doubling MinWait each time and capping at MaxWait.
func backoff(cfg RetryConfig, attempt int) time.Duration {
	d := float64(cfg.MinWait) * math.Pow(2, float64(attempt-1))
	if d > float64(cfg.MaxWait) {
		d = float64(cfg.MaxWait)
	}
	return time.Duration(d)
}

// withRetry is an explicit result-with-error-variant retry loop, not
// exception-driven control flow. It retries only while the classified
// error reports Retryable(), observing ctx cancellation between
// attempts.
func withRetry[T any](ctx context.Context, cfg RetryConfig, log *zap.Logger, metrics *telemetry.Metrics, call func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr *apperr.Error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := call(ctx)
		if err == nil {
			return result, nil
		}

		lastErr = classify(err)
		log.Warn("vision call failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxAttempts),
			zap.String("code", string(lastErr.Code)),
			zap.Error(err),
		)

		if !lastErr.Retryable() {
			return zero, lastErr
		}
		if attempt >= cfg.MaxAttempts {
			break
		}
		if metrics != nil {
			metrics.VisionRetryTotal.WithLabelValues(string(lastErr.Code)).Inc()
		}

		delay := backoff(cfg, attempt)
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("context canceled during retry wait: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return zero, fmt.Errorf("vision call failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
