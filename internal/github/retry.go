package github

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig returns sensible defaults for retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     5,
		InitialBackoff:  1 * time.Second,
		MaxBackoff:      30 * time.Second,
		BackoffMultiple: 2.0,
	}
}

// Retryer handles retry logic with exponential backoff
type Retryer struct {
	config      RetryConfig
	rateLimiter *RateLimiter
	logger      *slog.Logger
}

// NewRetryer creates a new retryer. A zero config falls back to DefaultRetryConfig.
func NewRetryer(config RetryConfig, rateLimiter *RateLimiter, logger *slog.Logger) *Retryer {
	if config.MaxAttempts < 1 {
		config = DefaultRetryConfig()
	}
	if config.BackoffMultiple < 1 {
		config.BackoffMultiple = 2.0
	}
	return &Retryer{
		config:      config,
		rateLimiter: rateLimiter,
		logger:      logger,
	}
}

// RetryFunc is a function that can be retried
type RetryFunc func(ctx context.Context) error

// Do executes fn, retrying retryable errors with exponential backoff. Errors
// that are not retryable are returned unchanged on the first attempt.
func (r *Retryer) Do(ctx context.Context, operation string, fn RetryFunc) error {
	var lastErr error
	backoff := r.config.InitialBackoff

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := r.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}

		err := fn(ctx)
		if err == nil {
			r.rateLimiter.ResetBackoff()
			if attempt > 1 {
				r.logger.Info("Operation succeeded after retry",
					"operation", operation,
					"attempt", attempt)
			}
			return nil
		}
		lastErr = err

		if !IsRetryableError(err) {
			return err
		}
		if attempt == r.config.MaxAttempts {
			break
		}

		if IsRateLimitError(err) {
			r.logger.Warn("Rate limit error, waiting before retry",
				"operation", operation,
				"attempt", attempt)
			if err := r.rateLimiter.HandleRateLimitError(ctx); err != nil {
				return fmt.Errorf("rate limit handling failed: %w", err)
			}
			continue
		}

		r.logger.Info("Retryable error, backing off",
			"operation", operation,
			"attempt", attempt,
			"backoff", backoff,
			"error", err)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-timer.C:
			backoff = min(time.Duration(float64(backoff)*r.config.BackoffMultiple), r.config.MaxBackoff)
		}
	}

	return fmt.Errorf("operation %s failed after %d attempts: %w",
		operation, r.config.MaxAttempts, lastErr)
}

// DoWithRetry runs fn through the retryer and returns its value.
func DoWithRetry[T any](
	ctx context.Context,
	retryer *Retryer,
	operation string,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	var result T
	err := retryer.Do(ctx, operation, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}
