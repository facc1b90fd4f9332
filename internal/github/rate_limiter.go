package github

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces outgoing requests with a token bucket and pauses all
// callers once GitHub reports the primary rate limit as exhausted.
// Secondary (abuse) limits are handled by the HTTP transport.
type RateLimiter struct {
	limiter *rate.Limiter
	logger  *slog.Logger

	mu            sync.Mutex
	coreRemaining int
	coreLimit     int
	coreResetTime time.Time

	backoffDuration time.Duration
	maxBackoff      time.Duration
}

// NewRateLimiter creates a limiter allowing requestsPerSecond with a small
// burst. A non-positive rate disables pacing.
func NewRateLimiter(requestsPerSecond float64, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	burst := 1
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = max(1, int(requestsPerSecond))
	}
	return &RateLimiter{
		limiter:         rate.NewLimiter(limit, burst),
		logger:          logger,
		coreRemaining:   5000, // GitHub's default primary limit until the first response says otherwise
		coreLimit:       5000,
		backoffDuration: 1 * time.Second,
		maxBackoff:      5 * time.Minute,
	}
}

// Wait blocks until it's safe to make another API request
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	exhausted := rl.coreRemaining <= 0 && time.Now().Before(rl.coreResetTime)
	resetTime := rl.coreResetTime
	rl.mu.Unlock()

	if exhausted {
		waitDuration := time.Until(resetTime)
		rl.logger.Warn("Rate limit exceeded, waiting for reset",
			"wait_duration", waitDuration,
			"reset_time", resetTime)

		timer := time.NewTimer(waitDuration)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		rl.mu.Lock()
		rl.coreRemaining = rl.coreLimit
		rl.mu.Unlock()
	}

	return rl.limiter.Wait(ctx)
}

// UpdateLimits updates the rate limit information from a GitHub response
func (rl *RateLimiter) UpdateLimits(remaining, limit int, resetTime time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.coreRemaining = remaining
	rl.coreLimit = limit
	rl.coreResetTime = resetTime

	if remaining < 100 {
		rl.logger.Warn("GitHub API rate limit running low",
			"remaining", remaining,
			"limit", limit,
			"reset_time", resetTime)
	}
}

// GetStatus returns the current rate limit status
func (rl *RateLimiter) GetStatus() (remaining, limit int, resetTime time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.coreRemaining, rl.coreLimit, rl.coreResetTime
}

// StartBackoff sleeps for the current backoff and doubles it for next time.
func (rl *RateLimiter) StartBackoff(ctx context.Context) error {
	rl.mu.Lock()
	backoff := min(rl.backoffDuration, rl.maxBackoff)
	rl.backoffDuration = min(rl.backoffDuration*2, rl.maxBackoff)
	rl.mu.Unlock()

	rl.logger.Info("Starting backoff", "duration", backoff)

	timer := time.NewTimer(backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ResetBackoff resets the backoff duration after a successful request
func (rl *RateLimiter) ResetBackoff() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.backoffDuration = 1 * time.Second
}

// HandleRateLimitError waits for the known reset time, or backs off when
// GitHub did not report one.
func (rl *RateLimiter) HandleRateLimitError(ctx context.Context) error {
	rl.mu.Lock()
	resetTime := rl.coreResetTime
	rl.mu.Unlock()

	if !time.Now().Before(resetTime) {
		return rl.StartBackoff(ctx)
	}

	waitDuration := time.Until(resetTime)
	rl.logger.Warn("Rate limit hit, waiting for reset",
		"wait_duration", waitDuration,
		"reset_time", resetTime)

	timer := time.NewTimer(waitDuration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		rl.mu.Lock()
		rl.coreRemaining = rl.coreLimit
		rl.mu.Unlock()
		return nil
	}
}
