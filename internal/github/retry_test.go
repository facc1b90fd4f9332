package github

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func fastRetryer(attempts int) *Retryer {
	return NewRetryer(RetryConfig{
		MaxAttempts:     attempts,
		InitialBackoff:  5 * time.Millisecond,
		MaxBackoff:      20 * time.Millisecond,
		BackoffMultiple: 2.0,
	}, NewRateLimiter(0, testLogger()), testLogger())
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", config.MaxAttempts)
	}
	if config.InitialBackoff != time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
	if config.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", config.MaxBackoff)
	}
}

func TestNewRetryer_ZeroConfigUsesDefaults(t *testing.T) {
	r := NewRetryer(RetryConfig{}, NewRateLimiter(0, testLogger()), testLogger())
	if r.config.MaxAttempts != DefaultRetryConfig().MaxAttempts {
		t.Errorf("MaxAttempts = %d, want default", r.config.MaxAttempts)
	}

	calls := 0
	err := r.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return &APIError{StatusCode: http.StatusNotFound, Err: ErrNotFound}
	})
	if err == nil {
		t.Fatal("Do() with zero config swallowed the error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryer_Do(t *testing.T) {
	serverErr := &APIError{StatusCode: http.StatusInternalServerError, Err: ErrServerError}
	notFound := &APIError{StatusCode: http.StatusNotFound, Err: ErrNotFound}

	tests := []struct {
		name      string
		failures  int
		failWith  error
		attempts  int
		wantCalls int
		wantErr   error
	}{
		{name: "success first try", attempts: 3, wantCalls: 1},
		{name: "retryable recovers", failures: 2, failWith: serverErr, attempts: 3, wantCalls: 3},
		{name: "retryable exhausts attempts", failures: 10, failWith: serverErr, attempts: 3, wantCalls: 3, wantErr: ErrServerError},
		{name: "non-retryable stops immediately", failures: 10, failWith: notFound, attempts: 3, wantCalls: 1, wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := fastRetryer(tt.attempts).Do(context.Background(), "op", func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.failWith
				}
				return nil
			})

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("Do() error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Do() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryer_NonRetryableReturnedUnchanged(t *testing.T) {
	orig := &APIError{StatusCode: http.StatusUnprocessableEntity, Err: ErrUnprocessable}
	err := fastRetryer(3).Do(context.Background(), "CreateTeam", func(context.Context) error {
		return orig
	})
	if err != orig {
		t.Errorf("Do() error = %v, want the original error value", err)
	}
}

func TestRetryer_RateLimitErrorRetries(t *testing.T) {
	r := fastRetryer(2)
	r.rateLimiter.backoffDuration = 5 * time.Millisecond

	calls := 0
	err := r.Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls == 1 {
			return &APIError{StatusCode: http.StatusTooManyRequests, Err: ErrRateLimitExceeded}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetryer_DoWithCancelledContext(t *testing.T) {
	r := NewRetryer(RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     time.Second,
	}, NewRateLimiter(0, testLogger()), testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := r.Do(ctx, "op", func(context.Context) error {
		return &APIError{StatusCode: http.StatusBadGateway, Err: ErrServerError}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want deadline exceeded", err)
	}
}

func TestDoWithRetry(t *testing.T) {
	r := fastRetryer(3)

	calls := 0
	got, err := DoWithRetry(context.Background(), r, "op", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", &APIError{StatusCode: http.StatusServiceUnavailable}
		}
		return "team-one", nil
	})
	if err != nil {
		t.Fatalf("DoWithRetry() error = %v", err)
	}
	if got != "team-one" {
		t.Errorf("DoWithRetry() = %q, want team-one", got)
	}
}
