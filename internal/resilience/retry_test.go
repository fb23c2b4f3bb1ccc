package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/haasonsaas/orchestrator-core/internal/orcherr"
)

func TestRetryWithBackoff_SucceedsFirstTry(t *testing.T) {
	calls := 0
	result, err := RetryWithBackoff(context.Background(), DefaultPolicy(), 3, func(attempt int) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Value != "ok" || result.Attempts != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryWithBackoff_RetriesRetriableErrors(t *testing.T) {
	policy := BackoffPolicy{InitialMs: 1, MaxMs: 5, Factor: 2, Jitter: false}
	calls := 0
	result, err := RetryWithBackoff(context.Background(), policy, 3, func(attempt int) (string, error) {
		calls++
		if attempt < 3 {
			return "", orcherr.New(orcherr.KindTimeout, "", errors.New("boom"))
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Attempts != 3 || calls != 3 {
		t.Fatalf("expected 3 attempts, got %d (calls=%d)", result.Attempts, calls)
	}
}

func TestRetryWithBackoff_FailsFastOnNonRetriable(t *testing.T) {
	policy := BackoffPolicy{InitialMs: 1, MaxMs: 5, Factor: 2, Jitter: false}
	calls := 0
	_, err := RetryWithBackoff(context.Background(), policy, 5, func(attempt int) (string, error) {
		calls++
		return "", orcherr.New(orcherr.KindBadRequest, "", errors.New("nope"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call for a non-retriable error, got %d", calls)
	}
}

func TestRetryWithBackoff_ExhaustsAttempts(t *testing.T) {
	policy := BackoffPolicy{InitialMs: 1, MaxMs: 5, Factor: 2, Jitter: false}
	_, err := RetryWithBackoff(context.Background(), policy, 2, func(attempt int) (string, error) {
		return "", orcherr.New(orcherr.KindServerError, "", errors.New("down"))
	})
	if !errors.Is(err, ErrMaxAttemptsExhausted) {
		t.Fatalf("expected ErrMaxAttemptsExhausted, got %v", err)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RetryWithBackoff(ctx, DefaultPolicy(), 3, func(attempt int) (string, error) {
		t.Fatal("fn should not be called once context is already done")
		return "", nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
