package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		RateLimitAttempts: 3,
		InitialBackoff:    1 * time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		Multiplier:        2.0,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_SuccessAfterTransientRetry(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetryConfig(), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("temporary"), 503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_NonTransientNotRetried(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetryConfig(), func(_ context.Context) error {
		calls++
		return errors.New("malformed request")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RateLimitBudgetExhausted(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetryConfig(), func(_ context.Context) error {
		calls++
		return NewRateLimitError(errors.New("429 too many requests"), 0)
	})
	if !errors.Is(err, ErrRateLimitExhausted) {
		t.Fatalf("expected ErrRateLimitExhausted, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_RateLimitBudgetSeparateFromTransient(t *testing.T) {
	// Rate-limit hits must not consume the transient attempt budget.
	cfg := fastRetryConfig()
	cfg.MaxAttempts = 2
	cfg.RateLimitAttempts = 5

	var calls int
	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls < 4 {
			return NewRateLimitError(errors.New("rate limited"), 0)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
}

func TestDo_ContextCancelStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls int
	err := Do(ctx, fastRetryConfig(), func(_ context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("temporary"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoVal_PreservesValue(t *testing.T) {
	val, err := DoVal(context.Background(), fastRetryConfig(), func(_ context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 42 {
		t.Errorf("expected 42, got %d", val)
	}
}

func TestRetryAfterHintRespected(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.RateLimitAttempts = 2

	start := time.Now()
	var calls int
	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls == 1 {
			return NewRateLimitError(errors.New("rate limited"), 30*time.Millisecond)
		}
		return nil
	})
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("retry-after hint ignored: slept only %v", elapsed)
	}
}
