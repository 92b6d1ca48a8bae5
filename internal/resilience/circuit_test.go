package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Hour)
	fail := func(_ context.Context) error {
		return NewTransientError(errors.New("boom"), 503)
	}

	for i := 0; i < 3; i++ {
		if err := cb.Execute(context.Background(), fail); errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("breaker opened early at call %d", i+1)
		}
	}

	err := cb.Execute(context.Background(), fail)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if cb.State() != CircuitOpen {
		t.Errorf("expected open state, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbeRecovers(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	_ = cb.Execute(context.Background(), func(_ context.Context) error {
		return NewTransientError(errors.New("boom"), 503)
	})
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	time.Sleep(15 * time.Millisecond)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open, got %s", cb.State())
	}

	if err := cb.Execute(context.Background(), func(_ context.Context) error { return nil }); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after successful probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_NonTransientDoesNotTrip(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Hour)
	_ = cb.Execute(context.Background(), func(_ context.Context) error {
		return errors.New("validation failure")
	})
	if cb.State() != CircuitClosed {
		t.Errorf("non-transient error tripped the breaker")
	}
}
