package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGuard_NoPatterns(t *testing.T) {
	g := NewGuard()
	if err := g.Do(context.Background(), fail); err != errDial {
		t.Errorf("Do() = %v, want errDial", err)
	}
	if g.Breaker() != nil {
		t.Error("Breaker() should be nil")
	}
}

func TestGuard_RetryStopsWhenBreakerOpens(t *testing.T) {
	breaker := NewBreaker(BreakerConfig{Threshold: 2, Cooldown: time.Hour})
	g := NewGuard(
		WithBulkhead(NewBulkhead(BulkheadConfig{MaxConcurrent: 2})),
		WithBreaker(breaker),
		WithRetry(NewRetry(RetryConfig{Attempts: 5, Delay: time.Millisecond})),
	)

	calls := 0
	err := g.Do(context.Background(), func(context.Context) error {
		calls++
		return errDial
	})

	if !errors.Is(err, ErrOriginUnavailable) {
		t.Errorf("Do() = %v, want ErrOriginUnavailable", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if breaker.State() != StateOpen {
		t.Errorf("breaker State() = %v, want open", breaker.State())
	}
	if !IsShortCircuit(err) {
		t.Error("IsShortCircuit() = false")
	}
}

func TestIsShortCircuit(t *testing.T) {
	if IsShortCircuit(errDial) {
		t.Error("IsShortCircuit(errDial) = true")
	}
	if !IsShortCircuit(ErrSaturated) {
		t.Error("IsShortCircuit(ErrSaturated) = false")
	}
}
