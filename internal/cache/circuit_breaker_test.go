package cache

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failingCall() error { return errBoom }
func okCall() error      { return nil }

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(&BreakerConfig{MaxFailures: 3, Cooldown: time.Minute, HalfOpenMaxCalls: 1})

	for i := 0; i < 3; i++ {
		if err := cb.Execute(failingCall); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: got %v, want boom", i, err)
		}
	}
	if cb.State() != BreakerOpen {
		t.Fatalf("expected open after %d failures, got %v", 3, cb.State())
	}

	if err := cb.Execute(okCall); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("open breaker should reject, got %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(&BreakerConfig{MaxFailures: 3, Cooldown: time.Minute, HalfOpenMaxCalls: 1})

	cb.Execute(failingCall)
	cb.Execute(failingCall)
	cb.Execute(okCall)
	cb.Execute(failingCall)
	cb.Execute(failingCall)

	if cb.State() != BreakerClosed {
		t.Errorf("success should reset the consecutive-failure count, state %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(&BreakerConfig{MaxFailures: 1, Cooldown: 10 * time.Millisecond, HalfOpenMaxCalls: 2})

	cb.Execute(failingCall)
	if cb.State() != BreakerOpen {
		t.Fatalf("expected open, got %v", cb.State())
	}

	time.Sleep(15 * time.Millisecond)

	// Probes are admitted after the cooldown; enough successes close it.
	if err := cb.Execute(okCall); err != nil {
		t.Fatalf("first probe should pass through: %v", err)
	}
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("expected half-open, got %v", cb.State())
	}
	if err := cb.Execute(okCall); err != nil {
		t.Fatalf("second probe should pass through: %v", err)
	}
	if cb.State() != BreakerClosed {
		t.Errorf("expected closed after successful probes, got %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(&BreakerConfig{MaxFailures: 1, Cooldown: 10 * time.Millisecond, HalfOpenMaxCalls: 2})

	cb.Execute(failingCall)
	time.Sleep(15 * time.Millisecond)

	cb.Execute(failingCall)
	if cb.State() != BreakerOpen {
		t.Errorf("failed probe should reopen, got %v", cb.State())
	}
}
