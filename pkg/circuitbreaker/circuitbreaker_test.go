package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestOpensAfterFailureThreshold(t *testing.T) {
	cb := NewCircuitBreaker(Config{
		FailureThreshold:    3,
		SuccessThreshold:    1,
		Timeout:             time.Minute,
		HalfOpenMaxRequests: 1,
	})

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: err = %v, want boom", i, err)
		}
	}

	err := cb.Execute(func() error { return nil })
	if !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Errorf("err = %v, want ErrCircuitBreakerOpen", err)
	}
	if cb.GetState() != StateOpen {
		t.Errorf("state = %v, want open", cb.GetState())
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(Config{
		FailureThreshold:    2,
		SuccessThreshold:    1,
		Timeout:             time.Minute,
		HalfOpenMaxRequests: 1,
	})

	cb.Execute(func() error { return errBoom })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return errBoom })

	if cb.GetState() != StateClosed {
		t.Errorf("state = %v, want closed (failure streak broken)", cb.GetState())
	}
}

func TestHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(Config{
		FailureThreshold:    1,
		SuccessThreshold:    1,
		Timeout:             10 * time.Millisecond,
		HalfOpenMaxRequests: 1,
	})

	cb.Execute(func() error { return errBoom })
	cb.Execute(func() error { return errBoom }) // transitions to open
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want open", cb.GetState())
	}

	time.Sleep(20 * time.Millisecond)

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("half-open probe failed: %v", err)
	}
	// One more success closes the breaker on the next transition check.
	cb.Execute(func() error { return nil })
	if cb.GetState() != StateClosed {
		t.Errorf("state = %v, want closed after recovery", cb.GetState())
	}
}

func TestReset(t *testing.T) {
	cb := NewCircuitBreaker(Config{
		FailureThreshold:    1,
		SuccessThreshold:    1,
		Timeout:             time.Minute,
		HalfOpenMaxRequests: 1,
	})

	cb.Execute(func() error { return errBoom })
	cb.Execute(func() error { return errBoom })
	cb.Reset()

	if cb.GetState() != StateClosed {
		t.Errorf("state = %v, want closed after reset", cb.GetState())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("Execute after reset: %v", err)
	}
}
