package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// errEndpointDown stands in for a failed chat-completions attempt.
var errEndpointDown = errors.New("status 502: upstream model endpoint unavailable")

func TestClosedBreakerPassesAttemptsThrough(t *testing.T) {
	b := NewBreaker(5, 30*time.Second)

	attempts := 0
	for i := 0; i < 4; i++ {
		err := b.Execute(func() error {
			attempts++
			return nil
		})
		if err != nil {
			t.Fatalf("attempt %d: expected no error, got %v", i+1, err)
		}
	}
	if attempts != 4 {
		t.Fatalf("expected 4 attempts through a closed breaker, got %d", attempts)
	}
}

func TestOpensAfterConsecutiveEndpointFailures(t *testing.T) {
	b := NewBreaker(3, 30*time.Second)

	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return errEndpointDown }); !errors.Is(err, errEndpointDown) {
			t.Fatalf("attempt %d: expected the endpoint error, got %v", i+1, err)
		}
	}

	// Fourth attempt is rejected without touching the endpoint.
	reached := false
	err := b.Execute(func() error {
		reached = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if reached {
		t.Fatal("open breaker must not invoke the attempt")
	}
}

func TestRecoveredEndpointClosesBreaker(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, 30*time.Second)
	b.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_ = b.Execute(func() error { return errEndpointDown })
	}

	// Inside the cooldown window every call is rejected.
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen during cooldown, got %v", err)
	}

	// After the cooldown one trial attempt goes through; its success closes
	// the breaker again.
	now = now.Add(31 * time.Second)

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected trial attempt to succeed, got %v", err)
	}

	b.mu.Lock()
	st := b.state
	b.mu.Unlock()
	if st != stateClosed {
		t.Fatalf("expected closed state after recovery, got %d", st)
	}
}

func TestFlappingEndpointReopensFromHalfOpen(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, 30*time.Second)
	b.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_ = b.Execute(func() error { return errEndpointDown })
	}

	now = now.Add(31 * time.Second)

	// The trial attempt fails: the endpoint came back just long enough to
	// accept a connection and died again.
	_ = b.Execute(func() error { return errEndpointDown })

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after failed trial, got %v", err)
	}
}

func TestIntermittentFailuresBelowThresholdStayClosed(t *testing.T) {
	b := NewBreaker(3, 30*time.Second)

	// Two failures, a success, two more failures: the streak never reaches
	// the threshold because the success resets it.
	for round := 0; round < 2; round++ {
		for i := 0; i < 2; i++ {
			_ = b.Execute(func() error {
				return fmt.Errorf("round %d: %w", round, errEndpointDown)
			})
		}
		if err := b.Execute(func() error { return nil }); err != nil {
			t.Fatalf("round %d: expected success through closed breaker, got %v", round, err)
		}
	}
}
