package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func alwaysFail(ctx context.Context) (any, error) {
	return nil, errors.New("boom")
}

func alwaysOK(ctx context.Context) (any, error) {
	return "ok", nil
}

func newTestBreaker(minReqs uint32) *CircuitBreaker {
	return New(Config{
		Name:        "test",
		MaxRequests: 2,
		Timeout:     50 * time.Millisecond,
		ReadyToTrip: func(c Counts) bool {
			return c.ConsecutiveFailures >= minReqs
		},
	})
}

func TestBreakerTripsAfterFailures(t *testing.T) {
	cb := newTestBreaker(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		cb.Execute(ctx, alwaysFail)
	}

	if cb.State() != StateOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}

	_, err := cb.Execute(ctx, alwaysOK)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := newTestBreaker(2)
	ctx := context.Background()

	cb.Execute(ctx, alwaysFail)
	cb.Execute(ctx, alwaysFail)
	if cb.State() != StateOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}

	time.Sleep(60 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %s, want half-open", cb.State())
	}

	// MaxRequests consecutive successes close the breaker.
	if _, err := cb.Execute(ctx, alwaysOK); err != nil {
		t.Fatalf("probe 1: %v", err)
	}
	if _, err := cb.Execute(ctx, alwaysOK); err != nil {
		t.Fatalf("probe 2: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %s, want closed", cb.State())
	}
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb := newTestBreaker(2)
	ctx := context.Background()

	cb.Execute(ctx, alwaysFail)
	cb.Execute(ctx, alwaysFail)
	time.Sleep(60 * time.Millisecond)

	cb.Execute(ctx, alwaysFail)
	if cb.State() != StateOpen {
		t.Errorf("state = %s, want open after half-open failure", cb.State())
	}
}

func TestBreakerStateChangeCallback(t *testing.T) {
	var transitions []string
	cb := New(Config{
		Name:        "cb-test",
		MaxRequests: 1,
		Timeout:     time.Hour,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	cb.Execute(context.Background(), alwaysFail)

	if len(transitions) != 1 || transitions[0] != "closed->open" {
		t.Errorf("transitions = %v, want [closed->open]", transitions)
	}
}
