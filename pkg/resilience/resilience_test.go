package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	policy := RetryPolicy{MaxAttempts: 3, InitialWait: time.Millisecond}
	err := policy.Do(context.Background(), func(context.Context) error {
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

func TestRetryEventualSuccess(t *testing.T) {
	calls := 0
	policy := RetryPolicy{MaxAttempts: 3, InitialWait: time.Millisecond}
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
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

func TestRetryExhaustionReturnsLastError(t *testing.T) {
	want := errors.New("still broken")
	calls := 0
	policy := RetryPolicy{MaxAttempts: 3, InitialWait: time.Millisecond}
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected attempt cap of 3, got %d", calls)
	}
}

func TestRetryHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	policy := RetryPolicy{MaxAttempts: 5, InitialWait: 10 * time.Millisecond}
	err := policy.Do(ctx, func(context.Context) error {
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRetryZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := RetryPolicy{}.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("x")
	})
	if err == nil || calls != 1 {
		t.Errorf("expected one failing call, got calls=%d err=%v", calls, err)
	}
}

func TestLimiterAllowsBurst(t *testing.T) {
	l := NewLimiter(1, 2)
	if !l.Allow() || !l.Allow() {
		t.Error("burst of 2 should allow two immediate calls")
	}
	if l.Allow() {
		t.Error("third immediate call should be limited")
	}
}

func TestLimiterCallWait(t *testing.T) {
	l := NewLimiter(1000, 1)
	called := false
	err := l.CallWait(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Errorf("CallWait failed: called=%v err=%v", called, err)
	}
}

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Cooldown: time.Minute})
	fail := func(context.Context) error { return errors.New("boom") }

	_ = b.Call(context.Background(), fail)
	_ = b.Call(context.Background(), fail)

	if b.State() != StateOpen {
		t.Fatalf("expected open after threshold, got %v", b.State())
	}
	if err := b.Call(context.Background(), fail); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Cooldown: time.Minute})
	now := time.Now()
	b.now = func() time.Time { return now }

	_ = b.Call(context.Background(), func(context.Context) error { return errors.New("boom") })
	if b.State() != StateOpen {
		t.Fatal("breaker should be open")
	}

	now = now.Add(2 * time.Minute)
	if b.State() != StateHalfOpen {
		t.Fatal("breaker should be half-open after cooldown")
	}

	if err := b.Call(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("breaker should close after successful probe, got %v", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Cooldown: time.Minute})
	now := time.Now()
	b.now = func() time.Time { return now }

	_ = b.Call(context.Background(), func(context.Context) error { return errors.New("boom") })
	now = now.Add(2 * time.Minute)

	_ = b.Call(context.Background(), func(context.Context) error { return errors.New("still down") })
	if b.State() != StateOpen {
		t.Errorf("failed probe should reopen, got %v", b.State())
	}
}
