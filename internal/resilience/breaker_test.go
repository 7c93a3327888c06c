package resilience

import (
	"errors"
	"testing"
	"time"
)

var errFail = errors.New("downstream failure")

func failingCall() error    { return errFail }
func succeedingCall() error { return nil }

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker("test", 3, time.Minute)

	for i := 0; i < 3; i++ {
		if err := b.Call(failingCall); !errors.Is(err, errFail) {
			t.Fatalf("Call %d: expected downstream error, got %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("Expected open after 3 failures, got %v", b.State())
	}

	if err := b.Call(succeedingCall); !errors.Is(err, ErrOpen) {
		t.Errorf("Expected open breaker to reject calls, got %v", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker("test", 3, time.Minute)

	b.Call(failingCall)
	b.Call(failingCall)
	b.Call(succeedingCall)
	b.Call(failingCall)
	b.Call(failingCall)

	if b.State() != StateClosed {
		t.Errorf("Expected closed while failures stay non-consecutive, got %v", b.State())
	}
}

func TestBreaker_HalfOpenAfterTimeout(t *testing.T) {
	b := NewBreaker("test", 1, 10*time.Millisecond)

	b.Call(failingCall)
	if b.State() != StateOpen {
		t.Fatalf("Expected open, got %v", b.State())
	}

	time.Sleep(20 * time.Millisecond)
	if err := b.Call(succeedingCall); err != nil {
		t.Fatalf("Expected probe call allowed after the reset timeout, got %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Errorf("Expected half-open while probing, got %v", b.State())
	}
}

func TestBreaker_ClosesAfterProbeSuccesses(t *testing.T) {
	b := NewBreaker("test", 1, time.Millisecond)

	b.Call(failingCall)
	time.Sleep(5 * time.Millisecond)

	for i := 0; i < 3; i++ {
		if err := b.Call(succeedingCall); err != nil {
			t.Fatalf("Probe %d: expected success, got %v", i, err)
		}
	}
	if b.State() != StateClosed {
		t.Errorf("Expected closed after successful probes, got %v", b.State())
	}
}

func TestBreaker_ReopensOnProbeFailure(t *testing.T) {
	b := NewBreaker("test", 1, time.Millisecond)

	b.Call(failingCall)
	time.Sleep(5 * time.Millisecond)

	b.Call(failingCall) // probe fails
	if b.State() != StateOpen {
		t.Errorf("Expected reopened after failed probe, got %v", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker("test", 1, time.Minute)

	b.Call(failingCall)
	b.Reset()

	if b.State() != StateClosed {
		t.Fatalf("Expected closed after reset, got %v", b.State())
	}
	if err := b.Call(succeedingCall); err != nil {
		t.Errorf("Expected calls allowed after reset, got %v", err)
	}
}
