package ticketing

import (
	"testing"
	"time"
)

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, 50*time.Millisecond)

	for i := 0; i < 2; i++ {
		if !b.Allow() {
			t.Fatalf("failure %d: breaker should still be closed", i)
		}
		b.RecordFailure()
	}
	if b.State() != BreakerClosed {
		t.Fatalf("State() = %v, want closed before max failures reached", b.State())
	}

	b.Allow()
	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatalf("State() = %v, want open after max failures reached", b.State())
	}
	if b.Allow() {
		t.Fatal("Allow() should reject calls while open and within the cooldown")
	}
}

func TestBreaker_HalfOpenProbeSucceeds(t *testing.T) {
	b := NewBreaker(1, 10*time.Millisecond)
	b.Allow()
	b.RecordFailure() // opens immediately, maxFailures=1

	time.Sleep(20 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("Allow() should admit the single probe once the cooldown elapses")
	}
	if b.State() != BreakerHalfOpen {
		t.Fatalf("State() = %v, want half_open during the probe", b.State())
	}

	b.RecordSuccess()
	if b.State() != BreakerClosed {
		t.Fatalf("State() = %v, want closed after a successful probe", b.State())
	}
}

func TestBreaker_HalfOpenProbeFailsReopens(t *testing.T) {
	b := NewBreaker(1, 10*time.Millisecond)
	b.Allow()
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("probe should be admitted")
	}
	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatalf("State() = %v, want open after the probe fails", b.State())
	}
}

func TestBreaker_OnlyOneConcurrentProbe(t *testing.T) {
	b := NewBreaker(1, 10*time.Millisecond)
	b.Allow()
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("first caller should get the probe")
	}
	if b.Allow() {
		t.Fatal("a second concurrent caller must not also get a probe slot")
	}
}
