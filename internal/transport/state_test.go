package transport

import (
	"context"
	"testing"
	"time"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name             string
		reason           CloseReason
		hasEverConnected bool
		want             bool
	}{
		{"logged out before first pairing", ReasonLoggedOut401, false, true},
		{"logged out after prior pairing", ReasonLoggedOut401, true, false},
		{"forbidden never retries", ReasonForbidden403, true, false},
		{"restart required always retries", ReasonRestartRequired515, true, true},
		{"service unavailable always retries", ReasonServiceUnavailable503, false, true},
		{"unspecified reason retries", ReasonOther, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRetry(tt.reason, tt.hasEverConnected); got != tt.want {
				t.Errorf("ShouldRetry(%v, %v) = %v, want %v", tt.reason, tt.hasEverConnected, got, tt.want)
			}
		})
	}
}

func TestReconnectDelay_BoundedByCapAndJitter(t *testing.T) {
	// At high attempt counts, base·2^k saturates to capReconnectDelay, and
	// jitter must keep the result within ±25% of that cap.
	for _, jitter := range []float64{-1, 0, 1} {
		d := ReconnectDelay(20, jitter)
		min := time.Duration(float64(capReconnectDelay) * 0.75)
		max := time.Duration(float64(capReconnectDelay) * 1.25)
		if d < min || d > max {
			t.Errorf("ReconnectDelay(20, %v) = %v, want within [%v, %v]", jitter, d, min, max)
		}
	}
}

func TestReconnectDelay_GrowsWithAttempt(t *testing.T) {
	d0 := ReconnectDelay(0, 0)
	d1 := ReconnectDelay(1, 0)
	d2 := ReconnectDelay(2, 0)
	if !(d0 < d1 && d1 < d2) {
		t.Errorf("expected strictly increasing delays, got %v, %v, %v", d0, d1, d2)
	}
}

func TestConnection_OnOpenRebindsHandle(t *testing.T) {
	var states []ConnState
	conn := NewConnection(func(s ConnState) { states = append(states, s) })

	if _, ok := conn.Handle(); ok {
		t.Fatal("fresh connection should have no handle")
	}

	h := &fakeHandle{}
	conn.OnOpen(h)

	got, ok := conn.Handle()
	if !ok || got != h {
		t.Fatal("Handle() should return the rebound handle after OnOpen")
	}
	if conn.State() != StateConnected {
		t.Fatalf("state = %v, want %v", conn.State(), StateConnected)
	}
	if !conn.HasEverConnected() {
		t.Fatal("HasEverConnected should be true after OnOpen")
	}
}

func TestConnection_OnCloseTerminatesOnForbidden(t *testing.T) {
	conn := NewConnection(nil)
	conn.OnOpen(&fakeHandle{})

	_, retry := conn.OnClose(ReasonForbidden403)
	if retry {
		t.Fatal("forbidden close should not retry")
	}
	if conn.State() != StateTerminated {
		t.Fatalf("state = %v, want terminated", conn.State())
	}
	if _, ok := conn.Handle(); ok {
		t.Fatal("handle should be cleared on close")
	}
}

type fakeHandle struct{}

func (f *fakeHandle) Send(_ context.Context, _ string, _ []byte) error { return nil }
func (f *fakeHandle) Close() error                                    { return nil }
