package transport

import (
	"testing"
	"time"
)

func TestDuplicateFilter_Allow(t *testing.T) {
	base := time.Now()
	f := NewDuplicateFilter()

	if !f.Allow("fp-1", base) {
		t.Fatal("first sighting should be allowed")
	}
	if f.Allow("fp-1", base.Add(time.Second)) {
		t.Fatal("repeat within dedupeWindow should be rejected")
	}
	if !f.Allow("fp-1", base.Add(dedupeWindow+time.Millisecond)) {
		t.Fatal("repeat after dedupeWindow should be allowed again")
	}
}

func TestSenderRateLimiter_SlidingWindow(t *testing.T) {
	r := NewSenderRateLimiter()
	base := time.Now()

	for i := 0; i < senderRateLimit; i++ {
		if !r.Allow("sender-1", base.Add(time.Duration(i)*time.Millisecond)) {
			t.Fatalf("attempt %d should be within budget", i)
		}
	}
	if r.Allow("sender-1", base.Add(time.Millisecond*time.Duration(senderRateLimit))) {
		t.Fatal("attempt beyond limit within window should be rejected")
	}

	later := base.Add(senderRateWindow + time.Second)
	if !r.Allow("sender-1", later) {
		t.Fatal("attempt after window should be allowed as old entries age out")
	}
}

func TestSenderRateLimiter_PerSenderIsolation(t *testing.T) {
	r := NewSenderRateLimiter()
	now := time.Now()
	for i := 0; i < senderRateLimit; i++ {
		r.Allow("sender-a", now)
	}
	if !r.Allow("sender-b", now) {
		t.Fatal("sender-b budget should be independent of sender-a")
	}
}

func TestLooksLikeSpam(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"hey can you help me reset my password", false},
		{"CLICK HERE to claim your free money now!", true},
		{"You have won a wire transfer, act now", true},
		{"normal support request about billing", false},
	}
	for _, tt := range tests {
		if got := LooksLikeSpam(tt.text); got != tt.want {
			t.Errorf("LooksLikeSpam(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestLooksLikeSpam_SingleMatchIsNotEnough(t *testing.T) {
	if LooksLikeSpam("please act now on my invoice, thanks") {
		t.Error("a single matched keyword should not be enough to flag as spam")
	}
}

func TestLooksLikeSpam_TwoMatchesFlagged(t *testing.T) {
	if !LooksLikeSpam("act now, limited time offer just for you") {
		t.Error("two matched keywords should be flagged as spam")
	}
}
