package transport

import (
	"strings"
	"sync"
	"time"
)

// dedupeWindow is the span within which an identical fingerprint is treated
// as a provider-retransmitted duplicate (spec §8.7).
const dedupeWindow = 5 * time.Second

// senderRateWindow / senderRateLimit bound inbound publishes per sender
// (spec §8.7: "no more than 30 inbound publishes per sender within any 60s
// window"). Implemented as a true sliding window (timestamp deque) rather
// than the teacher's fixed-window counter, so the invariant holds exactly
// at window boundaries.
const (
	senderRateWindow = 60 * time.Second
	senderRateLimit  = 30
)

// DuplicateFilter drops messages whose fingerprint repeats within
// dedupeWindow, keyed per fingerprint.
type DuplicateFilter struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func NewDuplicateFilter() *DuplicateFilter {
	return &DuplicateFilter{seen: make(map[string]time.Time)}
}

// Allow reports whether fingerprint has not been seen within dedupeWindow of
// now, recording it either way.
func (f *DuplicateFilter) Allow(fingerprint string, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if last, ok := f.seen[fingerprint]; ok && now.Sub(last) < dedupeWindow {
		return false
	}
	f.seen[fingerprint] = now
	f.sweep(now)
	return true
}

// sweep drops entries older than dedupeWindow so the map doesn't grow
// unbounded. Caller holds f.mu.
func (f *DuplicateFilter) sweep(now time.Time) {
	for k, t := range f.seen {
		if now.Sub(t) >= dedupeWindow {
			delete(f.seen, k)
		}
	}
}

// SenderRateLimiter enforces senderRateLimit publishes per sender within any
// senderRateWindow, via a sliding deque of timestamps per sender.
type SenderRateLimiter struct {
	mu        sync.Mutex
	history   map[string][]time.Time
}

func NewSenderRateLimiter() *SenderRateLimiter {
	return &SenderRateLimiter{history: make(map[string][]time.Time)}
}

// Allow reports whether sender is still within budget as of now, and
// records this attempt regardless (even a rejected attempt is still an
// attempt the sender made, kept so subsequent windows see it age out).
func (r *SenderRateLimiter) Allow(sender string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-senderRateWindow)
	hist := r.history[sender]
	kept := hist[:0]
	for _, t := range hist {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	allowed := len(kept) < senderRateLimit
	kept = append(kept, now)
	r.history[sender] = kept
	return allowed
}

// spamKeywords is a small, observational-only heuristic (spec §8.7: spam
// detection never blocks delivery, it only annotates for downstream
// logging/triage).
var spamKeywords = []string{
	"click here", "free money", "you have won", "act now", "limited time offer",
	"wire transfer", "crypto investment", "verify your account now",
}

// spamMatchThreshold is the minimum number of distinct keyword hits before
// the heuristic is worth surfacing; a single incidental phrase is too noisy
// to act on (spec §8.7).
const spamMatchThreshold = 2

// LooksLikeSpam reports whether text contains at least spamMatchThreshold
// known spam phrases. Callers must treat this as advisory metadata only —
// it must never gate whether a message is processed or published.
func LooksLikeSpam(text string) bool {
	lower := strings.ToLower(text)
	matches := 0
	for _, kw := range spamKeywords {
		if strings.Contains(lower, kw) {
			matches++
			if matches >= spamMatchThreshold {
				return true
			}
		}
	}
	return false
}
