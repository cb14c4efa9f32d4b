package ratelimit

import (
	"time"
)

// tokenBucket implements lazily refilled burst control. Callers must hold
// the owning service's lock across refill, check and consume so the
// check-then-decrement sequence stays atomic.
type tokenBucket struct {
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newTokenBucket(capacity, refillRate float64, now time.Time) *tokenBucket {
	return &tokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: now,
	}
}

// refill adds tokens for the time elapsed since the last refill
func (b *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// consume takes n tokens if available. It fails without partial
// consumption when fewer than n tokens are present.
func (b *tokenBucket) consume(n float64, now time.Time) bool {
	b.refill(now)
	if b.tokens < n {
		return false
	}
	b.tokens -= n
	return true
}

// refund returns tokens taken earlier in the same admission decision
func (b *tokenBucket) refund(n float64) {
	b.tokens += n
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
}

// timeUntil returns how long until n tokens will be available
func (b *tokenBucket) timeUntil(n float64, now time.Time) time.Duration {
	b.refill(now)
	if b.tokens >= n {
		return 0
	}
	if b.refillRate <= 0 {
		return time.Duration(1<<62 - 1)
	}
	missing := n - b.tokens
	return time.Duration(missing / b.refillRate * float64(time.Second))
}

// windowEntry records one admitted request inside the sliding window
type windowEntry struct {
	timestamp time.Time
	tokens    int
}

// slidingWindow counts requests and tokens over a trailing time window
type slidingWindow struct {
	window  time.Duration
	entries []windowEntry
}

func newSlidingWindow(window time.Duration) *slidingWindow {
	return &slidingWindow{window: window}
}

// add records an admitted request's token usage
func (w *slidingWindow) add(now time.Time, tokens int) {
	w.entries = append(w.entries, windowEntry{timestamp: now, tokens: tokens})
}

// counts prunes expired entries and returns the current request and token
// totals inside the window
func (w *slidingWindow) counts(now time.Time) (requests, tokens int) {
	cutoff := now.Add(-w.window)
	idx := 0
	for idx < len(w.entries) && !w.entries[idx].timestamp.After(cutoff) {
		idx++
	}
	if idx > 0 {
		w.entries = w.entries[idx:]
	}

	for _, e := range w.entries {
		tokens += e.tokens
	}
	return len(w.entries), tokens
}

// oldestExpiry returns when the oldest entry leaves the window, which is
// the earliest moment capacity frees up
func (w *slidingWindow) oldestExpiry(now time.Time) time.Time {
	if len(w.entries) == 0 {
		return now
	}
	return w.entries[0].timestamp.Add(w.window)
}
