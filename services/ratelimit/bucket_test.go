package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucket(t *testing.T) {
	base := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	t.Run("starts full", func(t *testing.T) {
		b := newTokenBucket(10, 1, base)
		assert.True(t, b.consume(10, base))
		assert.False(t, b.consume(1, base))
	})

	t.Run("no partial consumption", func(t *testing.T) {
		b := newTokenBucket(5, 1, base)
		assert.False(t, b.consume(6, base))
		assert.True(t, b.consume(5, base), "failed consume must not drain tokens")
	})

	t.Run("refills over time", func(t *testing.T) {
		b := newTokenBucket(10, 2, base) // 2 tokens/sec
		assert.True(t, b.consume(10, base))

		assert.False(t, b.consume(1, base.Add(400*time.Millisecond)))
		assert.True(t, b.consume(1, base.Add(time.Second)))
	})

	t.Run("refill caps at capacity", func(t *testing.T) {
		b := newTokenBucket(10, 100, base)
		assert.True(t, b.consume(5, base))

		// One hour of refill cannot exceed capacity.
		assert.True(t, b.consume(10, base.Add(time.Hour)))
		assert.False(t, b.consume(1, base.Add(time.Hour)))
	})

	t.Run("refund restores tokens", func(t *testing.T) {
		b := newTokenBucket(10, 0, base)
		assert.True(t, b.consume(10, base))

		b.refund(4)
		assert.True(t, b.consume(4, base))
		assert.False(t, b.consume(1, base))
	})

	t.Run("refund caps at capacity", func(t *testing.T) {
		b := newTokenBucket(10, 0, base)
		b.refund(100)
		assert.True(t, b.consume(10, base))
		assert.False(t, b.consume(1, base))
	})

	t.Run("timeUntil", func(t *testing.T) {
		b := newTokenBucket(10, 2, base)
		assert.Equal(t, time.Duration(0), b.timeUntil(10, base))

		assert.True(t, b.consume(10, base))
		assert.Equal(t, time.Second, b.timeUntil(2, base))
	})
}

func TestSlidingWindow(t *testing.T) {
	base := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	t.Run("counts within window", func(t *testing.T) {
		w := newSlidingWindow(time.Minute)
		w.add(base, 100)
		w.add(base.Add(10*time.Second), 200)

		requests, tokens := w.counts(base.Add(30 * time.Second))
		assert.Equal(t, 2, requests)
		assert.Equal(t, 300, tokens)
	})

	t.Run("prunes expired entries", func(t *testing.T) {
		w := newSlidingWindow(time.Minute)
		w.add(base, 100)
		w.add(base.Add(30*time.Second), 200)

		requests, tokens := w.counts(base.Add(61 * time.Second))
		assert.Equal(t, 1, requests)
		assert.Equal(t, 200, tokens)

		requests, tokens = w.counts(base.Add(2 * time.Minute))
		assert.Equal(t, 0, requests)
		assert.Equal(t, 0, tokens)
	})

	t.Run("oldest expiry", func(t *testing.T) {
		w := newSlidingWindow(time.Minute)
		now := base.Add(5 * time.Second)
		assert.Equal(t, now, w.oldestExpiry(now), "empty window frees up immediately")

		w.add(base, 100)
		assert.Equal(t, base.Add(time.Minute), w.oldestExpiry(now))
	})
}
