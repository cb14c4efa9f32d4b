package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/llm-gateway/models"
)

func cachedRequest(prompt string) *models.Request {
	req := models.NewRequest(models.RequestTypeChat, "gpt-4", prompt)
	req.Temperature = 0.7
	return req
}

func cachedResponse(req *models.Request, content string) *models.Response {
	return models.NewSuccessResponse(req, content, models.TokenUsage{
		InputTokens: 10, OutputTokens: 5, TotalTokens: 15,
	}, "stop")
}

func TestKey(t *testing.T) {
	t.Run("identical semantics produce identical keys", func(t *testing.T) {
		a := cachedRequest("hello")
		b := cachedRequest("hello")
		// Per-call identity must not affect the key.
		b.ClientID = "someone-else"
		b.Metadata = map[string]string{"trace": "xyz"}

		assert.Equal(t, Key(a), Key(b))
	})

	t.Run("semantic fields diverge the key", func(t *testing.T) {
		base := cachedRequest("hello")

		tests := []struct {
			name   string
			mutate func(*models.Request)
		}{
			{"prompt", func(r *models.Request) { r.Prompt = "goodbye" }},
			{"model", func(r *models.Request) { r.Model = "claude-3" }},
			{"type", func(r *models.Request) { r.Type = models.RequestTypeCompletion }},
			{"system prompt", func(r *models.Request) { r.SystemPrompt = "be terse" }},
			{"temperature", func(r *models.Request) { r.Temperature = 0.8 }},
			{"top_p", func(r *models.Request) { r.TopP = 0.5 }},
			{"max tokens", func(r *models.Request) { r.MaxTokens = 100 }},
			{"stop sequences", func(r *models.Request) { r.Stop = []string{"\n"} }},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				other := cachedRequest("hello")
				tt.mutate(other)
				assert.NotEqual(t, Key(base), Key(other))
			})
		}
	})
}

func TestService_GetPut(t *testing.T) {
	svc := NewService(10, time.Minute, zap.NewNop())

	req := cachedRequest("hello")
	_, ok := svc.Get(req)
	assert.False(t, ok)

	resp := cachedResponse(req, "hi there")
	svc.Put(req, resp)

	got, ok := svc.Get(req)
	require.True(t, ok)
	assert.Equal(t, "hi there", got.Content)
	assert.Equal(t, models.StatusSuccess, got.Status)

	// An equivalent request from a different caller hits too.
	twin := cachedRequest("hello")
	twin.ClientID = "other"
	_, ok = svc.Get(twin)
	assert.True(t, ok)
}

func TestService_CachedCopyIsIsolated(t *testing.T) {
	svc := NewService(10, time.Minute, zap.NewNop())
	req := cachedRequest("hello")
	svc.Put(req, cachedResponse(req, "original"))

	got, ok := svc.Get(req)
	require.True(t, ok)
	got.Content = "mutated"

	again, ok := svc.Get(req)
	require.True(t, ok)
	assert.Equal(t, "original", again.Content)
}

func TestService_TTLExpiry(t *testing.T) {
	svc := NewService(10, 30*time.Millisecond, zap.NewNop())
	req := cachedRequest("hello")
	svc.Put(req, cachedResponse(req, "hi"))

	_, ok := svc.Get(req)
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)

	_, ok = svc.Get(req)
	assert.False(t, ok, "entry must expire after the ttl")
}

func TestService_LRUEviction(t *testing.T) {
	svc := NewService(2, time.Minute, zap.NewNop())

	first := cachedRequest("one")
	second := cachedRequest("two")
	third := cachedRequest("three")

	svc.Put(first, cachedResponse(first, "1"))
	svc.Put(second, cachedResponse(second, "2"))
	svc.Put(third, cachedResponse(third, "3"))

	_, ok := svc.Get(first)
	assert.False(t, ok, "oldest entry is evicted at capacity")
	_, ok = svc.Get(third)
	assert.True(t, ok)
}

func TestService_InvalidateAndPurge(t *testing.T) {
	svc := NewService(10, time.Minute, zap.NewNop())
	a := cachedRequest("one")
	b := cachedRequest("two")
	svc.Put(a, cachedResponse(a, "1"))
	svc.Put(b, cachedResponse(b, "2"))

	svc.Invalidate(a)
	_, ok := svc.Get(a)
	assert.False(t, ok)
	_, ok = svc.Get(b)
	assert.True(t, ok)

	svc.Purge()
	_, ok = svc.Get(b)
	assert.False(t, ok)
}

func TestService_Stats(t *testing.T) {
	svc := NewService(10, time.Minute, zap.NewNop())
	req := cachedRequest("hello")

	svc.Get(req) // miss
	svc.Put(req, cachedResponse(req, "hi"))
	svc.Get(req) // hit
	svc.Get(req) // hit

	stats := svc.GetStats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 1e-9)
}
