package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testService builds a limiter with a controllable clock
func testService(t *testing.T, cfg Config) (*Service, *time.Time) {
	t.Helper()
	svc := NewService(cfg, zap.NewNop())
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return svc, &now
}

func TestService_BurstControl(t *testing.T) {
	t.Run("admits up to burst capacity then rejects", func(t *testing.T) {
		svc, _ := testService(t, Config{
			RequestsPerMinute: 1000,
			TokensPerMinute:   1000000,
			BurstRequests:     10,
			BurstTokens:       100000,
		})

		for i := 0; i < 10; i++ {
			res := svc.Check("openai", "", 100)
			require.True(t, res.Allowed, "request %d should be admitted", i+1)
		}

		res := svc.Check("openai", "", 100)
		assert.False(t, res.Allowed)
		assert.Contains(t, res.Reason, "burst exceeded")
		assert.Greater(t, res.RetryAfter, time.Duration(0))
		assert.True(t, res.ResetAt.After(svc.now()))
	})

	t.Run("token burst rejection refunds the request token", func(t *testing.T) {
		svc, _ := testService(t, Config{
			RequestsPerMinute: 1000,
			TokensPerMinute:   1000000,
			BurstRequests:     2,
			BurstTokens:       1000,
		})

		res := svc.Check("openai", "", 1500)
		require.False(t, res.Allowed)
		assert.Contains(t, res.Reason, "token burst capacity")

		// The request slot taken by the rejected call must be back.
		assert.True(t, svc.Check("openai", "", 500).Allowed)
		assert.True(t, svc.Check("openai", "", 500).Allowed)
	})

	t.Run("burst recovers as tokens refill", func(t *testing.T) {
		svc, now := testService(t, Config{
			RequestsPerMinute: 60, // one request-token per second
			TokensPerMinute:   600000,
			BurstRequests:     2,
			BurstTokens:       10000,
		})

		require.True(t, svc.Check("openai", "", 10).Allowed)
		require.True(t, svc.Check("openai", "", 10).Allowed)
		require.False(t, svc.Check("openai", "", 10).Allowed)

		*now = now.Add(time.Second)
		assert.True(t, svc.Check("openai", "", 10).Allowed)
	})
}

func TestService_SustainedControl(t *testing.T) {
	t.Run("window ceiling rejects and refunds burst", func(t *testing.T) {
		svc, _ := testService(t, Config{
			RequestsPerMinute: 3,
			TokensPerMinute:   100000,
			BurstRequests:     100,
			BurstTokens:       100000,
			Window:            time.Minute,
		})

		for i := 0; i < 3; i++ {
			res := svc.Check("openai", "", 10)
			require.True(t, res.Allowed)
			svc.Record("openai", "", 10)
		}

		res := svc.Check("openai", "", 10)
		require.False(t, res.Allowed)
		assert.Contains(t, res.Reason, "sustained exceeded")

		// Rejections must not drain burst capacity: after the window
		// clears, admission resumes without burst starvation.
		for i := 0; i < 50; i++ {
			assert.False(t, svc.Check("openai", "", 10).Allowed)
		}
	})

	t.Run("window frees up after entries expire", func(t *testing.T) {
		svc, now := testService(t, Config{
			RequestsPerMinute: 2,
			TokensPerMinute:   100000,
			BurstRequests:     100,
			BurstTokens:       100000,
			Window:            time.Minute,
		})

		svc.Record("openai", "", 10)
		svc.Record("openai", "", 10)
		require.False(t, svc.Check("openai", "", 10).Allowed)

		*now = now.Add(61 * time.Second)
		assert.True(t, svc.Check("openai", "", 10).Allowed)
	})

	t.Run("token ceiling counts the estimate", func(t *testing.T) {
		svc, _ := testService(t, Config{
			RequestsPerMinute: 100,
			TokensPerMinute:   1000,
			BurstRequests:     100,
			BurstTokens:       100000,
			Window:            time.Minute,
		})

		svc.Record("openai", "", 900)

		assert.True(t, svc.Check("openai", "", 100).Allowed)
		assert.False(t, svc.Check("openai", "", 101).Allowed)
	})
}

func TestService_PerClientLimits(t *testing.T) {
	svc, _ := testService(t, Config{
		RequestsPerMinute: 2,
		TokensPerMinute:   100000,
		BurstRequests:     100,
		BurstTokens:       100000,
		Window:            time.Minute,
	})

	svc.Record("openai", "client-a", 10)
	svc.Record("openai", "client-a", 10)

	// client-a has filled both the provider window and its own; the
	// provider window rejects everyone now.
	assert.False(t, svc.Check("openai", "client-a", 10).Allowed)
	assert.False(t, svc.Check("openai", "client-b", 10).Allowed)

	// A different provider is unaffected.
	assert.True(t, svc.Check("anthropic", "client-a", 10).Allowed)
}

func TestService_PerClientWindowIsolatedPerProvider(t *testing.T) {
	svc, _ := testService(t, Config{
		RequestsPerMinute: 10,
		TokensPerMinute:   100000,
		BurstRequests:     100,
		BurstTokens:       100000,
		Window:            time.Minute,
	})

	svc.Record("openai", "client-a", 10)
	usage := svc.CurrentUsage("openai")
	assert.Equal(t, 1, usage.Requests)
	assert.Equal(t, 10, usage.Tokens)

	usage = svc.CurrentUsage("anthropic")
	assert.Equal(t, 0, usage.Requests)
}

func TestService_SetProviderConfig(t *testing.T) {
	svc, _ := testService(t, DefaultConfig())

	// Exhaust default burst.
	for i := 0; i < 10; i++ {
		require.True(t, svc.Check("openai", "", 1).Allowed, "request %d", i+1)
	}
	require.False(t, svc.Check("openai", "", 1).Allowed)

	// New config rebuilds the buckets with larger burst capacity.
	svc.SetProviderConfig("openai", Config{
		RequestsPerMinute: 600,
		TokensPerMinute:   100000,
		BurstRequests:     20,
		BurstTokens:       20000,
	})

	for i := 0; i < 20; i++ {
		assert.True(t, svc.Check("openai", "", 1).Allowed, "request %d after reconfig", i+1)
	}
}

func TestService_RemainingCounters(t *testing.T) {
	svc, _ := testService(t, Config{
		RequestsPerMinute: 10,
		TokensPerMinute:   1000,
		BurstRequests:     100,
		BurstTokens:       100000,
		Window:            time.Minute,
	})

	svc.Record("openai", "", 100)
	svc.Record("openai", "", 200)

	res := svc.Check("openai", "", 50)
	require.True(t, res.Allowed)
	assert.Equal(t, 8, res.RequestsRemaining)
	assert.Equal(t, 700, res.TokensRemaining)
}

func TestService_ConcurrentChecks(t *testing.T) {
	svc := NewService(Config{
		RequestsPerMinute: 1000,
		TokensPerMinute:   1000000,
		BurstRequests:     50,
		BurstTokens:       100000,
	}, zap.NewNop())

	results := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		go func(n int) {
			res := svc.Check("openai", fmt.Sprintf("client-%d", n%5), 10)
			results <- res.Allowed
		}(i)
	}

	admitted := 0
	for i := 0; i < 100; i++ {
		if <-results {
			admitted++
		}
	}
	assert.Equal(t, 50, admitted, "exactly the burst capacity is admitted")
}
