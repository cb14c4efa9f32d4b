package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProvider(t *testing.T) ProviderIdentity {
	t.Helper()
	p, err := NewProviderIdentity("openai", CategoryCommercialAPI)
	require.NoError(t, err)
	return p
}

func TestNewProviderIdentity(t *testing.T) {
	t.Run("valid with options", func(t *testing.T) {
		p, err := NewProviderIdentity("anthropic", CategoryCommercialAPI,
			WithRegion("us-east-1"), WithVersion("2024-06"))
		require.NoError(t, err)
		assert.Equal(t, "us-east-1", p.Region)
		assert.Equal(t, "2024-06", p.Version)
		assert.Contains(t, p.String(), "anthropic")
	})

	t.Run("empty name rejected", func(t *testing.T) {
		_, err := NewProviderIdentity("", CategoryLocalServer)
		assert.Error(t, err)
	})

	t.Run("unknown category rejected", func(t *testing.T) {
		_, err := NewProviderIdentity("x", ProviderCategory("cloud"))
		assert.Error(t, err)
	})

	t.Run("equality is by name", func(t *testing.T) {
		a, _ := NewProviderIdentity("ollama", CategoryLocalServer)
		b, _ := NewProviderIdentity("ollama", CategoryCustom, WithRegion("eu"))
		c, _ := NewProviderIdentity("vllm", CategoryLocalServer)

		assert.True(t, a.Equal(b))
		assert.False(t, a.Equal(c))
	})
}

func TestNewModelIdentity(t *testing.T) {
	provider := testProvider(t)

	t.Run("valid model", func(t *testing.T) {
		m, err := NewModelIdentity("gpt-4o-mini", provider,
			[]ModelCapability{CapabilityChat, CapabilityTextGeneration},
			128000, 16384, 0.00000015, 0.0000006)
		require.NoError(t, err)
		assert.True(t, m.HasCapability(CapabilityChat))
		assert.False(t, m.HasCapability(CapabilityVision))
		assert.Equal(t, "openai/gpt-4o-mini", m.String())
	})

	t.Run("rejections", func(t *testing.T) {
		tests := []struct {
			name       string
			modelName  string
			maxContext int
			maxOutput  int
			inCost     float64
			outCost    float64
		}{
			{"empty name", "", 1000, 100, 0, 0},
			{"zero context", "m", 0, 100, 0, 0},
			{"zero output", "m", 1000, 0, 0, 0},
			{"output exceeds context", "m", 1000, 1001, 0, 0},
			{"negative input cost", "m", 1000, 100, -0.1, 0},
			{"negative output cost", "m", 1000, 100, 0, -0.1},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := NewModelIdentity(tt.modelName, provider, nil,
					tt.maxContext, tt.maxOutput, tt.inCost, tt.outCost)
				assert.Error(t, err)
			})
		}
	})

	t.Run("capabilities slice is copied", func(t *testing.T) {
		caps := []ModelCapability{CapabilityChat}
		m, err := NewModelIdentity("m", provider, caps, 1000, 100, 0, 0)
		require.NoError(t, err)

		caps[0] = CapabilityVision
		assert.True(t, m.HasCapability(CapabilityChat))
	})
}

func TestModelIdentity_EstimateCost(t *testing.T) {
	provider := testProvider(t)
	m, err := NewModelIdentity("m", provider, nil, 1000, 500, 0.00003, 0.00006)
	require.NoError(t, err)

	assert.InDelta(t, 0.00165, m.EstimateCost(25, 15), 1e-9)
	assert.Equal(t, 0.0, m.EstimateCost(0, 0))
}
