package models

import (
	"errors"
	"fmt"
)

// ModelCapability represents a capability exposed by a model
type ModelCapability string

const (
	CapabilityTextGeneration  ModelCapability = "text_generation"
	CapabilityChat            ModelCapability = "chat"
	CapabilityConversation    ModelCapability = "conversation"
	CapabilityCodeGeneration  ModelCapability = "code_generation"
	CapabilityFunctionCalling ModelCapability = "function_calling"
	CapabilityEmbeddings      ModelCapability = "embeddings"
	CapabilityVision          ModelCapability = "vision"
)

// ModelIdentity describes a specific named model offered by a provider,
// including its context limits and per-token pricing. Immutable value
// object; a catalog of these is built once per provider at startup.
type ModelIdentity struct {
	Name             string
	Provider         ProviderIdentity
	Capabilities     []ModelCapability
	MaxContextTokens int
	MaxOutputTokens  int
	InputTokenCost   float64
	OutputTokenCost  float64
}

// NewModelIdentity creates a validated ModelIdentity
func NewModelIdentity(
	name string,
	provider ProviderIdentity,
	capabilities []ModelCapability,
	maxContextTokens, maxOutputTokens int,
	inputTokenCost, outputTokenCost float64,
) (ModelIdentity, error) {
	if name == "" {
		return ModelIdentity{}, errors.New("model name cannot be empty")
	}
	if maxContextTokens <= 0 {
		return ModelIdentity{}, fmt.Errorf("max context tokens must be positive, got %d", maxContextTokens)
	}
	if maxOutputTokens <= 0 {
		return ModelIdentity{}, fmt.Errorf("max output tokens must be positive, got %d", maxOutputTokens)
	}
	if maxOutputTokens > maxContextTokens {
		return ModelIdentity{}, fmt.Errorf("max output tokens (%d) cannot exceed max context tokens (%d)",
			maxOutputTokens, maxContextTokens)
	}
	if inputTokenCost < 0 || outputTokenCost < 0 {
		return ModelIdentity{}, errors.New("token costs cannot be negative")
	}

	caps := make([]ModelCapability, len(capabilities))
	copy(caps, capabilities)

	return ModelIdentity{
		Name:             name,
		Provider:         provider,
		Capabilities:     caps,
		MaxContextTokens: maxContextTokens,
		MaxOutputTokens:  maxOutputTokens,
		InputTokenCost:   inputTokenCost,
		OutputTokenCost:  outputTokenCost,
	}, nil
}

// HasCapability reports whether the model supports a capability
func (m ModelIdentity) HasCapability(capability ModelCapability) bool {
	for _, c := range m.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// EstimateCost computes the cost for the given token counts
func (m ModelIdentity) EstimateCost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*m.InputTokenCost + float64(outputTokens)*m.OutputTokenCost
}

// String returns a human-readable representation
func (m ModelIdentity) String() string {
	return fmt.Sprintf("%s/%s", m.Provider.Name, m.Name)
}
