package providers

import (
	"context"

	"github.com/upb/llm-gateway/models"
)

// Provider is the contract every LLM backend adapter implements. Ordinary
// backend failures (rate limits, timeouts, server errors) must be encoded
// as a Response carrying a failure status; a non-nil error is reserved for
// truly unexpected conditions.
type Provider interface {
	// ProviderID returns the immutable identity of this backend
	ProviderID() models.ProviderIdentity

	// SupportedModels returns the model catalog built at registration
	SupportedModels() []models.ModelIdentity

	// IsAvailable reports whether the backend is currently reachable
	IsAvailable(ctx context.Context) bool

	// Generate performs a single blocking generation call
	Generate(ctx context.Context, req *models.Request, budget *models.TokenBudget) (*models.Response, error)

	// GenerateStream performs a streaming generation call. The returned
	// channel is closed after the terminal chunk.
	GenerateStream(ctx context.Context, req *models.Request, budget *models.TokenBudget) (<-chan StreamChunk, error)

	// EstimateTokens estimates the token count of a piece of text
	EstimateTokens(text string) int

	// ValidateRequest checks whether this backend can accept the request
	ValidateRequest(req *models.Request) error

	// GetModelInfo looks up a model in this provider's catalog
	GetModelInfo(name string) (models.ModelIdentity, bool)

	// HealthCheck returns a diagnostic status map
	HealthCheck(ctx context.Context) map[string]interface{}
}

// StreamChunk is one element of a streaming generation. A chunk either
// carries content or a terminal error, never both.
type StreamChunk struct {
	Content string
	Done    bool
	Err     error
}
