package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/upb/llm-gateway/utils"
)

// RequestType represents the kind of generation being requested
type RequestType string

const (
	RequestTypeCompletion   RequestType = "completion"
	RequestTypeChat         RequestType = "chat"
	RequestTypeConversation RequestType = "conversation"
)

// DefaultRequestTimeout bounds a provider call when the request does not
// set its own timeout
const DefaultRequestTimeout = 30 * time.Second

// Request is the envelope for a single generation request. Sampling
// parameter ranges are enforced by Validate.
type Request struct {
	ID           string      `json:"id" validate:"required"`
	Type         RequestType `json:"type" validate:"required,oneof=completion chat conversation"`
	Model        string      `json:"model" validate:"required"`
	Prompt       string      `json:"prompt" validate:"required"`
	SystemPrompt string      `json:"system_prompt,omitempty"`

	Temperature      float64 `json:"temperature" validate:"gte=0,lte=2"`
	TopP             float64 `json:"top_p" validate:"gte=0,lte=1"`
	FrequencyPenalty float64 `json:"frequency_penalty" validate:"gte=-2,lte=2"`
	PresencePenalty  float64 `json:"presence_penalty" validate:"gte=-2,lte=2"`

	MaxTokens int      `json:"max_tokens,omitempty" validate:"gte=0"`
	Stop      []string `json:"stop,omitempty"`

	Timeout time.Duration `json:"-"`
	Stream  bool          `json:"stream,omitempty"`

	// ClientID identifies the caller for per-client rate limiting and
	// cost attribution
	ClientID string `json:"client_id,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewRequest creates a request with a generated id and defaults applied
func NewRequest(reqType RequestType, model, prompt string) *Request {
	return &Request{
		ID:        uuid.New().String(),
		Type:      reqType,
		Model:     model,
		Prompt:    prompt,
		TopP:      1.0,
		Timeout:   DefaultRequestTimeout,
		CreatedAt: time.Now(),
	}
}

// Validate checks the envelope against its declared constraints
func (r *Request) Validate() error {
	if err := utils.ValidateStruct(r); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(r.Stop))
	for _, s := range r.Stop {
		if _, dup := seen[s]; dup {
			return fmt.Errorf("duplicate stop sequence: %q", s)
		}
		seen[s] = struct{}{}
	}

	return nil
}

// ValidateForModel additionally checks limits that depend on the target
// model's catalog entry
func (r *Request) ValidateForModel(model ModelIdentity) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.MaxTokens > model.MaxOutputTokens {
		return fmt.Errorf("max_tokens %d exceeds model %s output limit %d",
			r.MaxTokens, model.Name, model.MaxOutputTokens)
	}
	return nil
}

// EffectiveTimeout returns the request timeout, falling back to the
// gateway default
func (r *Request) EffectiveTimeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return DefaultRequestTimeout
}
