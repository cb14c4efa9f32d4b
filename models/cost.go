package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// CostEntry is an immutable record of the token usage and computed cost
// of one completed call. Entries are built deterministically from a
// (request, response) pair using the model's per-token prices, with all
// costs rounded to 4 decimal places.
type CostEntry struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	RequestID    string    `json:"request_id"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	TotalTokens  int       `json:"total_tokens"`
	InputCost    float64   `json:"input_cost"`
	OutputCost   float64   `json:"output_cost"`
	TotalCost    float64   `json:"total_cost"`
	BudgetID     string    `json:"budget_id,omitempty"`
	ClientID     string    `json:"client_id,omitempty"`
}

// NewCostEntry derives a cost entry from a completed request/response
// pair and the serving model's pricing
func NewCostEntry(req *Request, resp *Response, model ModelIdentity, budgetID, clientID string) CostEntry {
	inputCost := roundCost(float64(resp.Usage.InputTokens) * model.InputTokenCost)
	outputCost := roundCost(float64(resp.Usage.OutputTokens) * model.OutputTokenCost)

	return CostEntry{
		ID:           uuid.New().String(),
		Timestamp:    time.Now(),
		Provider:     model.Provider.Name,
		Model:        model.Name,
		RequestID:    req.ID,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		InputCost:    inputCost,
		OutputCost:   outputCost,
		TotalCost:    roundCost(inputCost + outputCost),
		BudgetID:     budgetID,
		ClientID:     clientID,
	}
}

// NewCachedCostEntry builds the zero-cost entry recorded for a cache hit
// so that cached responses never double-charge
func NewCachedCostEntry(req *Request, resp *Response, budgetID, clientID string) CostEntry {
	return CostEntry{
		ID:           uuid.New().String(),
		Timestamp:    time.Now(),
		Provider:     resp.Provider,
		Model:        resp.Model,
		RequestID:    req.ID,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		BudgetID:     budgetID,
		ClientID:     clientID,
	}
}

// roundCost rounds a dollar amount to 4 decimal places
func roundCost(v float64) float64 {
	return math.Round(v*10000) / 10000
}
