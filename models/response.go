package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ResponseStatus is the closed set of terminal statuses a response can
// carry
type ResponseStatus string

const (
	StatusSuccess          ResponseStatus = "success"
	StatusPartialSuccess   ResponseStatus = "partial_success"
	StatusFailed           ResponseStatus = "failed"
	StatusRateLimited      ResponseStatus = "rate_limited"
	StatusQuotaExceeded    ResponseStatus = "quota_exceeded"
	StatusModelUnavailable ResponseStatus = "model_unavailable"
	StatusInvalidRequest   ResponseStatus = "invalid_request"
	StatusTimeout          ResponseStatus = "timeout"
)

// TokenUsage carries the token counters reported for one call
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response is the envelope for the outcome of a generation request.
// A response either is success-like and carries content, or carries
// ErrorDetails; never both absent.
type Response struct {
	ID           string          `json:"id"`
	RequestID    string          `json:"request_id"`
	Status       ResponseStatus  `json:"status"`
	Content      string          `json:"content,omitempty"`
	Model        string          `json:"model,omitempty"`
	Provider     string          `json:"provider,omitempty"`
	Usage        TokenUsage      `json:"usage"`
	CostEstimate float64         `json:"cost_estimate"`
	FinishReason string          `json:"finish_reason,omitempty"`
	ErrorDetails string          `json:"error_details,omitempty"`
	Raw          json.RawMessage `json:"raw,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	LatencyMs    int             `json:"latency_ms"`
}

// NewSuccessResponse builds a success response for a request
func NewSuccessResponse(req *Request, content string, usage TokenUsage, finishReason string) *Response {
	return &Response{
		ID:           req.ID,
		RequestID:    req.ID,
		Status:       StatusSuccess,
		Content:      content,
		Model:        req.Model,
		Usage:        usage,
		FinishReason: finishReason,
		CreatedAt:    time.Now(),
	}
}

// NewFailureResponse builds a response carrying a failure status and a
// human-readable reason
func NewFailureResponse(req *Request, status ResponseStatus, details string) *Response {
	return &Response{
		ID:           req.ID,
		RequestID:    req.ID,
		Status:       status,
		Model:        req.Model,
		ErrorDetails: details,
		CreatedAt:    time.Now(),
	}
}

// IsSuccess reports whether the status is success-like
func (r *Response) IsSuccess() bool {
	return r.Status == StatusSuccess || r.Status == StatusPartialSuccess
}

// Validate checks the success/error invariant and usage consistency
func (r *Response) Validate() error {
	switch r.Status {
	case StatusSuccess, StatusPartialSuccess, StatusFailed, StatusRateLimited,
		StatusQuotaExceeded, StatusModelUnavailable, StatusInvalidRequest, StatusTimeout:
	default:
		return fmt.Errorf("unknown response status: %q", r.Status)
	}

	if r.IsSuccess() {
		if r.Content == "" {
			return errors.New("success response must carry content")
		}
	} else if r.ErrorDetails == "" {
		return errors.New("failure response must carry error details")
	}

	if r.Usage.TotalTokens != r.Usage.InputTokens+r.Usage.OutputTokens {
		return fmt.Errorf("token usage inconsistent: %d + %d != %d",
			r.Usage.InputTokens, r.Usage.OutputTokens, r.Usage.TotalTokens)
	}

	return nil
}
