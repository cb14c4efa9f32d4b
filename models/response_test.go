package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponse_IsSuccess(t *testing.T) {
	tests := []struct {
		status  ResponseStatus
		success bool
	}{
		{StatusSuccess, true},
		{StatusPartialSuccess, true},
		{StatusFailed, false},
		{StatusRateLimited, false},
		{StatusQuotaExceeded, false},
		{StatusModelUnavailable, false},
		{StatusInvalidRequest, false},
		{StatusTimeout, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			r := &Response{Status: tt.status}
			assert.Equal(t, tt.success, r.IsSuccess())
		})
	}
}

func TestResponse_Validate(t *testing.T) {
	req := NewRequest(RequestTypeChat, "m", "hello")

	t.Run("valid success response", func(t *testing.T) {
		resp := NewSuccessResponse(req, "hi there", TokenUsage{
			InputTokens: 10, OutputTokens: 5, TotalTokens: 15,
		}, "stop")
		assert.NoError(t, resp.Validate())
	})

	t.Run("valid failure response", func(t *testing.T) {
		resp := NewFailureResponse(req, StatusRateLimited, "provider limit reached")
		assert.NoError(t, resp.Validate())
	})

	t.Run("success without content rejected", func(t *testing.T) {
		resp := NewSuccessResponse(req, "", TokenUsage{}, "stop")
		assert.Error(t, resp.Validate())
	})

	t.Run("failure without details rejected", func(t *testing.T) {
		resp := NewFailureResponse(req, StatusTimeout, "")
		assert.Error(t, resp.Validate())
	})

	t.Run("inconsistent token usage rejected", func(t *testing.T) {
		resp := NewSuccessResponse(req, "hi", TokenUsage{
			InputTokens: 10, OutputTokens: 5, TotalTokens: 16,
		}, "stop")
		assert.Error(t, resp.Validate())
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		resp := &Response{Status: ResponseStatus("pending"), Content: "x"}
		assert.Error(t, resp.Validate())
	})
}
