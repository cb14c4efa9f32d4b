package retry

import (
	"github.com/upb/llm-gateway/models"
)

// FailureReason classifies why an attempt failed. The classification, not
// the Go error type, decides whether an attempt is retried.
type FailureReason string

const (
	ReasonRateLimited         FailureReason = "rate_limited"
	ReasonTimeout             FailureReason = "timeout"
	ReasonServerError         FailureReason = "server_error"
	ReasonModelUnavailable    FailureReason = "model_unavailable"
	ReasonQuotaExceeded       FailureReason = "quota_exceeded"
	ReasonNetworkError        FailureReason = "network_error"
	ReasonAuthenticationError FailureReason = "authentication_error"
	ReasonUnknown             FailureReason = "unknown"
)

// ClassifyStatus maps a terminal response status to its failure reason
func ClassifyStatus(status models.ResponseStatus) FailureReason {
	switch status {
	case models.StatusRateLimited:
		return ReasonRateLimited
	case models.StatusTimeout:
		return ReasonTimeout
	case models.StatusFailed:
		return ReasonServerError
	case models.StatusModelUnavailable:
		return ReasonModelUnavailable
	case models.StatusQuotaExceeded:
		return ReasonQuotaExceeded
	default:
		return ReasonUnknown
	}
}
