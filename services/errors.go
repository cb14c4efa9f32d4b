package services

import (
	"errors"
	"fmt"

	"github.com/upb/llm-gateway/models"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeBudget     ErrorType = "budget"
	ErrorTypeRouting    ErrorType = "routing"
	ErrorTypeProvider   ErrorType = "provider"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeCache      ErrorType = "cache"
	ErrorTypeInternal   ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Validation errors
	ErrInvalidRequest  = NewDomainError(ErrorTypeValidation, "invalid request", nil)
	ErrInvalidModel    = NewDomainError(ErrorTypeValidation, "invalid model specified", nil)
	ErrInvalidProvider = NewDomainError(ErrorTypeValidation, "invalid provider specified", nil)
	ErrEmptyPrompt     = NewDomainError(ErrorTypeValidation, "prompt cannot be empty", nil)

	// Rate limit errors
	ErrRateLimitExceeded = NewDomainError(ErrorTypeRateLimit, "rate limit exceeded", nil)
	ErrBurstExceeded     = NewDomainError(ErrorTypeRateLimit, "burst capacity exceeded", nil)
	ErrSustainedExceeded = NewDomainError(ErrorTypeRateLimit, "sustained rate exceeded", nil)

	// Budget errors
	ErrBudgetExceeded  = NewDomainError(ErrorTypeBudget, "budget exceeded", nil)
	ErrBudgetExhausted = NewDomainError(ErrorTypeBudget, "budget exhausted", nil)

	// Routing errors
	ErrNoProviderAvailable = NewDomainError(ErrorTypeRouting, "no provider can serve the requested model", nil)
	ErrProviderNotFound    = NewDomainError(ErrorTypeRouting, "provider not found", nil)

	// Provider errors
	ErrProviderUnavailable = NewDomainError(ErrorTypeProvider, "provider unavailable", nil)
	ErrProviderFailure     = NewDomainError(ErrorTypeProvider, "provider call failed", nil)
	ErrCircuitOpen         = NewDomainError(ErrorTypeProvider, "circuit breaker is open", nil)

	// Timeout errors
	ErrRequestTimeout = NewDomainError(ErrorTypeTimeout, "request timed out", nil)

	// Internal errors
	ErrInternal    = NewDomainError(ErrorTypeInternal, "internal error", nil)
	ErrCacheFailed = NewDomainError(ErrorTypeCache, "cache operation failed", nil)
)

// Error type checking helper functions

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	return hasType(err, ErrorTypeRateLimit)
}

// IsBudgetError checks if an error is a budget error
func IsBudgetError(err error) bool {
	return hasType(err, ErrorTypeBudget)
}

// IsRoutingError checks if an error is a routing error
func IsRoutingError(err error) bool {
	return hasType(err, ErrorTypeRouting)
}

// IsProviderError checks if an error is a provider error
func IsProviderError(err error) bool {
	return hasType(err, ErrorTypeProvider)
}

// IsTimeoutError checks if an error is a timeout error
func IsTimeoutError(err error) bool {
	return hasType(err, ErrorTypeTimeout)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

func hasType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapProvider wraps an error as a provider error
func WrapProvider(message string, err error) error {
	return NewDomainError(ErrorTypeProvider, message, err)
}

// StatusForError maps a domain error to the response status that
// represents it on the response envelope
func StatusForError(err error) models.ResponseStatus {
	switch GetErrorType(err) {
	case ErrorTypeValidation:
		return models.StatusInvalidRequest
	case ErrorTypeRateLimit:
		return models.StatusRateLimited
	case ErrorTypeBudget:
		return models.StatusQuotaExceeded
	case ErrorTypeRouting:
		return models.StatusModelUnavailable
	case ErrorTypeTimeout:
		return models.StatusTimeout
	default:
		return models.StatusFailed
	}
}
