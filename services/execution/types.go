package execution

import (
	"time"

	"github.com/upb/llm-gateway/models"
)

// DefaultMaxTokensEstimate is assumed for cost projection when a request
// does not set max_tokens
const DefaultMaxTokensEstimate = 100

// Options controls which pipeline stages are active
type Options struct {
	CacheEnabled        bool
	RateLimitEnabled    bool
	CostTrackingEnabled bool

	// PreferredProviders are tried first, in order; FallbackProviders
	// are the last resort and bypass health gating
	PreferredProviders []string
	FallbackProviders  []string
}

// Timings carries per-stage latency measurements for one execution
type Timings struct {
	CacheLookup    time.Duration
	RateLimitCheck time.Duration
	ProviderCall   time.Duration
	Total          time.Duration
}

// Result is the single structured outcome of one pipeline run. The
// orchestrator always produces a complete Result and never propagates a
// raw panic or error to the caller.
type Result struct {
	Response *models.Response

	CacheHit             bool
	RateLimited          bool
	BudgetExceeded       bool
	CircuitBreakerOpened bool
	RetryAttempts        int

	// RetryAfter is populated on a rate-limited rejection so the
	// caller knows when capacity frees up
	RetryAfter time.Duration

	Provider string

	Timings Timings
}

// Success reports whether the final response status is SUCCESS
func (r *Result) Success() bool {
	return r.Response != nil && r.Response.Status == models.StatusSuccess
}

// Stats are the orchestrator's running aggregate counters
type Stats struct {
	TotalRequests          uint64
	SuccessfulRequests     uint64
	CacheHits              uint64
	RateLimitedRequests    uint64
	BudgetExceededRequests uint64
}
