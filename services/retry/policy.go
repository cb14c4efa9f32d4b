package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/upb/llm-gateway/models"
)

// Config holds the backoff and attempt-limit parameters
type Config struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	JitterFactor    float64

	// RetryableReasons is the set of reasons that permit another attempt
	RetryableReasons map[FailureReason]bool

	// ReasonBaseDelays overrides BaseDelay for specific reasons
	ReasonBaseDelays map[FailureReason]time.Duration

	// ReasonMaxAttempts overrides MaxAttempts for specific reasons
	ReasonMaxAttempts map[FailureReason]int
}

// DefaultConfig returns the default retry parameters. Rate-limit backoff
// starts higher and allows more attempts; authentication and quota
// failures are never retried.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		BaseDelay:       time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
		JitterFactor:    0.1,
		RetryableReasons: map[FailureReason]bool{
			ReasonRateLimited:  true,
			ReasonTimeout:      true,
			ReasonServerError:  true,
			ReasonNetworkError: true,
		},
		ReasonBaseDelays: map[FailureReason]time.Duration{
			ReasonRateLimited: 5 * time.Second,
		},
		ReasonMaxAttempts: map[FailureReason]int{
			ReasonRateLimited:         5,
			ReasonAuthenticationError: 1,
			ReasonQuotaExceeded:       1,
		},
	}
}

// Operation is the provider call being wrapped. Ordinary backend failures
// come back as a Response with a failure status; a non-nil error is an
// unexpected condition.
type Operation func(ctx context.Context) (*models.Response, error)

// Attempt records one execution of the operation for observability
type Attempt struct {
	Number    int
	StartedAt time.Time
	Status    models.ResponseStatus
	Reason    FailureReason
	Delay     time.Duration
	Err       string
}

// Result is the typed outcome of a full retry loop
type Result struct {
	Response             *models.Response
	Success              bool
	Attempts             []Attempt
	CircuitBreakerOpened bool
	TotalDelay           time.Duration
}

// Policy executes operations with reason-classified retries, exponential
// backoff with jitter, and a circuit breaker per provider. Breaker state
// transitions are atomic with respect to concurrent attempts against the
// same provider.
type Policy struct {
	config     Config
	breakerCfg BreakerConfig

	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker

	logger *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
	randf func() float64
}

// NewPolicy creates a retry policy
func NewPolicy(config Config, breakerCfg BreakerConfig, logger *zap.Logger) *Policy {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if config.ExponentialBase <= 1 {
		config.ExponentialBase = DefaultConfig().ExponentialBase
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultConfig().BaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = DefaultConfig().MaxDelay
	}
	if config.RetryableReasons == nil {
		config.RetryableReasons = DefaultConfig().RetryableReasons
	}
	if config.ReasonBaseDelays == nil {
		config.ReasonBaseDelays = DefaultConfig().ReasonBaseDelays
	}
	if config.ReasonMaxAttempts == nil {
		config.ReasonMaxAttempts = DefaultConfig().ReasonMaxAttempts
	}

	return &Policy{
		config:     config,
		breakerCfg: breakerCfg.withDefaults(),
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
		logger:     logger,
		sleep:      sleepContext,
		randf:      rand.Float64,
	}
}

// statusFailure carries a failure-status response through the circuit
// breaker so the breaker counts it as a failure
type statusFailure struct {
	resp *models.Response
}

func (e *statusFailure) Error() string {
	return "provider returned status " + string(e.resp.Status)
}

// Execute runs the operation against the named provider until it
// succeeds, a non-retryable failure occurs, attempts are exhausted, or
// the provider's circuit opens.
func (p *Policy) Execute(ctx context.Context, provider string, op Operation) *Result {
	cb := p.breakerFor(provider)
	result := &Result{}

	for attempt := 1; ; attempt++ {
		started := time.Now()

		out, err := cb.Execute(func() (interface{}, error) {
			resp, opErr := op(ctx)
			if opErr != nil {
				return nil, opErr
			}
			if resp.IsSuccess() {
				return resp, nil
			}
			return resp, &statusFailure{resp: resp}
		})

		if err == nil {
			resp := out.(*models.Response)
			result.Response = resp
			result.Success = true
			result.Attempts = append(result.Attempts, Attempt{
				Number:    attempt,
				StartedAt: started,
				Status:    resp.Status,
			})
			return result
		}

		// While the circuit is open, calls are short-circuited without
		// reaching the provider; zero attempts are recorded for them.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			result.CircuitBreakerOpened = true
			p.logger.Warn("circuit breaker rejected call",
				zap.String("provider", provider),
				zap.Int("attempts_so_far", len(result.Attempts)))
			return result
		}

		var sf *statusFailure
		if errors.As(err, &sf) {
			resp := sf.resp
			reason := ClassifyStatus(resp.Status)
			att := Attempt{
				Number:    attempt,
				StartedAt: started,
				Status:    resp.Status,
				Reason:    reason,
			}
			result.Response = resp

			if !p.config.RetryableReasons[reason] || attempt >= p.maxAttemptsFor(reason) {
				result.Attempts = append(result.Attempts, att)
				return result
			}

			delay := p.Delay(attempt, reason)
			att.Delay = delay
			result.Attempts = append(result.Attempts, att)
			result.TotalDelay += delay

			p.logger.Debug("retrying after failure",
				zap.String("provider", provider),
				zap.String("reason", string(reason)),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))

			if err := p.sleep(ctx, delay); err != nil {
				return result
			}
			continue
		}

		// An unexpected error from the operation itself is treated as a
		// network error and terminates the loop: the integration is
		// assumed broken, so further retries would not help. The failure
		// was already recorded against the breaker.
		result.Attempts = append(result.Attempts, Attempt{
			Number:    attempt,
			StartedAt: started,
			Reason:    ReasonNetworkError,
			Err:       err.Error(),
		})
		p.logger.Error("unexpected provider error, aborting retries",
			zap.String("provider", provider),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return result
	}
}

// Delay computes the backoff before the next attempt:
//
//	min(maxDelay, base(reason) * exponentialBase^(attempt-1)) + jitter
func (p *Policy) Delay(attempt int, reason FailureReason) time.Duration {
	base := p.config.BaseDelay
	if override, ok := p.config.ReasonBaseDelays[reason]; ok {
		base = override
	}

	delay := time.Duration(float64(base) * math.Pow(p.config.ExponentialBase, float64(attempt-1)))
	if delay > p.config.MaxDelay {
		delay = p.config.MaxDelay
	}

	jitter := time.Duration(float64(delay) * p.config.JitterFactor * p.randf())
	return delay + jitter
}

// maxAttemptsFor returns the attempt ceiling for a reason
func (p *Policy) maxAttemptsFor(reason FailureReason) int {
	if override, ok := p.config.ReasonMaxAttempts[reason]; ok {
		return override
	}
	return p.config.MaxAttempts
}

// sleepContext waits for the delay or the context, whichever ends first
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
