package retry

import (
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig holds the per-provider circuit breaker parameters
type BreakerConfig struct {
	FailureThreshold uint32
	SuccessThreshold uint32
	Timeout          time.Duration
}

// DefaultBreakerConfig returns the default circuit breaker parameters
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	d := DefaultBreakerConfig()
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// breakerFor returns the provider's circuit breaker, creating it on first
// use
func (p *Policy) breakerFor(provider string) *gobreaker.CircuitBreaker {
	p.mu.RLock()
	if cb, exists := p.breakers[provider]; exists {
		p.mu.RUnlock()
		return cb
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another goroutine may have created it while we waited.
	if cb, exists := p.breakers[provider]; exists {
		return cb
	}

	cfg := p.breakerCfg
	settings := gobreaker.Settings{
		Name: "llm-provider-" + provider,
		// HALF_OPEN closes after SuccessThreshold consecutive successes;
		// gobreaker bounds half-open admissions by MaxRequests.
		MaxRequests: cfg.SuccessThreshold,
		Interval:    0,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			p.logger.Info("circuit breaker state changed",
				zap.String("provider", provider),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	cb := gobreaker.NewCircuitBreaker(settings)
	p.breakers[provider] = cb
	return cb
}

// BreakerStates returns the current state of every provider breaker for
// monitoring
func (p *Policy) BreakerStates() map[string]gobreaker.State {
	p.mu.RLock()
	defer p.mu.RUnlock()

	states := make(map[string]gobreaker.State, len(p.breakers))
	for provider, cb := range p.breakers {
		states[provider] = cb.State()
	}
	return states
}
