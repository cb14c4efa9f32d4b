package routing

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/upb/llm-gateway/services/providers"
)

// maxConsecutiveFailures is the failure streak after which a provider is
// no longer considered healthy
const maxConsecutiveFailures = 3

// Service selects a concrete provider for a model, honoring ordered
// preference and fallback lists. Selection order:
//
//  1. each preferred provider, in order, if it can serve the model and
//     is healthy;
//  2. any registered provider that can serve the model and is healthy;
//  3. each fallback provider, in order, if it can serve the model,
//     regardless of health. Fallbacks are the last resort and bypass
//     health gating intentionally.
type Service struct {
	registry *providers.Registry
	logger   *zap.Logger

	mu       sync.Mutex
	failures map[string]int
}

// NewService creates a provider router backed by the registry
func NewService(registry *providers.Registry, logger *zap.Logger) *Service {
	return &Service{
		registry: registry,
		logger:   logger,
		failures: make(map[string]int),
	}
}

// SelectProvider returns a provider able to serve the model, or nil when
// no registered provider matches at any stage.
func (s *Service) SelectProvider(ctx context.Context, model string, preferred, fallback []string) providers.Provider {
	for _, name := range preferred {
		p, err := s.registry.Get(name)
		if err != nil {
			continue
		}
		if s.canServe(p, model) && s.isHealthy(ctx, p) {
			return p
		}
	}

	for _, p := range s.registry.List() {
		if s.canServe(p, model) && s.isHealthy(ctx, p) {
			return p
		}
	}

	for _, name := range fallback {
		p, err := s.registry.Get(name)
		if err != nil {
			continue
		}
		if s.canServe(p, model) {
			s.logger.Warn("routing to fallback provider",
				zap.String("provider", name),
				zap.String("model", model))
			return p
		}
	}

	s.logger.Warn("no provider can serve model", zap.String("model", model))
	return nil
}

// RecordSuccess resets the provider's consecutive failure count
func (s *Service) RecordSuccess(provider string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.failures, provider)
}

// RecordFailure increments the provider's consecutive failure count
func (s *Service) RecordFailure(provider string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[provider]++
	if s.failures[provider] == maxConsecutiveFailures {
		s.logger.Warn("provider marked unhealthy",
			zap.String("provider", provider),
			zap.Int("consecutive_failures", s.failures[provider]))
	}
}

// ConsecutiveFailures returns the provider's current failure streak
func (s *Service) ConsecutiveFailures(provider string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.failures[provider]
}

// canServe reports whether the provider's catalog lists the model
func (s *Service) canServe(p providers.Provider, model string) bool {
	_, ok := p.GetModelInfo(model)
	return ok
}

// isHealthy reports whether the provider is available and below the
// failure streak threshold
func (s *Service) isHealthy(ctx context.Context, p providers.Provider) bool {
	name := p.ProviderID().Name

	s.mu.Lock()
	failures := s.failures[name]
	s.mu.Unlock()

	if failures >= maxConsecutiveFailures {
		return false
	}
	return p.IsAvailable(ctx)
}
