package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/services"
	"github.com/upb/llm-gateway/services/cache"
	"github.com/upb/llm-gateway/services/costtracking"
	"github.com/upb/llm-gateway/services/providers"
	"github.com/upb/llm-gateway/services/ratelimit"
	"github.com/upb/llm-gateway/services/retry"
	"github.com/upb/llm-gateway/services/routing"
)

// Service sequences every policy into one request lifecycle: cache,
// rate limit, budget, provider selection, retry-wrapped execution, and
// post-success recording. It is the only component that knows the full
// pipeline order.
type Service struct {
	cache       *cache.Service
	rateLimiter *ratelimit.Service
	costTracker *costtracking.Service
	router      *routing.Service
	retryPolicy *retry.Policy
	opts        Options
	logger      *zap.Logger

	mu    sync.Mutex
	stats Stats
}

// NewService creates the execution orchestrator. retryPolicy may be nil,
// in which case providers are called directly once.
func NewService(
	cacheService *cache.Service,
	rateLimiter *ratelimit.Service,
	costTracker *costtracking.Service,
	router *routing.Service,
	retryPolicy *retry.Policy,
	opts Options,
	logger *zap.Logger,
) *Service {
	return &Service{
		cache:       cacheService,
		rateLimiter: rateLimiter,
		costTracker: costTracker,
		router:      router,
		retryPolicy: retryPolicy,
		opts:        opts,
		logger:      logger,
	}
}

// Execute runs a request through the full pipeline and returns a
// complete Result. Policy rejections are normal outcomes carried as
// failure responses; a panic anywhere in the pipeline is converted into
// a FAILED response.
func (s *Service) Execute(ctx context.Context, req *models.Request, budget *models.TokenBudget) (result *Result) {
	start := time.Now()
	result = &Result{}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("execution pipeline panic",
				zap.String("request_id", req.ID),
				zap.Any("panic", r))
			result.Response = models.NewFailureResponse(req, models.StatusFailed,
				fmt.Sprintf("internal error: %v", r))
		}
		result.Timings.Total = time.Since(start)
		s.recordStats(result)
	}()

	s.logger.Debug("starting execution pipeline",
		zap.String("request_id", req.ID),
		zap.String("model", req.Model))

	if err := req.Validate(); err != nil {
		derr := services.WrapError(services.ErrorTypeValidation, "request validation failed", err)
		result.Response = models.NewFailureResponse(req, services.StatusForError(derr), derr.Error())
		return result
	}

	// Step 1: cache lookup. A hit short-circuits everything else and,
	// with cost tracking on, records a zero-cost entry so cached
	// responses never double-charge.
	if s.opts.CacheEnabled && s.cache != nil {
		lookupStart := time.Now()
		cached, hit := s.cache.Get(req)
		result.Timings.CacheLookup = time.Since(lookupStart)

		if hit {
			result.CacheHit = true
			result.Response = cached
			result.Provider = cached.Provider
			if s.opts.CostTrackingEnabled && s.costTracker != nil {
				entry := models.NewCachedCostEntry(req, cached, budgetID(budget), req.ClientID)
				if err := s.costTracker.Record(ctx, entry); err != nil {
					s.logger.Error("failed to record cached cost entry", zap.Error(err))
				}
			}
			s.logger.Debug("cache hit", zap.String("request_id", req.ID))
			return result
		}
	}

	// A provisional provider gives us a token estimate for the rate
	// limit and budget gates; final selection happens below.
	provisional := s.router.SelectProvider(ctx, req.Model, s.opts.PreferredProviders, s.opts.FallbackProviders)
	estimatedTokens := s.estimateTokens(provisional, req)

	// Step 2: rate limit check against the provisional provider's
	// limits.
	if s.opts.RateLimitEnabled && s.rateLimiter != nil && provisional != nil {
		checkStart := time.Now()
		limit := s.rateLimiter.Check(provisional.ProviderID().Name, req.ClientID, estimatedTokens)
		result.Timings.RateLimitCheck = time.Since(checkStart)

		if !limit.Allowed {
			result.RateLimited = true
			result.RetryAfter = limit.RetryAfter
			resp := models.NewFailureResponse(req, models.StatusRateLimited, limit.Reason)
			result.Response = resp
			s.logger.Info("request rate limited",
				zap.String("request_id", req.ID),
				zap.String("reason", limit.Reason),
				zap.Duration("retry_after", limit.RetryAfter))
			return result
		}
	}

	// Step 3: budget check using the model's pricing and the output
	// ceiling.
	if s.opts.CostTrackingEnabled && s.costTracker != nil && budget != nil {
		estimatedCost := s.estimateCost(provisional, req, estimatedTokens)
		status, err := s.costTracker.CheckBudget(ctx, *budget, estimatedCost)
		if err != nil {
			derr := services.WrapInternal("budget check failed", err)
			result.Response = models.NewFailureResponse(req, services.StatusForError(derr), derr.Error())
			return result
		}
		if !status.Allowed {
			result.BudgetExceeded = true
			result.Response = models.NewFailureResponse(req, models.StatusQuotaExceeded, status.Reason)
			s.logger.Info("request exceeded budget",
				zap.String("request_id", req.ID),
				zap.String("budget_id", budget.ID),
				zap.String("reason", status.Reason))
			return result
		}
	}

	// Step 4: provider selection.
	provider := provisional
	if provider == nil {
		provider = s.router.SelectProvider(ctx, req.Model, s.opts.PreferredProviders, s.opts.FallbackProviders)
	}
	if provider == nil {
		result.Response = models.NewFailureResponse(req, models.StatusModelUnavailable,
			fmt.Sprintf("no provider can serve model %q", req.Model))
		return result
	}
	providerName := provider.ProviderID().Name
	result.Provider = providerName

	// Step 5: execution, retry-wrapped when a policy is configured.
	callStart := time.Now()
	resp := s.invoke(ctx, provider, req, budget, result)
	result.Timings.ProviderCall = time.Since(callStart)
	result.Response = resp

	if resp.Status == models.StatusSuccess {
		s.router.RecordSuccess(providerName)
	} else {
		s.router.RecordFailure(providerName)
		return result
	}

	// Step 6: post-processing, only on success.
	resp.Provider = providerName
	s.postProcess(ctx, provider, req, resp, budget)

	s.logger.Info("execution pipeline completed",
		zap.String("request_id", req.ID),
		zap.String("provider", providerName),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Float64("cost", resp.CostEstimate),
		zap.Int("retry_attempts", result.RetryAttempts))

	return result
}

// invoke runs the provider call through the retry policy when one is
// configured, or directly once otherwise. Context deadline overruns are
// translated into TIMEOUT responses so they classify as retryable.
func (s *Service) invoke(ctx context.Context, provider providers.Provider, req *models.Request, budget *models.TokenBudget, result *Result) *models.Response {
	op := func(ctx context.Context) (*models.Response, error) {
		callCtx, cancel := context.WithTimeout(ctx, req.EffectiveTimeout())
		defer cancel()

		resp, err := provider.Generate(callCtx, req, budget)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return models.NewFailureResponse(req, models.StatusTimeout, "provider call timed out"), nil
			}
			return nil, err
		}
		return resp, nil
	}

	if s.retryPolicy == nil {
		resp, err := op(ctx)
		if err != nil {
			derr := services.WrapProvider("provider call failed", err)
			return models.NewFailureResponse(req, services.StatusForError(derr), derr.Error())
		}
		return resp
	}

	retryResult := s.retryPolicy.Execute(ctx, provider.ProviderID().Name, op)
	result.RetryAttempts = len(retryResult.Attempts)
	result.CircuitBreakerOpened = retryResult.CircuitBreakerOpened

	if retryResult.Response == nil {
		if retryResult.CircuitBreakerOpened {
			return models.NewFailureResponse(req, models.StatusModelUnavailable,
				fmt.Sprintf("circuit breaker open for provider %q", provider.ProviderID().Name))
		}
		details := "provider call failed"
		if n := len(retryResult.Attempts); n > 0 && retryResult.Attempts[n-1].Err != "" {
			details = retryResult.Attempts[n-1].Err
		}
		return models.NewFailureResponse(req, models.StatusFailed, details)
	}

	return retryResult.Response
}

// postProcess writes through to the cache, the cost ledger and the rate
// limiter after a successful call. Failures here are logged, never
// propagated: the caller already has its response.
func (s *Service) postProcess(ctx context.Context, provider providers.Provider, req *models.Request, resp *models.Response, budget *models.TokenBudget) {
	if s.opts.CacheEnabled && s.cache != nil {
		s.cache.Put(req, resp)
	}

	if s.opts.CostTrackingEnabled && s.costTracker != nil {
		if model, ok := provider.GetModelInfo(req.Model); ok {
			entry := models.NewCostEntry(req, resp, model, budgetID(budget), req.ClientID)
			resp.CostEstimate = entry.TotalCost
			if err := s.costTracker.Record(ctx, entry); err != nil {
				s.logger.Error("failed to record cost entry",
					zap.String("request_id", req.ID),
					zap.Error(err))
			}
		}
	}

	if s.opts.RateLimitEnabled && s.rateLimiter != nil {
		s.rateLimiter.Record(provider.ProviderID().Name, req.ClientID, resp.Usage.TotalTokens)
	}
}

// estimateTokens asks the provisional provider for an estimate, falling
// back to a character heuristic when none is selectable yet
func (s *Service) estimateTokens(provider providers.Provider, req *models.Request) int {
	text := req.Prompt
	if req.SystemPrompt != "" {
		text = req.SystemPrompt + "\n" + text
	}
	if provider != nil {
		return provider.EstimateTokens(text)
	}
	return len(text) / 4
}

// estimateCost projects the call's cost from the model's per-token
// pricing, assuming the full output ceiling is used
func (s *Service) estimateCost(provider providers.Provider, req *models.Request, estimatedTokens int) float64 {
	if provider == nil {
		return 0
	}
	model, ok := provider.GetModelInfo(req.Model)
	if !ok {
		return 0
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokensEstimate
	}
	return model.EstimateCost(estimatedTokens, maxTokens)
}

// recordStats updates the running aggregate counters
func (s *Service) recordStats(result *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.TotalRequests++
	if result.Success() {
		s.stats.SuccessfulRequests++
	}
	if result.CacheHit {
		s.stats.CacheHits++
	}
	if result.RateLimited {
		s.stats.RateLimitedRequests++
	}
	if result.BudgetExceeded {
		s.stats.BudgetExceededRequests++
	}
}

// GetExecutionStats returns a snapshot of the aggregate counters
func (s *Service) GetExecutionStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stats
}

// budgetID returns the budget's id, or empty when no budget was supplied
func budgetID(budget *models.TokenBudget) string {
	if budget == nil {
		return ""
	}
	return budget.ID
}
