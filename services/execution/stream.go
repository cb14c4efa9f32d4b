package execution

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/services"
	"github.com/upb/llm-gateway/services/providers"
)

// ExecuteStream runs the streaming variant of the pipeline: rate limit
// check and provider selection only. Streams cannot be buffered and
// replayed, so caching, budget gating and retry wrapping do not apply.
// A nil channel is returned together with a failure Result when a stage
// rejects; otherwise the provider's chunks are forwarded and any
// mid-stream provider error becomes a single terminal error chunk.
func (s *Service) ExecuteStream(ctx context.Context, req *models.Request, budget *models.TokenBudget) (<-chan providers.StreamChunk, *Result) {
	start := time.Now()
	result := &Result{}

	defer func() {
		result.Timings.Total = time.Since(start)
		s.recordStats(result)
	}()

	if err := req.Validate(); err != nil {
		result.Response = models.NewFailureResponse(req, models.StatusInvalidRequest, err.Error())
		return nil, result
	}

	provider := s.router.SelectProvider(ctx, req.Model, s.opts.PreferredProviders, s.opts.FallbackProviders)
	if provider == nil {
		result.Response = models.NewFailureResponse(req, models.StatusModelUnavailable,
			fmt.Sprintf("no provider can serve model %q", req.Model))
		return nil, result
	}
	providerName := provider.ProviderID().Name
	result.Provider = providerName

	if s.opts.RateLimitEnabled && s.rateLimiter != nil {
		checkStart := time.Now()
		limit := s.rateLimiter.Check(providerName, req.ClientID, s.estimateTokens(provider, req))
		result.Timings.RateLimitCheck = time.Since(checkStart)

		if !limit.Allowed {
			result.RateLimited = true
			result.RetryAfter = limit.RetryAfter
			result.Response = models.NewFailureResponse(req, models.StatusRateLimited, limit.Reason)
			return nil, result
		}
	}

	upstream, err := provider.GenerateStream(ctx, req, budget)
	if err != nil {
		s.router.RecordFailure(providerName)
		derr := services.WrapProvider("streaming call failed", err)
		result.Response = models.NewFailureResponse(req, services.StatusForError(derr), derr.Error())
		return nil, result
	}

	out := make(chan providers.StreamChunk)
	go s.forwardStream(ctx, providerName, upstream, out)

	result.Response = &models.Response{
		ID:        req.ID,
		RequestID: req.ID,
		Status:    models.StatusSuccess,
		Content:   "(streaming)",
		Model:     req.Model,
		Provider:  providerName,
		CreatedAt: time.Now(),
	}
	return out, result
}

// forwardStream copies provider chunks to the caller, translating any
// mid-stream provider error into one terminal error chunk
func (s *Service) forwardStream(ctx context.Context, providerName string, upstream <-chan providers.StreamChunk, out chan<- providers.StreamChunk) {
	defer close(out)

	// Terminal sends on cancellation are best-effort: the caller may
	// already have stopped draining.
	emitTerminal := func(err error) {
		select {
		case out <- providers.StreamChunk{Done: true, Err: err}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			emitTerminal(ctx.Err())
			return
		case chunk, ok := <-upstream:
			if !ok {
				s.router.RecordSuccess(providerName)
				return
			}
			if chunk.Err != nil {
				s.router.RecordFailure(providerName)
				s.logger.Warn("mid-stream provider error",
					zap.String("provider", providerName),
					zap.Error(chunk.Err))
				select {
				case out <- providers.StreamChunk{Done: true, Err: chunk.Err}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				emitTerminal(ctx.Err())
				return
			}
		}
	}
}
