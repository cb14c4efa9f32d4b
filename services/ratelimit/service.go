package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds the per-provider throughput limits. Burst capacities bound
// short spikes through token buckets; the per-minute ceilings bound the
// sustained rate through sliding windows.
type Config struct {
	RequestsPerMinute int
	TokensPerMinute   int
	BurstRequests     int
	BurstTokens       int
	Window            time.Duration
}

// DefaultConfig returns the default provider limits
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		TokensPerMinute:   100000,
		BurstRequests:     10,
		BurstTokens:       20000,
		Window:            time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = d.RequestsPerMinute
	}
	if c.TokensPerMinute <= 0 {
		c.TokensPerMinute = d.TokensPerMinute
	}
	if c.BurstRequests <= 0 {
		c.BurstRequests = d.BurstRequests
	}
	if c.BurstTokens <= 0 {
		c.BurstTokens = d.BurstTokens
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	return c
}

// Result represents the outcome of an admission check
type Result struct {
	Allowed           bool
	Reason            string
	RetryAfter        time.Duration
	RequestsRemaining int
	TokensRemaining   int
	ResetAt           time.Time
}

// providerState bundles the burst buckets for one provider
type providerState struct {
	requests *tokenBucket
	tokens   *tokenBucket
}

// Service admits or rejects prospective calls per provider, and
// optionally per client, before they reach a backend. All maps are shared
// mutable state guarded by a single mutex per logical operation.
type Service struct {
	mu            sync.Mutex
	defaults      Config
	configs       map[string]Config
	buckets       map[string]*providerState
	windows       map[string]*slidingWindow
	clientWindows map[string]*slidingWindow
	logger        *zap.Logger

	now func() time.Time
}

// NewService creates a rate limiter with the given default limits
func NewService(defaults Config, logger *zap.Logger) *Service {
	return &Service{
		defaults:      defaults.withDefaults(),
		configs:       make(map[string]Config),
		buckets:       make(map[string]*providerState),
		windows:       make(map[string]*slidingWindow),
		clientWindows: make(map[string]*slidingWindow),
		logger:        logger,
		now:           time.Now,
	}
}

// SetProviderConfig overrides the limits for one provider. Existing burst
// buckets are invalidated so they rebuild with the new parameters.
func (s *Service) SetProviderConfig(provider string, cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.configs[provider] = cfg.withDefaults()
	delete(s.buckets, provider)

	s.logger.Info("rate limit config updated",
		zap.String("provider", provider),
		zap.Int("requests_per_minute", cfg.RequestsPerMinute),
		zap.Int("tokens_per_minute", cfg.TokensPerMinute))
}

// Check decides whether a prospective call with the given token estimate
// may proceed. Burst capacity is consumed on admission; the sliding
// window is only consulted here and updated later via Record.
func (s *Service) Check(provider, clientID string, estimatedTokens int) *Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cfg := s.configFor(provider)
	state := s.bucketsFor(provider, cfg, now)

	// Burst control: one request token plus the estimated token cost,
	// atomically under the service lock.
	if !state.requests.consume(1, now) {
		retryAfter := state.requests.timeUntil(1, now)
		return &Result{
			Allowed:    false,
			Reason:     fmt.Sprintf("burst exceeded: request burst capacity %d reached", cfg.BurstRequests),
			RetryAfter: retryAfter,
			ResetAt:    now.Add(retryAfter),
		}
	}
	if !state.tokens.consume(float64(estimatedTokens), now) {
		state.requests.refund(1)
		retryAfter := state.tokens.timeUntil(float64(estimatedTokens), now)
		return &Result{
			Allowed:    false,
			Reason:     fmt.Sprintf("burst exceeded: token burst capacity %d reached", cfg.BurstTokens),
			RetryAfter: retryAfter,
			ResetAt:    now.Add(retryAfter),
		}
	}

	// Sustained control: provider window, then the caller's own window so
	// a noisy client cannot exhaust another client's frame.
	window := s.windowFor(s.windows, provider, cfg)
	if res := s.checkWindow(window, cfg, estimatedTokens, now); res != nil {
		state.requests.refund(1)
		state.tokens.refund(float64(estimatedTokens))
		return res
	}
	if clientID != "" {
		clientWindow := s.windowFor(s.clientWindows, provider+":"+clientID, cfg)
		if res := s.checkWindow(clientWindow, cfg, estimatedTokens, now); res != nil {
			state.requests.refund(1)
			state.tokens.refund(float64(estimatedTokens))
			return res
		}
	}

	requests, tokens := window.counts(now)
	return &Result{
		Allowed:           true,
		RequestsRemaining: cfg.RequestsPerMinute - requests,
		TokensRemaining:   cfg.TokensPerMinute - tokens,
		ResetAt:           window.oldestExpiry(now),
	}
}

// checkWindow applies the sustained-rate rule to one window. Returns nil
// when admitted.
func (s *Service) checkWindow(window *slidingWindow, cfg Config, estimatedTokens int, now time.Time) *Result {
	requests, tokens := window.counts(now)
	if requests >= cfg.RequestsPerMinute || tokens+estimatedTokens > cfg.TokensPerMinute {
		resetAt := window.oldestExpiry(now)
		retryAfter := resetAt.Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return &Result{
			Allowed: false,
			Reason: fmt.Sprintf("sustained exceeded: %d/%d requests, %d/%d tokens in window",
				requests, cfg.RequestsPerMinute, tokens, cfg.TokensPerMinute),
			RetryAfter: retryAfter,
			ResetAt:    resetAt,
		}
	}
	return nil
}

// Record pushes the actual post-execution token usage into the sliding
// windows. Burst buckets were already decremented at check time with the
// estimate.
func (s *Service) Record(provider, clientID string, actualTokens int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cfg := s.configFor(provider)

	s.windowFor(s.windows, provider, cfg).add(now, actualTokens)
	if clientID != "" {
		s.windowFor(s.clientWindows, provider+":"+clientID, cfg).add(now, actualTokens)
	}
}

// Usage represents the current sustained usage for a provider
type Usage struct {
	Requests int
	Tokens   int
}

// CurrentUsage returns the request and token counts inside the provider's
// current window
func (s *Service) CurrentUsage(provider string) Usage {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.configFor(provider)
	requests, tokens := s.windowFor(s.windows, provider, cfg).counts(s.now())
	return Usage{Requests: requests, Tokens: tokens}
}

// configFor returns the provider's limits, falling back to the defaults.
// Caller must hold the lock.
func (s *Service) configFor(provider string) Config {
	if cfg, ok := s.configs[provider]; ok {
		return cfg
	}
	return s.defaults
}

// bucketsFor returns the provider's burst buckets, building them lazily.
// Caller must hold the lock.
func (s *Service) bucketsFor(provider string, cfg Config, now time.Time) *providerState {
	if state, ok := s.buckets[provider]; ok {
		return state
	}

	state := &providerState{
		requests: newTokenBucket(float64(cfg.BurstRequests), float64(cfg.RequestsPerMinute)/60.0, now),
		tokens:   newTokenBucket(float64(cfg.BurstTokens), float64(cfg.TokensPerMinute)/60.0, now),
	}
	s.buckets[provider] = state
	return state
}

// windowFor returns the sliding window stored under key, building it
// lazily. Caller must hold the lock.
func (s *Service) windowFor(windows map[string]*slidingWindow, key string, cfg Config) *slidingWindow {
	if w, ok := windows[key]; ok {
		return w
	}
	w := newSlidingWindow(cfg.Window)
	windows[key] = w
	return w
}
