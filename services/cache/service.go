package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/upb/llm-gateway/models"
)

// DefaultMaxEntries bounds the cache size when no limit is configured
const DefaultMaxEntries = 1024

// cacheKeyFields are the request fields that determine response equality
type cacheKeyFields struct {
	Type             models.RequestType `json:"type"`
	Model            string             `json:"model"`
	Prompt           string             `json:"prompt"`
	SystemPrompt     string             `json:"system_prompt"`
	Temperature      float64            `json:"temperature"`
	TopP             float64            `json:"top_p"`
	FrequencyPenalty float64            `json:"frequency_penalty"`
	PresencePenalty  float64            `json:"presence_penalty"`
	MaxTokens        int                `json:"max_tokens"`
	Stop             []string           `json:"stop"`
}

// Service is an in-process response cache with TTL expiry and LRU
// eviction. Key derivation from a request is owned here, not by the
// orchestrator.
type Service struct {
	lru *expirable.LRU[string, models.Response]
	ttl time.Duration

	mu     sync.Mutex
	hits   uint64
	misses uint64

	logger *zap.Logger
}

// NewService creates a response cache. Entries expire after ttl and the
// least recently used entry is evicted once maxEntries is reached.
func NewService(maxEntries int, ttl time.Duration, logger *zap.Logger) *Service {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	return &Service{
		lru:    expirable.NewLRU[string, models.Response](maxEntries, nil, ttl),
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns the cached response for an identical earlier request
func (s *Service) Get(req *models.Request) (*models.Response, bool) {
	key := Key(req)

	resp, ok := s.lru.Get(key)

	s.mu.Lock()
	if ok {
		s.hits++
	} else {
		s.misses++
	}
	s.mu.Unlock()

	if !ok {
		return nil, false
	}
	return &resp, true
}

// Put stores a response under the request's derived key
func (s *Service) Put(req *models.Request, resp *models.Response) {
	s.lru.Add(Key(req), *resp)
}

// Invalidate removes the entry for a request
func (s *Service) Invalidate(req *models.Request) {
	s.lru.Remove(Key(req))
}

// Purge removes all entries
func (s *Service) Purge() {
	s.lru.Purge()
}

// Stats represents cache statistics
type Stats struct {
	Size    int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// GetStats returns cache statistics
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		Size:   s.lru.Len(),
		Hits:   s.hits,
		Misses: s.misses,
	}
	if total := s.hits + s.misses; total > 0 {
		stats.HitRate = float64(s.hits) / float64(total)
	}
	return stats
}

// TTL returns the configured entry lifetime
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Key derives the cache key for a request from its semantically relevant
// fields
func Key(req *models.Request) string {
	fields := cacheKeyFields{
		Type:             req.Type,
		Model:            req.Model,
		Prompt:           req.Prompt,
		SystemPrompt:     req.SystemPrompt,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		MaxTokens:        req.MaxTokens,
		Stop:             req.Stop,
	}

	payload, _ := json.Marshal(fields)
	digest := sha256.Sum256(payload)
	return hex.EncodeToString(digest[:])
}
