package costtracking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-gateway/models"
)

const (
	// DefaultRetention is how long ledger entries are kept
	DefaultRetention = 90 * 24 * time.Hour

	// DefaultProjectionFactor inflates current consumption when checking
	// admission headroom
	DefaultProjectionFactor = 1.2

	// DefaultAtRiskThreshold is the utilization percentage above which a
	// budget is flagged at risk
	DefaultAtRiskThreshold = 80.0

	// consumptionWindow bounds how far back CheckBudget looks
	consumptionWindow = 30 * 24 * time.Hour

	// cleanupEvery triggers retention pruning every Nth insert
	cleanupEvery = 100
)

// BudgetStatus is the result of a budget admission check
type BudgetStatus struct {
	Allowed              bool
	CurrentConsumption   float64
	ProjectedConsumption float64
	Remaining            float64
	UtilizationPercent   float64
	IsExceeded           bool
	IsAtRisk             bool
	Reason               string
}

// UsageSummary aggregates ledger activity over a time range
type UsageSummary struct {
	Start               time.Time
	End                 time.Time
	TotalRequests       int
	TotalTokens         int
	TotalCost           float64
	CostByProvider      map[string]float64
	CostByModel         map[string]float64
	AvgCostPerRequest   float64
	AvgTokensPerRequest float64
}

// Projection extrapolates a budget's spend linearly from recent history
type Projection struct {
	BudgetID       string
	DailyAvgCost   float64
	ProjectedCost  float64
	DaysAhead      int
	Confidence     string // high, medium, low
	Trend          string // increasing, decreasing, stable
	DaysWithData   int
	WindowedSpend  float64
}

// LedgerStore persists cost entries durably; the in-memory ledger remains
// authoritative for admission decisions
type LedgerStore interface {
	Insert(ctx context.Context, entry models.CostEntry) error
	CleanupOld(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Service computes, records and enforces spend. The ledger is append-only
// under a mutex; reads copy the slices they need so periodic cleanup
// cannot race concurrent readers.
type Service struct {
	mu               sync.Mutex
	entries          []models.CostEntry
	byBudget         map[string][]models.CostEntry
	retention        time.Duration
	projectionFactor float64
	atRiskThreshold  float64
	inserts          int
	store            LedgerStore
	logger           *zap.Logger

	now func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithRetention overrides the ledger retention window
func WithRetention(retention time.Duration) Option {
	return func(s *Service) { s.retention = retention }
}

// WithProjectionFactor overrides the admission projection factor
func WithProjectionFactor(factor float64) Option {
	return func(s *Service) { s.projectionFactor = factor }
}

// WithAtRiskThreshold overrides the at-risk utilization percentage
func WithAtRiskThreshold(threshold float64) Option {
	return func(s *Service) { s.atRiskThreshold = threshold }
}

// WithLedgerStore attaches a durable write-through store
func WithLedgerStore(store LedgerStore) Option {
	return func(s *Service) { s.store = store }
}

// NewService creates a cost tracker
func NewService(logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		byBudget:         make(map[string][]models.CostEntry),
		retention:        DefaultRetention,
		projectionFactor: DefaultProjectionFactor,
		atRiskThreshold:  DefaultAtRiskThreshold,
		logger:           logger,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record appends an entry to the global and per-budget ledgers. Every
// cleanupEvery inserts, entries older than the retention window are
// dropped.
func (s *Service) Record(ctx context.Context, entry models.CostEntry) error {
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	if entry.BudgetID != "" {
		s.byBudget[entry.BudgetID] = append(s.byBudget[entry.BudgetID], entry)
	}
	s.inserts++
	runCleanup := s.inserts%cleanupEvery == 0
	s.mu.Unlock()

	if runCleanup {
		s.cleanupExpired()
	}

	if s.store != nil {
		if err := s.store.Insert(ctx, entry); err != nil {
			// Durable store failures must not reject the call itself;
			// the in-memory ledger already holds the entry.
			s.logger.Error("failed to persist cost entry",
				zap.String("entry_id", entry.ID),
				zap.Error(err))
		}
	}

	return nil
}

// CheckBudget decides whether an estimated cost may be admitted against
// the budget, based on the budget's recent ledger consumption.
func (s *Service) CheckBudget(ctx context.Context, budget models.TokenBudget, estimatedCost float64) (*BudgetStatus, error) {
	if estimatedCost < 0 {
		return nil, fmt.Errorf("estimated cost cannot be negative: %f", estimatedCost)
	}

	recent := s.budgetEntriesSince(budget.ID, s.now().Add(-consumptionWindow))

	var current float64
	for _, e := range recent {
		current += e.TotalCost
	}

	status := &BudgetStatus{
		CurrentConsumption:   current,
		ProjectedConsumption: current * s.projectionFactor,
	}

	// Unlimited budgets always admit.
	if budget.CostLimit == 0 {
		status.Allowed = true
		status.Remaining = -1
		return status, nil
	}

	status.Remaining = budget.CostLimit - current
	if status.Remaining < 0 {
		status.Remaining = 0
	}
	status.UtilizationPercent = current / budget.CostLimit * 100
	status.IsExceeded = current > budget.CostLimit
	status.IsAtRisk = status.UtilizationPercent > s.atRiskThreshold

	if current+estimatedCost > budget.CostLimit {
		status.Allowed = false
		status.Reason = fmt.Sprintf("would exceed cost limit of %.4f (current: %.4f, estimated: %.4f)",
			budget.CostLimit, current, estimatedCost)
		return status, nil
	}

	status.Allowed = true
	return status, nil
}

// Summary aggregates ledger activity in [start, end], optionally filtered
// by provider and client
func (s *Service) Summary(ctx context.Context, start, end time.Time, provider, clientID string) *UsageSummary {
	entries := s.snapshot()

	summary := &UsageSummary{
		Start:          start,
		End:            end,
		CostByProvider: make(map[string]float64),
		CostByModel:    make(map[string]float64),
	}

	for _, e := range entries {
		if e.Timestamp.Before(start) || e.Timestamp.After(end) {
			continue
		}
		if provider != "" && e.Provider != provider {
			continue
		}
		if clientID != "" && e.ClientID != clientID {
			continue
		}

		summary.TotalRequests++
		summary.TotalTokens += e.TotalTokens
		summary.TotalCost += e.TotalCost
		summary.CostByProvider[e.Provider] += e.TotalCost
		summary.CostByModel[e.Model] += e.TotalCost
	}

	if summary.TotalRequests > 0 {
		summary.AvgCostPerRequest = summary.TotalCost / float64(summary.TotalRequests)
		summary.AvgTokensPerRequest = float64(summary.TotalTokens) / float64(summary.TotalRequests)
	}

	return summary
}

// Project extrapolates a budget's spend daysAhead days out from its
// 30-day daily average. Confidence reflects how many distinct days have
// data; trend compares the two halves of the recent window.
func (s *Service) Project(budgetID string, daysAhead int) *Projection {
	now := s.now()
	windowStart := now.Add(-consumptionWindow)
	recent := s.budgetEntriesSince(budgetID, windowStart)

	proj := &Projection{
		BudgetID:  budgetID,
		DaysAhead: daysAhead,
	}

	days := make(map[string]float64)
	var firstHalf, secondHalf float64
	mid := windowStart.Add(consumptionWindow / 2)

	for _, e := range recent {
		days[e.Timestamp.Format("2006-01-02")] += e.TotalCost
		proj.WindowedSpend += e.TotalCost
		if e.Timestamp.Before(mid) {
			firstHalf += e.TotalCost
		} else {
			secondHalf += e.TotalCost
		}
	}

	proj.DaysWithData = len(days)
	proj.DailyAvgCost = proj.WindowedSpend / 30
	proj.ProjectedCost = proj.DailyAvgCost * float64(daysAhead)

	switch {
	case proj.DaysWithData > 20:
		proj.Confidence = "high"
	case proj.DaysWithData > 10:
		proj.Confidence = "medium"
	default:
		proj.Confidence = "low"
	}

	proj.Trend = "stable"
	if firstHalf > 0 {
		diff := (secondHalf - firstHalf) / firstHalf
		if diff > 0.10 {
			proj.Trend = "increasing"
		} else if diff < -0.10 {
			proj.Trend = "decreasing"
		}
	} else if secondHalf > 0 {
		proj.Trend = "increasing"
	}

	return proj
}

// EntryCount returns the ledger size
func (s *Service) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartCleanupWorker runs retention cleanup on a fixed interval until the
// context is cancelled
func (s *Service) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("started cost ledger cleanup worker",
		zap.Duration("interval", interval),
		zap.Duration("retention", s.retention))

	for {
		select {
		case <-ticker.C:
			removed := s.cleanupExpired()
			if s.store != nil {
				if _, err := s.store.CleanupOld(ctx, s.retention); err != nil {
					s.logger.Error("failed to cleanup ledger store", zap.Error(err))
				}
			}
			if removed > 0 {
				s.logger.Info("cleaned up expired cost entries", zap.Int("removed", removed))
			}
		case <-ctx.Done():
			s.logger.Info("stopping cost ledger cleanup worker")
			return
		}
	}
}

// cleanupExpired drops entries older than the retention window
func (s *Service) cleanupExpired() int {
	cutoff := s.now().Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0:0]
	for _, e := range s.entries {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(s.entries) - len(kept)
	s.entries = kept

	for budgetID, entries := range s.byBudget {
		keptBudget := entries[:0:0]
		for _, e := range entries {
			if e.Timestamp.After(cutoff) {
				keptBudget = append(keptBudget, e)
			}
		}
		if len(keptBudget) == 0 {
			delete(s.byBudget, budgetID)
		} else {
			s.byBudget[budgetID] = keptBudget
		}
	}

	return removed
}

// snapshot copies the global ledger for lock-free reads
func (s *Service) snapshot() []models.CostEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.CostEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// budgetEntriesSince copies the budget's entries newer than the cutoff
func (s *Service) budgetEntriesSince(budgetID string, cutoff time.Time) []models.CostEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.CostEntry
	for _, e := range s.byBudget[budgetID] {
		if e.Timestamp.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}
