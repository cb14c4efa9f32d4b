package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/llm-gateway/config"
	"github.com/upb/llm-gateway/services/cache"
	"github.com/upb/llm-gateway/services/costtracking"
	"github.com/upb/llm-gateway/services/execution"
	"github.com/upb/llm-gateway/services/providers"
	"github.com/upb/llm-gateway/services/ratelimit"
	"github.com/upb/llm-gateway/services/retry"
	"github.com/upb/llm-gateway/services/routing"

	_ "github.com/lib/pq" // postgres driver for the optional ledger
)

// Dependencies holds the fully wired gateway.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config   *config.Config
	Logger   *zap.Logger
	LedgerDB *sql.DB

	// Provider registry
	Registry *providers.Registry

	// Services
	RateLimiter *ratelimit.Service
	CostTracker *costtracking.Service
	RetryPolicy *retry.Policy
	Router      *routing.Service
	Cache       *cache.Service

	// Orchestrator
	Executor *execution.Service
}

// NewDependencies creates and wires up all gateway dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:   cfg,
		Logger:   logger,
		Registry: providers.NewRegistry(),
	}

	if err := deps.initLedger(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize cost ledger: %w", err)
	}
	deps.initServices()
	deps.initExecutor()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initLedger opens the optional durable cost ledger. Without DATABASE_URL
// the cost tracker keeps its ledger in memory only.
func (d *Dependencies) initLedger(ctx context.Context) error {
	if d.Config.Ledger.DatabaseURL == "" {
		d.Logger.Info("no ledger database configured, cost entries stay in memory")
		return nil
	}

	db, err := sql.Open("postgres", d.Config.Ledger.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open ledger database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ledger database ping failed: %w", err)
	}

	d.LedgerDB = db
	d.Logger.Info("ledger database connection established")
	return nil
}

func (d *Dependencies) initServices() {
	cfg := d.Config

	d.RateLimiter = ratelimit.NewService(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		TokensPerMinute:   cfg.RateLimit.TokensPerMinute,
		BurstRequests:     cfg.RateLimit.BurstRequests,
		BurstTokens:       cfg.RateLimit.BurstTokens,
		Window:            cfg.RateLimit.Window,
	}, d.Logger)

	costOpts := []costtracking.Option{
		costtracking.WithRetention(cfg.CostTracking.Retention),
		costtracking.WithProjectionFactor(cfg.CostTracking.ProjectionFactor),
		costtracking.WithAtRiskThreshold(cfg.CostTracking.AtRiskThreshold),
	}
	if d.LedgerDB != nil {
		costOpts = append(costOpts,
			costtracking.WithLedgerStore(costtracking.NewPostgresLedgerStore(d.LedgerDB, d.Logger)))
	}
	d.CostTracker = costtracking.NewService(d.Logger, costOpts...)

	d.RetryPolicy = retry.NewPolicy(retry.Config{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		BaseDelay:       cfg.Retry.BaseDelay,
		MaxDelay:        cfg.Retry.MaxDelay,
		ExponentialBase: cfg.Retry.ExponentialBase,
		JitterFactor:    cfg.Retry.JitterFactor,
	}, retry.BreakerConfig{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
		Timeout:          cfg.CircuitBreaker.Timeout,
	}, d.Logger)

	d.Router = routing.NewService(d.Registry, d.Logger)

	d.Cache = cache.NewService(cfg.Cache.MaxEntries, cfg.Cache.TTL, d.Logger)
}

func (d *Dependencies) initExecutor() {
	cfg := d.Config

	d.Executor = execution.NewService(
		d.Cache,
		d.RateLimiter,
		d.CostTracker,
		d.Router,
		d.RetryPolicy,
		execution.Options{
			CacheEnabled:        cfg.Cache.Enabled,
			RateLimitEnabled:    cfg.RateLimit.Enabled,
			CostTrackingEnabled: cfg.CostTracking.Enabled,
			PreferredProviders:  cfg.Routing.PreferredProviders,
			FallbackProviders:   cfg.Routing.FallbackProviders,
		},
		d.Logger,
	)
}

// Start launches background workers. It returns immediately; workers stop
// when ctx is cancelled.
func (d *Dependencies) Start(ctx context.Context) {
	if d.Config.CostTracking.Enabled {
		go d.CostTracker.StartCleanupWorker(ctx, d.Config.CostTracking.CleanupInterval)
	}
}

// Close releases held resources.
func (d *Dependencies) Close() error {
	if d.LedgerDB != nil {
		if err := d.LedgerDB.Close(); err != nil {
			return fmt.Errorf("failed to close ledger database: %w", err)
		}
	}
	return nil
}
