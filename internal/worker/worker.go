// Package worker executes strategy runs requested over the event bus.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/screener/internal/bus"
	"github.com/opensource-finance/screener/internal/domain"
	"github.com/opensource-finance/screener/internal/screen"
)

// GlobalTenant is the bus scope of the worker when no tenants are configured.
// Requests published there carry their tenant in the payload.
const GlobalTenant = "_global"

// Worker runs saved strategies in the background.
type Worker struct {
	bus           domain.EventBus
	repo          domain.Repository
	runner        *screen.Runner
	defaultMarket string

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to serve. Empty means a single
	// subscription on GlobalTenant.
	TenantIDs []string

	// DefaultMarket is used for requests that name no market.
	DefaultMarket string
}

// NewWorker creates a new async worker.
func NewWorker(b domain.EventBus, repo domain.Repository, runner *screen.Runner) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:           b,
		repo:          repo,
		runner:        runner,
		defaultMarket: domain.MarketAShare,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Scope returns the bus tenant a run request for tenantID is published on.
func Scope(tenants []string, tenantID string) string {
	if len(tenants) == 0 {
		return GlobalTenant
	}
	return tenantID
}

// Start subscribes to run requests for the configured tenants.
func (w *Worker) Start(cfg Config) error {
	if cfg.DefaultMarket != "" {
		w.defaultMarket = cfg.DefaultMarket
	}

	if len(cfg.TenantIDs) == 0 {
		return w.subscribe(GlobalTenant)
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.subscribe(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started", "tenant_count", len(cfg.TenantIDs))
	return nil
}

func (w *Worker) subscribe(scope string) error {
	sub, err := w.bus.Subscribe(w.ctx, scope, domain.TopicRunRequested, w.handleMessage)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("run worker subscribed",
		"scope", scope,
		"topic", domain.TopicRunRequested,
	)
	return nil
}

// handleMessage runs one requested strategy and announces the outcome.
// The payload tenant wins over the bus scope.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var req domain.RunRequest
	if err := bus.Decode(msg, &req); err != nil {
		slog.Error("failed to parse run request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = msg.TenantID
	}

	done := domain.RunCompleted{RunID: req.RunID, TenantID: tenantID, StrategyID: req.StrategyID}
	run, err := w.process(ctx, tenantID, req)
	if err != nil {
		done.Error = err.Error()
	} else {
		done.Total = run.Total
	}

	if err := bus.PublishJSON(ctx, w.bus, msg.TenantID, domain.TopicRunCompleted, done); err != nil {
		slog.Error("failed to publish run completion",
			"run_id", req.RunID,
			"error", err,
		)
	}
	return err
}

func (w *Worker) process(ctx context.Context, tenantID string, req domain.RunRequest) (*domain.Run, error) {
	start := time.Now()

	s, err := w.repo.GetStrategy(ctx, tenantID, req.StrategyID)
	if err != nil {
		slog.Error("failed to load strategy",
			"tenant_id", tenantID,
			"strategy_id", req.StrategyID,
			"error", err,
		)
		return nil, err
	}

	market := req.Market
	if market == "" {
		market = w.defaultMarket
	}

	run, err := w.runner.Run(ctx, tenantID, s, market)
	if err != nil {
		return nil, err
	}
	if req.RunID != "" {
		run.ID = req.RunID
	}

	if err := w.repo.SaveRun(ctx, tenantID, run); err != nil {
		slog.Error("failed to save run",
			"run_id", run.ID,
			"error", err,
		)
		return nil, err
	}

	slog.Info("strategy run processed",
		"run_id", run.ID,
		"tenant_id", tenantID,
		"strategy_id", s.ID,
		"route", run.Route,
		"matched", run.Total,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return run, nil
}

// Stop unsubscribes all workers.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
