package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/screener/internal/bus"
	"github.com/opensource-finance/screener/internal/domain"
	"github.com/opensource-finance/screener/internal/quotes"
	"github.com/opensource-finance/screener/internal/repository"
	"github.com/opensource-finance/screener/internal/screen"
)

func newTestWorker(t *testing.T) (*Worker, domain.EventBus, domain.Repository) {
	t.Helper()

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "worker.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	src, err := quotes.NewStatic(map[string][]domain.Record{
		domain.MarketAShare: {
			domain.NewRecord("601398", "工商银行", map[string]float64{"pe": 5.2, "pb": 0.6}),
			domain.NewRecord("600519", "贵州茅台", map[string]float64{"pe": 28, "pb": 9}),
		},
	})
	if err != nil {
		t.Fatalf("failed to create source: %v", err)
	}

	runner := screen.NewRunner(src, src, domain.RunnerConfig{})
	return NewWorker(eventBus, repo, runner), eventBus, repo
}

func awaitCompletion(t *testing.T, b domain.EventBus, scope string) <-chan domain.RunCompleted {
	t.Helper()
	ch := make(chan domain.RunCompleted, 1)
	_, err := b.Subscribe(context.Background(), scope, domain.TopicRunCompleted, func(ctx context.Context, msg *domain.Message) error {
		var done domain.RunCompleted
		if err := bus.Decode(msg, &done); err != nil {
			return err
		}
		ch <- done
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	return ch
}

func wait(t *testing.T, ch <-chan domain.RunCompleted) domain.RunCompleted {
	t.Helper()
	select {
	case done := <-ch:
		return done
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for run completion")
		return domain.RunCompleted{}
	}
}

func TestWorker(t *testing.T) {
	ctx := context.Background()

	t.Run("StartAndStop", func(t *testing.T) {
		w, _, _ := newTestWorker(t)
		if err := w.Start(Config{TenantIDs: []string{"tenant-001"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if stats := w.GetStats(); stats.SubscriptionCount != 1 || stats.Topics[0] != domain.TopicRunRequested {
			t.Errorf("unexpected stats %+v", stats)
		}

		w.Stop()
		if stats := w.GetStats(); stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessRun", func(t *testing.T) {
		w, eventBus, repo := newTestWorker(t)
		tenant := "tenant-run"

		s := &domain.Strategy{Name: "低估值"}
		s.Append(domain.DefaultDerivedCondition())
		if err := repo.SaveStrategy(ctx, tenant, s); err != nil {
			t.Fatalf("SaveStrategy failed: %v", err)
		}

		w.Start(Config{TenantIDs: []string{tenant}})
		defer w.Stop()
		completed := awaitCompletion(t, eventBus, tenant)

		req := domain.RunRequest{RunID: "run-async-1", StrategyID: s.ID}
		if err := bus.PublishJSON(ctx, eventBus, tenant, domain.TopicRunRequested, req); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		done := wait(t, completed)
		if done.Error != "" || done.Total != 1 || done.RunID != "run-async-1" || done.TenantID != tenant {
			t.Fatalf("unexpected completion %+v", done)
		}

		run, err := repo.GetRun(ctx, tenant, "run-async-1")
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}
		if run.Route != domain.RouteLocal || run.Market != domain.MarketAShare || run.Records[0].Code != "601398" {
			t.Errorf("unexpected run %+v", run)
		}
	})

	t.Run("GlobalScopeUsesPayloadTenant", func(t *testing.T) {
		w, eventBus, repo := newTestWorker(t)
		tenant := "tenant-global"

		s := &domain.Strategy{}
		s.Append(domain.NewSimpleCondition(domain.FieldPB, domain.OpLT, "1"))
		repo.SaveStrategy(ctx, tenant, s)

		w.Start(Config{})
		defer w.Stop()
		completed := awaitCompletion(t, eventBus, GlobalTenant)

		req := domain.RunRequest{RunID: "run-global-1", TenantID: tenant, StrategyID: s.ID, Market: domain.MarketAShare}
		bus.PublishJSON(ctx, eventBus, Scope(nil, tenant), domain.TopicRunRequested, req)

		done := wait(t, completed)
		if done.Error != "" || done.Total != 1 {
			t.Fatalf("unexpected completion %+v", done)
		}
		if _, err := repo.GetRun(ctx, tenant, "run-global-1"); err != nil {
			t.Errorf("run not stored for payload tenant: %v", err)
		}
	})

	t.Run("MissingStrategyReportsError", func(t *testing.T) {
		w, eventBus, _ := newTestWorker(t)
		w.Start(Config{TenantIDs: []string{"tenant-missing"}})
		defer w.Stop()
		completed := awaitCompletion(t, eventBus, "tenant-missing")

		bus.PublishJSON(ctx, eventBus, "tenant-missing", domain.TopicRunRequested, domain.RunRequest{RunID: "r", StrategyID: "nope"})

		if done := wait(t, completed); done.Error == "" {
			t.Error("expected an error for a missing strategy")
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w, _, _ := newTestWorker(t)
		w.Start(Config{TenantIDs: []string{"tenant-a", "tenant-b"}})
		defer w.Stop()

		if stats := w.GetStats(); stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}

func TestScope(t *testing.T) {
	if got := Scope(nil, "t1"); got != GlobalTenant {
		t.Errorf("expected global scope, got %q", got)
	}
	if got := Scope([]string{"t1"}, "t1"); got != "t1" {
		t.Errorf("expected tenant scope, got %q", got)
	}
}
