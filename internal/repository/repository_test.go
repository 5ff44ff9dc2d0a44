package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/screener/internal/domain"
	"github.com/opensource-finance/screener/internal/rules"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()
	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "screener-test.db"),
	}
	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleStrategy() *domain.Strategy {
	s := &domain.Strategy{Name: "烟蒂股", Description: "低估值高股息"}
	s.Append(domain.NewSimpleCondition(domain.FieldPB, domain.OpLT, "1"))
	dy := s.Append(domain.NewSimpleCondition(domain.FieldDividendYield, domain.OpGT, "3"))
	s.Append(domain.DefaultDerivedCondition())
	s.Append(domain.NewBetweenCondition(domain.FieldMarketCap, "500", "20"))
	s.ToggleLogicOp(dy.ConditionID())
	return s
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetStrategy", func(t *testing.T) {
		s := sampleStrategy()
		if err := repo.SaveStrategy(ctx, tenantID, s); err != nil {
			t.Fatalf("SaveStrategy failed: %v", err)
		}
		if s.ID == "" || s.CreatedAt.IsZero() || s.UpdatedAt.IsZero() {
			t.Fatalf("expected id and timestamps to be assigned, got %+v", s)
		}

		got, err := repo.GetStrategy(ctx, tenantID, s.ID)
		if err != nil {
			t.Fatalf("GetStrategy failed: %v", err)
		}
		if got.Name != s.Name || got.Description != s.Description {
			t.Errorf("unexpected strategy %+v", got)
		}
		if rules.Describe(got) != rules.Describe(s) {
			t.Errorf("round trip changed description:\n  %s\n  %s", rules.Describe(s), rules.Describe(got))
		}
		for i := range s.Conditions {
			if got.Conditions[i].ConditionID() != s.Conditions[i].ConditionID() {
				t.Errorf("condition %d id changed", i)
			}
		}
	})

	t.Run("UpdateKeepsCreatedAt", func(t *testing.T) {
		s := sampleStrategy()
		if err := repo.SaveStrategy(ctx, tenantID, s); err != nil {
			t.Fatalf("SaveStrategy failed: %v", err)
		}
		created := s.CreatedAt

		time.Sleep(5 * time.Millisecond)
		update := &domain.Strategy{ID: s.ID, Name: "renamed", Conditions: s.Conditions}
		if err := repo.SaveStrategy(ctx, tenantID, update); err != nil {
			t.Fatalf("SaveStrategy (update) failed: %v", err)
		}
		if update.CreatedAt.Sub(created).Abs() > time.Millisecond {
			t.Errorf("created_at changed: %v -> %v", created, update.CreatedAt)
		}
		if !update.UpdatedAt.After(created) {
			t.Errorf("updated_at should advance, got %v", update.UpdatedAt)
		}

		got, _ := repo.GetStrategy(ctx, tenantID, s.ID)
		if got.Name != "renamed" {
			t.Errorf("expected renamed strategy, got %q", got.Name)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		s := sampleStrategy()
		repo.SaveStrategy(ctx, tenantID, s)

		_, err := repo.GetStrategy(ctx, "tenant-002", s.ID)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListStrategies", func(t *testing.T) {
		other := "tenant-list"
		for i := 0; i < 3; i++ {
			if err := repo.SaveStrategy(ctx, other, sampleStrategy()); err != nil {
				t.Fatalf("SaveStrategy failed: %v", err)
			}
		}
		list, err := repo.ListStrategies(ctx, other)
		if err != nil {
			t.Fatalf("ListStrategies failed: %v", err)
		}
		if len(list) != 3 {
			t.Errorf("expected 3 strategies, got %d", len(list))
		}
	})

	t.Run("DeleteStrategy", func(t *testing.T) {
		s := sampleStrategy()
		repo.SaveStrategy(ctx, tenantID, s)

		if err := repo.DeleteStrategy(ctx, tenantID, s.ID); err != nil {
			t.Fatalf("DeleteStrategy failed: %v", err)
		}
		if _, err := repo.GetStrategy(ctx, tenantID, s.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := repo.DeleteStrategy(ctx, tenantID, s.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("SaveAndGetRun", func(t *testing.T) {
		params := domain.NewParameterSet(domain.MarketAShare)
		params.PBMax = domain.Float(1)

		run := &domain.Run{
			ID:          "run-001",
			StrategyID:  "s-1",
			Market:      domain.MarketAShare,
			Route:       domain.RouteRemote,
			Description: "市净率(PB)<1倍",
			Params:      &params,
			Records: []domain.Record{
				domain.NewRecord("601988", "中国银行", map[string]float64{"pb": 0.6, "pe": 5.1}),
			},
			Total:     1,
			Scanned:   200,
			Pages:     1,
			Summary:   []domain.FieldStats{{Field: "pb", Count: 1, Mean: 0.6, Median: 0.6, Min: 0.6, Max: 0.6}},
			Timestamp: time.Now().UTC(),
			Metadata:  domain.RunMetadata{TraceID: "trace-1", TotalMs: 12, EngineVersion: "test"},
		}
		if err := repo.SaveRun(ctx, tenantID, run); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}

		got, err := repo.GetRun(ctx, tenantID, "run-001")
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}
		if got.Route != domain.RouteRemote || got.Total != 1 || got.Pages != 1 {
			t.Errorf("unexpected run %+v", got)
		}
		if got.Params == nil || got.Params.PBMax == nil || *got.Params.PBMax != 1 {
			t.Errorf("params not restored: %+v", got.Params)
		}
		if len(got.Records) != 1 || got.Records[0].Value("pb") != 0.6 || got.Records[0].Name != "中国银行" {
			t.Errorf("records not restored: %+v", got.Records)
		}
		if len(got.Summary) != 1 || got.Metadata.TraceID != "trace-1" {
			t.Errorf("summary or metadata not restored: %+v", got)
		}

		if _, err := repo.GetRun(ctx, "tenant-002", "run-001"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for other tenant, got %v", err)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := repo.SaveStrategy(ctx, "", sampleStrategy()); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if _, err := repo.GetRun(ctx, "", "x"); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.RepositoryConfig{Driver: "oracle"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	r := &SQLRepository{driver: "postgres"}
	got := r.rebind("SELECT * FROM runs WHERE tenant_id = ? AND id = ?")
	want := "SELECT * FROM runs WHERE tenant_id = $1 AND id = $2"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	r.driver = "sqlite"
	if q := r.rebind("a = ?"); q != "a = ?" {
		t.Errorf("sqlite query should be unchanged, got %q", q)
	}
}

func TestInMemorySQLite(t *testing.T) {
	repo, err := New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open in-memory repository: %v", err)
	}
	defer repo.Close()

	if err := repo.SaveStrategy(context.Background(), "t", sampleStrategy()); err != nil {
		t.Errorf("SaveStrategy failed: %v", err)
	}
}
