package rules

import (
	"testing"

	"github.com/opensource-finance/screener/internal/domain"
)

func bound(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func TestProject(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := Project(&domain.Strategy{}, domain.MarketHK)
		if p.Market != domain.MarketHK || p.Page != 1 || p.PageSize != 200 {
			t.Errorf("unexpected defaults: %+v", p)
		}
		if p.PEMax != nil || p.PBMax != nil || p.MarketCapMax != nil || p.DividendYieldMin != nil {
			t.Errorf("expected no bounds, got %+v", p)
		}
	})

	t.Run("tightest max wins", func(t *testing.T) {
		s := strategyOf(
			simple("pe", domain.OpLT, "20", domain.LogicAnd),
			simple("pe", domain.OpLTE, "15", domain.LogicOr),
			simple("pe", domain.OpLT, "30", domain.LogicAnd),
		)
		p := Project(s, domain.MarketAShare)
		if bound(p.PEMax) != 15.0 {
			t.Errorf("expected peMax 15, got %v", bound(p.PEMax))
		}
	})

	t.Run("each max field", func(t *testing.T) {
		s := strategyOf(
			simple("pb", domain.OpLT, "1.5", domain.LogicAnd),
			simple("marketCap", domain.OpLTE, "100", domain.LogicAnd),
		)
		p := Project(s, domain.MarketAShare)
		if bound(p.PBMax) != 1.5 {
			t.Errorf("expected pbMax 1.5, got %v", bound(p.PBMax))
		}
		if bound(p.MarketCapMax) != 100.0 {
			t.Errorf("expected marketCapMax 100, got %v", bound(p.MarketCapMax))
		}
	})

	t.Run("dividend yield is converted to a fraction", func(t *testing.T) {
		s := strategyOf(
			simple("dividendYield", domain.OpGT, "3", domain.LogicAnd),
			simple("dividendYield", domain.OpGTE, "5", domain.LogicAnd),
		)
		p := Project(s, domain.MarketAShare)
		if bound(p.DividendYieldMin) != 0.05 {
			t.Errorf("expected dividendYieldMin 0.05, got %v", bound(p.DividendYieldMin))
		}
	})

	t.Run("dividend yield floor is zero", func(t *testing.T) {
		s := strategyOf(simple("dividendYield", domain.OpGT, "-2", domain.LogicAnd))
		p := Project(s, domain.MarketAShare)
		if bound(p.DividendYieldMin) != 0.0 {
			t.Errorf("expected dividendYieldMin 0, got %v", bound(p.DividendYieldMin))
		}
	})

	t.Run("non-tightening operators are dropped", func(t *testing.T) {
		s := strategyOf(
			simple("pe", domain.OpGT, "5", domain.LogicAnd),
			simple("pb", domain.OpEQ, "1", domain.LogicAnd),
			simple("dividendYield", domain.OpLT, "8", domain.LogicAnd),
			domain.NewBetweenCondition("marketCap", "1", "100"),
		)
		p := Project(s, domain.MarketAShare)
		if p.PEMax != nil || p.PBMax != nil || p.DividendYieldMin != nil || p.MarketCapMax != nil {
			t.Errorf("expected no bounds, got %+v", p)
		}
	})

	t.Run("unrecognized fields and derived conditions are dropped", func(t *testing.T) {
		s := strategyOf(
			simple("turnoverRate", domain.OpLT, "5", domain.LogicAnd),
			domain.NewDerivedCondition("pe", domain.CalcMul, "pb", domain.OpLT, "22.5"),
		)
		p := Project(s, domain.MarketAShare)
		if p.PEMax != nil || p.PBMax != nil {
			t.Errorf("expected no bounds, got %+v", p)
		}
		if Projectable(s) {
			t.Error("strategy with a derived condition should not be projectable")
		}
	})

	t.Run("unparsable values are skipped", func(t *testing.T) {
		s := strategyOf(
			simple("pe", domain.OpLT, "abc", domain.LogicAnd),
			simple("pe", domain.OpLT, "25", domain.LogicAnd),
		)
		p := Project(s, domain.MarketAShare)
		if bound(p.PEMax) != 25.0 {
			t.Errorf("expected peMax 25, got %v", bound(p.PEMax))
		}
	})

	t.Run("query encoding", func(t *testing.T) {
		s := strategyOf(
			simple("pe", domain.OpLT, "20", domain.LogicAnd),
			simple("dividendYield", domain.OpGT, "4", domain.LogicAnd),
		)
		q := Project(s, domain.MarketAShare).Query()
		want := map[string]string{
			"market":           domain.MarketAShare,
			"page":             "1",
			"pageSize":         "200",
			"peMax":            "20",
			"dividendYieldMin": "0.04",
		}
		for k, v := range want {
			if q.Get(k) != v {
				t.Errorf("%s: expected %q, got %q", k, v, q.Get(k))
			}
		}
		if q.Has("pbMax") {
			t.Error("absent bound should not be encoded")
		}
	})
}
