package rules

import (
	"math"

	"github.com/opensource-finance/screener/internal/domain"
)

// Project maps the strategy onto the remote filter's parameter set.
//
// The mapping is lossy. Only simple conditions are read, only pe, pb and
// marketCap with lt/lte and dividendYield with gt/gte are recognized, and the
// logic operators are ignored. Repeated bounds on one field keep the tightest.
// Dividend yield is converted from a percentage to a fraction. Derived
// conditions are skipped without complaint; use Projectable to decide whether
// projecting is appropriate at all.
func Project(s *domain.Strategy, market string) domain.ParameterSet {
	params := domain.NewParameterSet(market)

	for _, c := range s.Conditions {
		sc, ok := c.(*domain.SimpleCondition)
		if !ok {
			continue
		}
		v := sc.Value.Float()
		if math.IsNaN(v) {
			continue
		}

		switch sc.Field {
		case domain.FieldPE:
			if isUpper(sc.Operator) {
				params.PEMax = tighterMax(params.PEMax, v)
			}
		case domain.FieldPB:
			if isUpper(sc.Operator) {
				params.PBMax = tighterMax(params.PBMax, v)
			}
		case domain.FieldMarketCap:
			if isUpper(sc.Operator) {
				params.MarketCapMax = tighterMax(params.MarketCapMax, v)
			}
		case domain.FieldDividendYield:
			if isLower(sc.Operator) {
				floor := 0.0
				if params.DividendYieldMin != nil {
					floor = *params.DividendYieldMin
				}
				params.DividendYieldMin = domain.Float(math.Max(floor, v/100))
			}
		}
	}

	return params
}

// Projectable reports whether s can be answered by the remote filter,
// which is the case when it has no derived conditions.
func Projectable(s *domain.Strategy) bool {
	return !s.HasDerived()
}

func isUpper(op domain.Operator) bool {
	return op == domain.OpLT || op == domain.OpLTE
}

func isLower(op domain.Operator) bool {
	return op == domain.OpGT || op == domain.OpGTE
}

func tighterMax(existing *float64, v float64) *float64 {
	if existing == nil {
		return domain.Float(v)
	}
	return domain.Float(math.Min(*existing, v))
}
