// Package rules evaluates, projects and describes screening strategies.
package rules

import (
	"math"

	"github.com/opensource-finance/screener/internal/domain"
)

// EqualityEpsilon is the tolerance used by the eq operator.
const EqualityEpsilon = 1e-4

// Evaluate folds the strategy's conditions over rec from left to right.
// The first condition's logic operator is ignored; each later one ORs into the
// running result when it is or and ANDs otherwise. There is no precedence:
// A or B and C means (A or B) and C. An empty strategy matches everything.
func Evaluate(s *domain.Strategy, rec domain.Record) bool {
	if len(s.Conditions) == 0 {
		return true
	}

	result := EvaluateCondition(s.Conditions[0], rec)
	for _, c := range s.Conditions[1:] {
		// Both sides are always evaluated; conditions have no side effects.
		next := EvaluateCondition(c, rec)
		if c.Logic() == domain.LogicOr {
			result = result || next
		} else {
			result = result && next
		}
	}
	return result
}

// EvaluateCondition evaluates a single condition against rec.
// Malformed targets read as NaN and unknown operators never match.
func EvaluateCondition(c domain.Condition, rec domain.Record) bool {
	switch cc := c.(type) {
	case *domain.SimpleCondition:
		v := rec.Value(cc.Field)
		if cc.Operator == domain.OpBetween {
			return between(v, cc.Value.Float(), cc.Value2.Float())
		}
		return compare(v, cc.Operator, cc.Value.Float())

	case *domain.DerivedCondition:
		if cc.Operator == domain.OpBetween {
			return false
		}
		v := Calc(rec.Value(cc.Field1), cc.CalcOp, rec.Value(cc.Field2))
		return compare(v, cc.Operator, cc.Value.Float())
	}
	return false
}

// Calc applies a calc operator. Division by zero yields +Inf and an unknown
// operator yields 0.
func Calc(a float64, op domain.CalcOp, b float64) float64 {
	switch op {
	case domain.CalcMul:
		return a * b
	case domain.CalcDiv:
		if b == 0 {
			return math.Inf(1)
		}
		return a / b
	case domain.CalcAdd:
		return a + b
	case domain.CalcSub:
		return a - b
	default:
		return 0
	}
}

func compare(v float64, op domain.Operator, target float64) bool {
	switch op {
	case domain.OpGT:
		return v > target
	case domain.OpGTE:
		return v >= target
	case domain.OpLT:
		return v < target
	case domain.OpLTE:
		return v <= target
	case domain.OpEQ:
		return math.Abs(v-target) < EqualityEpsilon
	default:
		return false
	}
}

// between is inclusive and does not care which bound is larger.
func between(v, a, b float64) bool {
	return v >= math.Min(a, b) && v <= math.Max(a, b)
}

// Filter returns the records matching s, in input order.
func Filter(s *domain.Strategy, records []domain.Record) []domain.Record {
	out := make([]domain.Record, 0, len(records))
	for _, rec := range records {
		if Evaluate(s, rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Matches evaluates every record and returns one flag per record.
func Matches(s *domain.Strategy, records []domain.Record) []bool {
	out := make([]bool, len(records))
	for i, rec := range records {
		out[i] = Evaluate(s, rec)
	}
	return out
}
