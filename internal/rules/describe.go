package rules

import (
	"strings"

	"github.com/opensource-finance/screener/internal/domain"
)

// EmptyDescription is rendered for a strategy without conditions.
const EmptyDescription = "无条件"

// Describe renders the strategy as one line of text. Conditions that
// reference an unknown field or operator render as an empty segment.
func Describe(s *domain.Strategy) string {
	if len(s.Conditions) == 0 {
		return EmptyDescription
	}

	var b strings.Builder
	b.WriteString(DescribeCondition(s.Conditions[0]))
	for _, c := range s.Conditions[1:] {
		if c.Logic() == domain.LogicAnd {
			b.WriteString(" 且 ")
		} else {
			b.WriteString(" 或 ")
		}
		b.WriteString(DescribeCondition(c))
	}
	return b.String()
}

// DescribeCondition renders a single condition.
func DescribeCondition(c domain.Condition) string {
	switch cc := c.(type) {
	case *domain.SimpleCondition:
		field, ok := domain.LookupField(cc.Field)
		if !ok {
			return ""
		}
		op, ok := domain.LookupOperator(cc.Operator)
		if !ok {
			return ""
		}
		if cc.Operator == domain.OpBetween {
			return field.Label + op.Symbol + string(cc.Value) + field.Unit + "-" + string(cc.Value2) + field.Unit
		}
		return field.Label + op.Symbol + string(cc.Value) + field.Unit

	case *domain.DerivedCondition:
		f1, ok1 := domain.LookupField(cc.Field1)
		f2, ok2 := domain.LookupField(cc.Field2)
		calc, ok3 := domain.LookupCalcOp(cc.CalcOp)
		op, ok4 := domain.LookupOperator(cc.Operator)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return ""
		}
		return "(" + f1.Label + calc.Symbol + f2.Label + ")" + op.Symbol + string(cc.Value)
	}
	return ""
}
