package rules

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/opensource-finance/screener/internal/domain"
)

// Property-based test: between does not depend on bound order
func TestBetween_PropertySymmetric(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("between(v, a, b) == between(v, b, a)", prop.ForAll(
		func(v, a, b float64) bool {
			rec := stock(map[string]float64{"pe": v})
			ab := domain.NewBetweenCondition("pe", domain.Num(a), domain.Num(b))
			ba := domain.NewBetweenCondition("pe", domain.Num(b), domain.Num(a))
			return EvaluateCondition(ab, rec) == EvaluateCondition(ba, rec)
		},
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e6, 1e6),
	))

	properties.TestingRun(t)
}

// Property-based test: evaluation is a strict left fold
func TestEvaluate_PropertyLeftFold(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	// Each step encodes (result, logic): bit 0 is the condition's outcome,
	// bit 1 selects or.
	properties.Property("evaluate equals a manual left fold", prop.ForAll(
		func(steps []int) bool {
			rec := stock(map[string]float64{"pe": 1})
			s := &domain.Strategy{}

			var want bool
			for i, step := range steps {
				outcome := step&1 == 1
				logic := domain.LogicAnd
				if step&2 == 2 {
					logic = domain.LogicOr
				}

				op := domain.OpLT
				if outcome {
					op = domain.OpGT
				}
				s.Append(simple("pe", op, "0", logic))

				switch {
				case i == 0:
					want = outcome
				case logic == domain.LogicOr:
					want = want || outcome
				default:
					want = want && outcome
				}
			}
			if len(steps) == 0 {
				want = true
			}
			return Evaluate(s, rec) == want
		},
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}

// Property-based test: projection keeps the tightest pe bound
func TestProject_PropertyTightest(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("peMax is the minimum of all pe upper bounds", prop.ForAll(
		func(bounds []float64) bool {
			s := &domain.Strategy{}
			want := math.Inf(1)
			for _, b := range bounds {
				s.Append(simple("pe", domain.OpLT, string(domain.Num(b)), domain.LogicAnd))
				want = math.Min(want, b)
			}
			p := Project(s, domain.MarketAShare)
			if len(bounds) == 0 {
				return p.PEMax == nil
			}
			return p.PEMax != nil && *p.PEMax == want
		},
		gen.SliceOf(gen.Float64Range(0, 1000)),
	))

	properties.TestingRun(t)
}

// Property-based test: persistence round trip keeps the description
func TestDescribe_PropertyRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	fields := []string{"pe", "pb", "dividendYield", "marketCap", "price"}
	ops := []domain.Operator{domain.OpGT, domain.OpGTE, domain.OpLT, domain.OpLTE, domain.OpEQ, domain.OpBetween}

	properties.Property("describe(decode(encode(s))) == describe(s)", prop.ForAll(
		func(picks []int, value float64) bool {
			s := &domain.Strategy{Name: "round trip"}
			for i, p := range picks {
				logic := domain.LogicAnd
				if i%2 == 1 {
					logic = domain.LogicOr
				}
				if p%7 == 6 {
					c := domain.NewDerivedCondition(fields[p%len(fields)], domain.CalcDiv, "pb", domain.OpLT, domain.Num(value))
					c.LogicOp = logic
					s.Append(c)
					continue
				}
				c := simple(fields[p%len(fields)], ops[p%len(ops)], string(domain.Num(value)), logic)
				c.Value2 = domain.Num(value * 2)
				s.Append(c)
			}

			data, err := json.Marshal(s)
			if err != nil {
				return false
			}
			var back domain.Strategy
			if err := json.Unmarshal(data, &back); err != nil {
				return false
			}
			return Describe(&back) == Describe(s)
		},
		gen.SliceOf(gen.IntRange(0, 50)),
		gen.Float64Range(-100, 100),
	))

	properties.TestingRun(t)
}
