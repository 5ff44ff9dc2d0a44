package domain

// Operator is a comparison between a value and one or two targets.
type Operator string

const (
	OpGT      Operator = "gt"
	OpGTE     Operator = "gte"
	OpLT      Operator = "lt"
	OpLTE     Operator = "lte"
	OpEQ      Operator = "eq"
	OpBetween Operator = "between"
)

// CalcOp combines two field values into a derived value.
type CalcOp string

const (
	CalcMul CalcOp = "mul"
	CalcDiv CalcOp = "div"
	CalcAdd CalcOp = "add"
	CalcSub CalcOp = "sub"
)

// LogicOp joins a condition to the running result of the conditions before it.
type LogicOp string

const (
	LogicAnd LogicOp = "and"
	LogicOr  LogicOp = "or"
)

// Symbol is a display entry in one of the operator registries.
type Symbol struct {
	Key    string `json:"key"`
	Symbol string `json:"symbol"`
	Label  string `json:"label"`
}

var operators = []Symbol{
	{Key: string(OpGT), Symbol: ">", Label: "大于"},
	{Key: string(OpGTE), Symbol: ">=", Label: "大于等于"},
	{Key: string(OpLT), Symbol: "<", Label: "小于"},
	{Key: string(OpLTE), Symbol: "<=", Label: "小于等于"},
	{Key: string(OpEQ), Symbol: "=", Label: "等于"},
	{Key: string(OpBetween), Symbol: "~", Label: "区间"},
}

var calcOps = []Symbol{
	{Key: string(CalcMul), Symbol: "×", Label: "乘以"},
	{Key: string(CalcDiv), Symbol: "÷", Label: "除以"},
	{Key: string(CalcAdd), Symbol: "+", Label: "加上"},
	{Key: string(CalcSub), Symbol: "-", Label: "减去"},
}

var logicOps = []Symbol{
	{Key: string(LogicAnd), Symbol: "&&", Label: "且"},
	{Key: string(LogicOr), Symbol: "||", Label: "或"},
}

func lookupSymbol(table []Symbol, key string) (Symbol, bool) {
	for _, s := range table {
		if s.Key == key {
			return s, true
		}
	}
	return Symbol{}, false
}

func cloneSymbols(table []Symbol) []Symbol {
	out := make([]Symbol, len(table))
	copy(out, table)
	return out
}

// Operators returns the comparison operator registry.
func Operators() []Symbol { return cloneSymbols(operators) }

// CalcOps returns the calc operator registry.
func CalcOps() []Symbol { return cloneSymbols(calcOps) }

// LogicOps returns the logic operator registry.
func LogicOps() []Symbol { return cloneSymbols(logicOps) }

// LookupOperator returns the registry entry for op.
func LookupOperator(op Operator) (Symbol, bool) { return lookupSymbol(operators, string(op)) }

// LookupCalcOp returns the registry entry for op.
func LookupCalcOp(op CalcOp) (Symbol, bool) { return lookupSymbol(calcOps, string(op)) }

// LookupLogicOp returns the registry entry for op.
func LookupLogicOp(op LogicOp) (Symbol, bool) { return lookupSymbol(logicOps, string(op)) }

// Toggle flips and to or. Any other value becomes and.
func (l LogicOp) Toggle() LogicOp {
	if l == LogicAnd {
		return LogicOr
	}
	return LogicAnd
}
