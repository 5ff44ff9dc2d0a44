// Package domain defines the core interfaces and types for the screener.
package domain

// Field describes a screenable numeric attribute of a stock record.
// Min, Max and Step are UI hints only and are never enforced.
type Field struct {
	Name  string  `json:"name"`
	Label string  `json:"label"`
	Unit  string  `json:"unit"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Step  float64 `json:"step"`
}

// Field names known to the catalog.
const (
	FieldPE             = "pe"
	FieldPB             = "pb"
	FieldDividendYield  = "dividendYield"
	FieldMarketCap      = "marketCap"
	FieldFloatMarketCap = "floatMarketCap"
	FieldTurnoverRate   = "turnoverRate"
	FieldPrice          = "price"
	FieldChangePercent  = "changePercent"
	FieldVolume         = "volume"
)

var fieldCatalog = []Field{
	{Name: FieldPE, Label: "市盈率(PE)", Unit: "倍", Min: 0, Max: 1000, Step: 0.1},
	{Name: FieldPB, Label: "市净率(PB)", Unit: "倍", Min: 0, Max: 100, Step: 0.01},
	{Name: FieldDividendYield, Label: "股息率", Unit: "%", Min: 0, Max: 50, Step: 0.1},
	{Name: FieldMarketCap, Label: "总市值", Unit: "亿", Min: 0, Max: 1000000, Step: 1},
	{Name: FieldFloatMarketCap, Label: "流通市值", Unit: "亿", Min: 0, Max: 1000000, Step: 1},
	{Name: FieldTurnoverRate, Label: "换手率", Unit: "%", Min: 0, Max: 100, Step: 0.01},
	{Name: FieldPrice, Label: "股价", Unit: "元", Min: 0, Max: 10000, Step: 0.01},
	{Name: FieldChangePercent, Label: "涨跌幅", Unit: "%", Min: -20, Max: 20, Step: 0.01},
	{Name: FieldVolume, Label: "成交量", Unit: "手", Min: 0, Max: 1e9, Step: 1},
}

var fieldIndex = func() map[string]Field {
	m := make(map[string]Field, len(fieldCatalog))
	for _, f := range fieldCatalog {
		m[f.Name] = f
	}
	return m
}()

// Fields returns the catalog in display order.
func Fields() []Field {
	out := make([]Field, len(fieldCatalog))
	copy(out, fieldCatalog)
	return out
}

// LookupField returns the catalog entry for name.
func LookupField(name string) (Field, bool) {
	f, ok := fieldIndex[name]
	return f, ok
}
