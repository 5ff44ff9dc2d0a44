// Package templates holds the preset screening templates.
package templates

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/opensource-finance/screener/internal/domain"
)

// ErrNotFound is returned for an unknown template id.
var ErrNotFound = errors.New("模板不存在")

// Sort orders.
const (
	Asc  = "asc"
	Desc = "desc"
)

// Params are the filter bounds a template sends as-is to the filter endpoint.
type Params struct {
	PEMax            *float64 `json:"peMax,omitempty"`
	PBMax            *float64 `json:"pbMax,omitempty"`
	DividendYieldMin *float64 `json:"dividendYieldMin,omitempty"`
	MarketCapMax     *float64 `json:"marketCapMax,omitempty"`
}

// Template is a named preset query with a result ordering.
type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
	Params      Params `json:"params"`
	SortBy      string `json:"sortBy"`
	SortOrder   string `json:"sortOrder"`
}

var catalog = []Template{
	{
		ID:          "classic",
		Name:        "经典烟蒂股",
		Description: "低PB + 低PE + 正收益",
		Icon:        "🔥",
		Color:       "green",
		Params:      Params{PBMax: domain.Float(1.5), PEMax: domain.Float(20)},
		SortBy:      domain.FieldPB,
		SortOrder:   Asc,
	},
	{
		ID:          "graham",
		Name:        "格雷厄姆式",
		Description: "PE<15 + PB<1.5",
		Icon:        "📊",
		Color:       "blue",
		Params:      Params{PEMax: domain.Float(15), PBMax: domain.Float(1.5)},
		SortBy:      domain.FieldPE,
		SortOrder:   Asc,
	},
	{
		ID:          "deepValue",
		Name:        "深水炸弹",
		Description: "PB<0.8 + 市值<100亿",
		Icon:        "💣",
		Color:       "red",
		Params:      Params{PBMax: domain.Float(0.8), MarketCapMax: domain.Float(100)},
		SortBy:      domain.FieldPB,
		SortOrder:   Asc,
	},
	{
		ID:          "highDividend",
		Name:        "高息防守",
		Description: "股息率>5% + PE<20",
		Icon:        "🛡️",
		Color:       "yellow",
		Params:      Params{DividendYieldMin: domain.Float(5), PEMax: domain.Float(20)},
		SortBy:      domain.FieldDividendYield,
		SortOrder:   Desc,
	},
}

// All returns the templates in catalog order.
func All() []Template {
	out := make([]Template, len(catalog))
	copy(out, catalog)
	return out
}

// Get returns the template with id.
func Get(id string) (Template, bool) {
	for _, t := range catalog {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

// Describe renders the template bounds, e.g. "PE<15 + PB<1.5".
func (t Template) Describe() string {
	var parts []string
	if t.Params.PEMax != nil {
		parts = append(parts, "PE<"+format(*t.Params.PEMax))
	}
	if t.Params.PBMax != nil {
		parts = append(parts, "PB<"+format(*t.Params.PBMax))
	}
	if t.Params.DividendYieldMin != nil {
		parts = append(parts, "股息率>"+format(*t.Params.DividendYieldMin)+"%")
	}
	if t.Params.MarketCapMax != nil {
		parts = append(parts, "市值<"+format(*t.Params.MarketCapMax)+"亿")
	}
	return strings.Join(parts, " + ")
}

// Query returns the first-page parameter set of the template for market.
func (t Template) Query(market string) domain.ParameterSet {
	p := domain.NewParameterSet(market)
	p.PEMax = t.Params.PEMax
	p.PBMax = t.Params.PBMax
	p.DividendYieldMin = t.Params.DividendYieldMin
	p.MarketCapMax = t.Params.MarketCapMax
	return p
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Result is the outcome of applying a template.
type Result struct {
	Template Template            `json:"template"`
	Params   domain.ParameterSet `json:"params"`
	Records  []domain.Record     `json:"records"`
	Total    int                 `json:"total"`
}

// Applier runs templates against a filter source.
type Applier struct {
	src domain.FilterSource
}

// NewApplier creates an applier over src.
func NewApplier(src domain.FilterSource) *Applier {
	return &Applier{src: src}
}

// Apply fetches the template's first page for market and orders it by the
// template's sort field. Missing values sort as 0.
func (a *Applier) Apply(ctx context.Context, id, market string) (*Result, error) {
	t, ok := Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if market == "" {
		market = domain.MarketAShare
	}

	params := t.Query(market)
	records, err := a.src.FetchFiltered(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to apply template %s: %w", id, err)
	}
	if records == nil {
		records = []domain.Record{}
	}
	domain.SortRecords(records, t.SortBy, t.SortOrder == Desc)

	return &Result{Template: t, Params: params, Records: records, Total: len(records)}, nil
}
