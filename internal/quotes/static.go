package quotes

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/screener/internal/domain"
	"github.com/tidwall/gjson"
)

// Defaults the quote service substitutes for missing values when filtering.
const (
	defaultPE            = 999.0
	defaultPB            = 999.0
	defaultMarketCap     = 999999.0
	defaultDividendYield = 0.0
)

// Static serves a fixed record universe. FetchFiltered applies the same bound
// checks as the remote filter endpoint.
type Static struct {
	universe map[string][]domain.Record
	indices  []domain.Record

	env      *cel.Env
	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewStatic creates a static source over the given per-market universe.
func NewStatic(universe map[string][]domain.Record) (*Static, error) {
	env, err := cel.NewEnv(
		cel.Variable("pe", cel.DoubleType),
		cel.Variable("pb", cel.DoubleType),
		cel.Variable("market_cap", cel.DoubleType),
		cel.Variable("dividend_yield", cel.DoubleType),
		cel.Variable("pe_max", cel.DoubleType),
		cel.Variable("pb_max", cel.DoubleType),
		cel.Variable("market_cap_max", cel.DoubleType),
		cel.Variable("dividend_yield_min", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	if universe == nil {
		universe = make(map[string][]domain.Record)
	}
	return &Static{
		universe: universe,
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// LoadStatic reads a universe file. The file is either a JSON array of
// records (A-share) or an object keyed by market, with an optional
// "indices" array.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read universe: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("universe %s is not valid json", path)
	}

	doc := gjson.ParseBytes(data)
	universe := make(map[string][]domain.Record)
	var indices []domain.Record

	switch {
	case doc.IsArray():
		universe[domain.MarketAShare] = parseRows(doc)
	case doc.IsObject():
		doc.ForEach(func(key, value gjson.Result) bool {
			if key.String() == "indices" {
				indices = parseRows(value)
			} else {
				universe[key.String()] = parseRows(value)
			}
			return true
		})
	default:
		return nil, fmt.Errorf("universe %s must be an array or an object", path)
	}

	s, err := NewStatic(universe)
	if err != nil {
		return nil, err
	}
	s.indices = indices
	return s, nil
}

func parseRows(arr gjson.Result) []domain.Record {
	var out []domain.Record
	arr.ForEach(func(_, row gjson.Result) bool {
		if row.IsObject() {
			out = append(out, domain.ParseRecord(row))
		}
		return true
	})
	return out
}

// SetIndices replaces the index quotes returned by Indices.
func (s *Static) SetIndices(indices []domain.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indices = indices
}

// FetchAll returns a copy of the market's universe.
func (s *Static) FetchAll(ctx context.Context, market string) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := s.universe[staticMarket(market)]
	out := make([]domain.Record, len(rows))
	copy(out, rows)
	return out, nil
}

// FetchFiltered keeps records satisfying every bound present in params,
// orders them by pb ascending and returns the requested page.
func (s *Static) FetchFiltered(ctx context.Context, params domain.ParameterSet) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	expr := filterExpression(params)
	prg, err := s.program(expr)
	if err != nil {
		return nil, err
	}

	bounds := map[string]any{
		"pe_max":             boundOr(params.PEMax, 0),
		"pb_max":             boundOr(params.PBMax, 0),
		"market_cap_max":     boundOr(params.MarketCapMax, 0),
		"dividend_yield_min": boundOr(params.DividendYieldMin, 0),
	}

	var matched []domain.Record
	for _, rec := range s.universe[staticMarket(params.Market)] {
		activation := map[string]any{
			"pe":             valueOr(rec, domain.FieldPE, defaultPE),
			"pb":             valueOr(rec, domain.FieldPB, defaultPB),
			"market_cap":     valueOr(rec, domain.FieldMarketCap, defaultMarketCap),
			"dividend_yield": valueOr(rec, domain.FieldDividendYield, defaultDividendYield),
		}
		for k, v := range bounds {
			activation[k] = v
		}

		out, _, err := prg.Eval(activation)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate filter for %s: %w", rec.Code, err)
		}
		if b, ok := out.(types.Bool); ok && bool(b) {
			matched = append(matched, rec)
		}
	}

	sortByPB(matched)
	return page(matched, params.Page, params.PageSize), nil
}

// Indices returns the configured index quotes.
func (s *Static) Indices(ctx context.Context) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Record, len(s.indices))
	copy(out, s.indices)
	return out, nil
}

// program compiles expr once and reuses it for later calls.
func (s *Static) program(expr string) (cel.Program, error) {
	s.mu.RLock()
	prg, ok := s.programs[expr]
	s.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := s.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile filter %q: %w", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter %q must return bool, got %v", expr, ast.OutputType())
	}
	prg, err := s.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}

	s.mu.Lock()
	s.programs[expr] = prg
	s.mu.Unlock()
	return prg, nil
}

// filterExpression builds the CEL predicate for the bounds present in params.
func filterExpression(params domain.ParameterSet) string {
	expr := "true"
	if params.PEMax != nil {
		expr += " && pe > 0.0 && pe <= pe_max"
	}
	if params.PBMax != nil {
		expr += " && pb > 0.0 && pb <= pb_max"
	}
	if params.DividendYieldMin != nil {
		expr += " && dividend_yield >= dividend_yield_min"
	}
	if params.MarketCapMax != nil {
		expr += " && market_cap > 0.0 && market_cap <= market_cap_max"
	}
	return expr
}

func staticMarket(market string) string {
	if market == domain.MarketAShare || market == "" {
		return domain.MarketAShare
	}
	return domain.MarketHK
}

func valueOr(rec domain.Record, field string, def float64) float64 {
	if v, ok := rec.Lookup(field); ok && !math.IsNaN(v) {
		return v
	}
	return def
}

func boundOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// sortByPB orders records by pb ascending; a missing pb sorts as 999.
func sortByPB(records []domain.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return valueOr(records[i], domain.FieldPB, defaultPB) < valueOr(records[j], domain.FieldPB, defaultPB)
	})
}

func page(records []domain.Record, pageNum, pageSize int) []domain.Record {
	if pageNum < 1 {
		pageNum = 1
	}
	if pageSize <= 0 {
		pageSize = domain.ProjectedPageSize
	}
	start := (pageNum - 1) * pageSize
	if start >= len(records) {
		return []domain.Record{}
	}
	end := min(start+pageSize, len(records))
	return records[start:end]
}
