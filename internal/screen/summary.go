package screen

import (
	"math"
	"sort"

	"github.com/opensource-finance/screener/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SummaryFields are the fields described in a run summary.
var SummaryFields = []string{
	domain.FieldPE,
	domain.FieldPB,
	domain.FieldDividendYield,
	domain.FieldMarketCap,
}

// Summarize computes count, mean, median, min and max of each summary field
// over the records that carry it. Fields no record carries are omitted.
func Summarize(records []domain.Record) []domain.FieldStats {
	var out []domain.FieldStats
	for _, field := range SummaryFields {
		var xs []float64
		for _, rec := range records {
			if v, ok := rec.Lookup(field); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
				xs = append(xs, v)
			}
		}
		if len(xs) == 0 {
			continue
		}

		sort.Float64s(xs)
		out = append(out, domain.FieldStats{
			Field:  field,
			Count:  len(xs),
			Mean:   stat.Mean(xs, nil),
			Median: median(xs),
			Min:    floats.Min(xs),
			Max:    floats.Max(xs),
		})
	}
	return out
}

// median of sorted xs; even lengths average the two middle values.
func median(xs []float64) float64 {
	n := len(xs)
	if n%2 == 1 {
		return xs[n/2]
	}
	return stat.Mean(xs[n/2-1:n/2+1], nil)
}
