package domain

import (
	"net/url"
	"strconv"
)

// Markets accepted by the remote quote service.
const (
	MarketAShare = "a股"
	MarketHK     = "港股"
)

// Remote paging defaults used when a strategy is projected.
const (
	ProjectedPageSize = 200
	ProjectedMaxPages = 5
)

// ParameterSet is the coarse query the remote filter endpoint understands.
// A nil bound means the parameter is absent.
type ParameterSet struct {
	Market           string   `json:"market"`
	Page             int      `json:"page"`
	PageSize         int      `json:"pageSize"`
	PEMax            *float64 `json:"peMax,omitempty"`
	PBMax            *float64 `json:"pbMax,omitempty"`
	DividendYieldMin *float64 `json:"dividendYieldMin,omitempty"`
	MarketCapMax     *float64 `json:"marketCapMax,omitempty"`
}

// NewParameterSet returns a first-page query for market with no bounds.
func NewParameterSet(market string) ParameterSet {
	return ParameterSet{Market: market, Page: 1, PageSize: ProjectedPageSize}
}

// WithPage returns a copy positioned on page.
func (p ParameterSet) WithPage(page int) ParameterSet {
	p.Page = page
	return p
}

// Query encodes the parameter set as URL query values.
func (p ParameterSet) Query() url.Values {
	q := url.Values{}
	q.Set("market", p.Market)
	q.Set("page", strconv.Itoa(p.Page))
	q.Set("pageSize", strconv.Itoa(p.PageSize))
	setBound(q, "peMax", p.PEMax)
	setBound(q, "pbMax", p.PBMax)
	setBound(q, "dividendYieldMin", p.DividendYieldMin)
	setBound(q, "marketCapMax", p.MarketCapMax)
	return q
}

func setBound(q url.Values, key string, v *float64) {
	if v != nil {
		q.Set(key, strconv.FormatFloat(*v, 'f', -1, 64))
	}
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
