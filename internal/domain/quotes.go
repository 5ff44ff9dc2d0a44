package domain

import "context"

// RecordSource returns the full record universe of a market.
type RecordSource interface {
	FetchAll(ctx context.Context, market string) ([]Record, error)
}

// FilterSource returns one page of records matching a coarse parameter set.
type FilterSource interface {
	FetchFiltered(ctx context.Context, params ParameterSet) ([]Record, error)
}

// QuoteSource is a provider that supports both access paths.
type QuoteSource interface {
	RecordSource
	FilterSource
}

// QuotesConfig holds settings for the quote provider.
type QuotesConfig struct {
	// Type is "http" for the remote quote service or "static" for a local universe file.
	Type string

	BaseURL        string
	Timeout        int     // seconds
	RequestsPerSec float64 // 0 disables pacing
	PageSize       int     // page size used when fetching a full universe
	MaxPages       int     // cap on pages fetched for a full universe

	// StaticPath is a JSON array of records, used when Type is "static".
	StaticPath string
}
