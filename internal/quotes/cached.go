package quotes

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/opensource-finance/screener/internal/cache"
	"github.com/opensource-finance/screener/internal/domain"
	"github.com/opensource-finance/screener/internal/metrics"
)

// Source is a quote provider that also serves index quotes.
type Source interface {
	domain.QuoteSource
	Indices(ctx context.Context) ([]domain.Record, error)
}

// Cached serves a Source through a cache. Lookup failures fall through to the
// source; an empty result is never stored.
type Cached struct {
	src   Source
	cache domain.Cache
}

// NewCached wraps src with c.
func NewCached(src Source, c domain.Cache) *Cached {
	return &Cached{src: src, cache: c}
}

// FetchAll returns the market universe, cached under the stockList kind.
func (c *Cached) FetchAll(ctx context.Context, market string) ([]domain.Record, error) {
	key := StockListKey(market)
	return c.load(ctx, domain.CacheKindStockList, key, domain.TTLStockList, func(ctx context.Context) ([]domain.Record, error) {
		return c.src.FetchAll(ctx, market)
	})
}

// FetchFiltered returns one filtered page, cached under the filterResult kind.
func (c *Cached) FetchFiltered(ctx context.Context, params domain.ParameterSet) ([]domain.Record, error) {
	key := FilterKey(params)
	return c.load(ctx, domain.CacheKindFilterResult, key, domain.TTLFilterResult, func(ctx context.Context) ([]domain.Record, error) {
		return c.src.FetchFiltered(ctx, params)
	})
}

// Indices returns index quotes, cached under the indices kind.
func (c *Cached) Indices(ctx context.Context) ([]domain.Record, error) {
	return c.load(ctx, domain.CacheKindIndices, domain.CacheKindIndices, domain.TTLIndices, c.src.Indices)
}

// RefreshFiltered drops the cached page for params and fetches it again.
func (c *Cached) RefreshFiltered(ctx context.Context, params domain.ParameterSet) ([]domain.Record, error) {
	if err := c.cache.Delete(ctx, FilterKey(params)); err != nil {
		slog.Warn("cache delete failed", "kind", domain.CacheKindFilterResult, "error", err)
	}
	return c.FetchFiltered(ctx, params)
}

// Invalidate drops the cached universe of market.
func (c *Cached) Invalidate(ctx context.Context, market string) error {
	return c.cache.Delete(ctx, StockListKey(market))
}

func (c *Cached) load(ctx context.Context, kind, key string, ttl time.Duration, fetch func(context.Context) ([]domain.Record, error)) ([]domain.Record, error) {
	records, err := c.cache.GetRecords(ctx, key)
	if err != nil {
		slog.Warn("cache lookup failed", "kind", kind, "error", err)
	}
	if err == nil && records != nil {
		metrics.CacheLookups.WithLabelValues(kind, "hit").Inc()
		return records, nil
	}
	metrics.CacheLookups.WithLabelValues(kind, "miss").Inc()

	records, err = fetch(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		if err := c.cache.SetRecords(ctx, key, records, ttl); err != nil {
			slog.Warn("cache store failed", "kind", kind, "error", err)
		}
	}
	return records, nil
}

// StockListKey is the cache key of a market universe.
func StockListKey(market string) string {
	return cache.Key(domain.CacheKindStockList, url.Values{"market": {market}})
}

// FilterKey is the cache key of one filtered page.
func FilterKey(params domain.ParameterSet) string {
	return cache.Key(domain.CacheKindFilterResult, params.Query())
}
