// Package quotes provides record sources backed by the remote quote service,
// a static universe, and a caching wrapper.
package quotes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/screener/internal/domain"
	"github.com/opensource-finance/screener/internal/metrics"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// ErrUnknownMarket is returned for a market the quote service does not serve.
var ErrUnknownMarket = errors.New("unknown market")

// Endpoint paths of the remote quote service.
const (
	PathIndices = "/api/market/indices"
	PathAShare  = "/api/stocks/a-share"
	PathHK      = "/api/stocks/hk"
	PathFilter  = "/api/stocks/filter"
)

// maxBodyBytes caps a single response body.
const maxBodyBytes = 32 << 20

// Client talks to the remote quote service over HTTP.
type Client struct {
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	pageSize int
	maxPages int
}

// Page is one decoded response envelope.
type Page struct {
	Records    []domain.Record
	Total      int
	UpdateTime string
}

// NewClient creates a client for the quote service described by cfg.
func NewClient(cfg domain.QuotesConfig) *Client {
	timeout := domain.Timeout(cfg.Timeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > 500 {
		pageSize = 500
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 20
	}

	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(limit, 1),
		pageSize: pageSize,
		maxPages: maxPages,
	}
}

// ListPath returns the stock list endpoint for market.
func ListPath(market string) (string, error) {
	switch market {
	case domain.MarketAShare:
		return PathAShare, nil
	case domain.MarketHK:
		return PathHK, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMarket, market)
	}
}

// FetchAll pages through the market's stock list until a short page, the
// reported total, or the page cap is reached.
func (c *Client) FetchAll(ctx context.Context, market string) ([]domain.Record, error) {
	path, err := ListPath(market)
	if err != nil {
		return nil, err
	}

	var all []domain.Record
	for page := 1; page <= c.maxPages; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("pageSize", strconv.Itoa(c.pageSize))

		p, err := c.get(ctx, path, q)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s page %d: %w", market, page, err)
		}
		all = append(all, p.Records...)

		if len(p.Records) < c.pageSize || (p.Total >= 0 && len(all) >= p.Total) {
			break
		}
	}
	return all, nil
}

// FetchFiltered requests one page of the remote filter endpoint.
func (c *Client) FetchFiltered(ctx context.Context, params domain.ParameterSet) ([]domain.Record, error) {
	p, err := c.get(ctx, PathFilter, params.Query())
	if err != nil {
		return nil, fmt.Errorf("failed to filter page %d: %w", params.Page, err)
	}
	return p.Records, nil
}

// Indices returns the market index quotes.
func (c *Client) Indices(ctx context.Context) ([]domain.Record, error) {
	p, err := c.get(ctx, PathIndices, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch indices: %w", err)
	}
	return p.Records, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) (*Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.QuoteRequests.WithLabelValues(path, "error").Inc()
		return nil, err
	}
	defer resp.Body.Close()
	metrics.QuoteRequests.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("quote service returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	return ParsePage(body)
}

// ParsePage decodes the {success, data, total, updateTime} envelope.
func ParsePage(body []byte) (*Page, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("quote service returned invalid json")
	}
	doc := gjson.ParseBytes(body)
	if !doc.Get("success").Bool() {
		msg := doc.Get("message").String()
		if msg == "" {
			msg = doc.Get("detail").String()
		}
		return nil, fmt.Errorf("quote service reported failure: %s", msg)
	}

	data := doc.Get("data")
	if !data.IsArray() {
		return nil, errors.New("quote service response has no data array")
	}

	p := &Page{Total: -1, UpdateTime: doc.Get("updateTime").String()}
	data.ForEach(func(_, row gjson.Result) bool {
		if row.IsObject() {
			p.Records = append(p.Records, domain.ParseRecord(row))
		}
		return true
	})
	if total := doc.Get("total"); total.Exists() {
		p.Total = int(total.Int())
	}
	return p, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
