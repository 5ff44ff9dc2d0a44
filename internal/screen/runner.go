// Package screen executes strategies against a market.
//
// A strategy with only simple conditions is projected onto the remote filter
// endpoint and paged; a strategy with a derived condition is evaluated locally
// against the full market universe.
package screen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/screener/internal/domain"
	"github.com/opensource-finance/screener/internal/metrics"
	"github.com/opensource-finance/screener/internal/rules"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// EngineVersion is stamped on every run.
const EngineVersion = "screener-1.0"

// ErrInvalidStrategy wraps the validation error of a strategy that cannot run.
var ErrInvalidStrategy = errors.New("invalid strategy")

var tracer = otel.Tracer("screener-runner")

// Runner chooses a route for a strategy and collects its matches.
type Runner struct {
	records domain.RecordSource
	filter  domain.FilterSource

	chunkSize   int
	parallelism int
	maxPages    int
}

// NewRunner creates a runner. records serves the local route and filter the
// remote route.
func NewRunner(records domain.RecordSource, filter domain.FilterSource, cfg domain.RunnerConfig) *Runner {
	r := &Runner{
		records:     records,
		filter:      filter,
		chunkSize:   cfg.ChunkSize,
		parallelism: cfg.Parallelism,
		maxPages:    cfg.MaxPages,
	}
	if r.chunkSize <= 0 {
		r.chunkSize = 500
	}
	if r.parallelism <= 0 {
		r.parallelism = 4
	}
	if r.maxPages <= 0 {
		r.maxPages = domain.ProjectedMaxPages
	}
	return r
}

// Run validates s and executes it against market.
func (r *Runner) Run(ctx context.Context, tenantID string, s *domain.Strategy, market string) (*domain.Run, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: strategy is required", ErrInvalidStrategy)
	}
	if v := s.Validate(); !v.Valid {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStrategy, v.Err())
	}

	start := time.Now()
	route := domain.RouteRemote
	if !rules.Projectable(s) {
		route = domain.RouteLocal
	}

	ctx, span := tracer.Start(ctx, "screen.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("strategy_id", s.ID),
		attribute.String("market", market),
		attribute.String("route", string(route)),
		attribute.Int("conditions", len(s.Conditions)),
	)

	run := &domain.Run{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		StrategyID:  s.ID,
		Market:      market,
		Route:       route,
		Description: rules.Describe(s),
		Timestamp:   time.Now().UTC(),
	}

	var err error
	if route == domain.RouteLocal {
		err = r.runLocal(ctx, s, run)
	} else {
		err = r.runRemote(ctx, s, run)
	}

	elapsed := time.Since(start)
	metrics.RunDuration.WithLabelValues(string(route)).Observe(elapsed.Seconds())
	if err != nil {
		metrics.RunsTotal.WithLabelValues(string(route), "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("strategy run failed",
			"tenant_id", tenantID,
			"strategy_id", s.ID,
			"route", route,
			"error", err,
		)
		return nil, err
	}
	metrics.RunsTotal.WithLabelValues(string(route), "ok").Inc()

	run.Total = len(run.Records)
	run.Summary = Summarize(run.Records)
	run.Metadata.TotalMs = elapsed.Milliseconds()
	run.Metadata.EngineVersion = EngineVersion
	if sc := span.SpanContext(); sc.HasTraceID() {
		run.Metadata.TraceID = sc.TraceID().String()
	}
	span.SetAttributes(attribute.Int("matched", run.Total), attribute.Int("scanned", run.Scanned))

	slog.Debug("strategy run completed",
		"tenant_id", tenantID,
		"run_id", run.ID,
		"route", route,
		"matched", run.Total,
		"scanned", run.Scanned,
		"total_ms", run.Metadata.TotalMs,
	)
	return run, nil
}

// runLocal fetches the full universe and evaluates every record in process.
func (r *Runner) runLocal(ctx context.Context, s *domain.Strategy, run *domain.Run) error {
	if r.records == nil {
		return errors.New("no record source configured")
	}

	fetchStart := time.Now()
	records, err := r.records.FetchAll(ctx, run.Market)
	if err != nil {
		return fmt.Errorf("failed to fetch universe: %w", err)
	}
	run.Metadata.FetchMs = time.Since(fetchStart).Milliseconds()
	run.Scanned = len(records)

	evalStart := time.Now()
	matched, err := r.filterChunks(ctx, s, records)
	if err != nil {
		return err
	}
	run.Metadata.EvalMs = time.Since(evalStart).Milliseconds()
	run.Records = matched
	metrics.RecordsEvaluated.Add(float64(len(records)))
	return nil
}

// filterChunks evaluates records in fixed-size chunks concurrently. The
// result keeps input order.
func (r *Runner) filterChunks(ctx context.Context, s *domain.Strategy, records []domain.Record) ([]domain.Record, error) {
	if len(records) <= r.chunkSize {
		return rules.Filter(s, records), nil
	}

	chunks := (len(records) + r.chunkSize - 1) / r.chunkSize
	results := make([][]domain.Record, chunks)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i := 0; i < chunks; i++ {
		i := i
		lo := i * r.chunkSize
		hi := min(lo+r.chunkSize, len(records))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = rules.Filter(s, records[lo:hi])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]domain.Record, 0)
	for _, part := range results {
		out = append(out, part...)
	}
	return out, nil
}

// runRemote projects s and pages the filter endpoint until an empty or short
// page, capped at maxPages.
func (r *Runner) runRemote(ctx context.Context, s *domain.Strategy, run *domain.Run) error {
	if r.filter == nil {
		return errors.New("no filter source configured")
	}

	params := rules.Project(s, run.Market)
	run.Params = &params

	fetchStart := time.Now()
	out := make([]domain.Record, 0)
	for page := 1; page <= r.maxPages; page++ {
		rows, err := r.filter.FetchFiltered(ctx, params.WithPage(page))
		if err != nil {
			return fmt.Errorf("failed to fetch page %d: %w", page, err)
		}
		if len(rows) == 0 {
			break
		}
		run.Pages++
		out = append(out, rows...)
		if len(rows) < params.PageSize {
			break
		}
	}
	run.Metadata.FetchMs = time.Since(fetchStart).Milliseconds()
	run.Scanned = len(out)
	run.Records = out
	return nil
}
