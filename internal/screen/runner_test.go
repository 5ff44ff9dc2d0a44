package screen

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/opensource-finance/screener/internal/domain"
)

// pagedSource serves FetchFiltered from fixed page sizes and records requests.
type pagedSource struct {
	sizes    []int
	requests []domain.ParameterSet
	err      error
}

func (p *pagedSource) FetchFiltered(ctx context.Context, params domain.ParameterSet) ([]domain.Record, error) {
	p.requests = append(p.requests, params)
	if p.err != nil {
		return nil, p.err
	}
	idx := params.Page - 1
	if idx >= len(p.sizes) {
		return nil, nil
	}
	rows := make([]domain.Record, p.sizes[idx])
	for i := range rows {
		rows[i] = domain.NewRecord(fmt.Sprintf("p%d-%d", params.Page, i), "", map[string]float64{"pb": 0.5})
	}
	return rows, nil
}

// universeSource serves FetchAll from a fixed slice.
type universeSource struct {
	records []domain.Record
	err     error
}

func (u *universeSource) FetchAll(ctx context.Context, market string) ([]domain.Record, error) {
	return u.records, u.err
}

func simpleStrategy() *domain.Strategy {
	s := &domain.Strategy{ID: "s-simple"}
	s.Append(domain.NewSimpleCondition(domain.FieldPB, domain.OpLT, "1"))
	s.Append(domain.NewSimpleCondition(domain.FieldPE, domain.OpLTE, "15"))
	return s
}

func derivedStrategy() *domain.Strategy {
	s := &domain.Strategy{ID: "s-graham"}
	s.Append(domain.DefaultDerivedCondition())
	return s
}

func TestRunnerRemoteRoute(t *testing.T) {
	ctx := context.Background()
	cfg := domain.RunnerConfig{}

	tests := []struct {
		name      string
		sizes     []int
		wantPages int
		wantReqs  int
		wantTotal int
	}{
		{"SinglePartialPage", []int{37}, 1, 1, 37},
		{"StopsAfterShortPage", []int{200, 200, 12, 200}, 3, 3, 412},
		{"StopsOnEmptyPage", []int{200, 0}, 1, 2, 200},
		{"CapsAtFivePages", []int{200, 200, 200, 200, 200, 200, 200}, 5, 5, 1000},
		{"NoResults", nil, 0, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &pagedSource{sizes: tt.sizes}
			r := NewRunner(nil, src, cfg)

			run, err := r.Run(ctx, "tenant-001", simpleStrategy(), domain.MarketAShare)
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if run.Route != domain.RouteRemote {
				t.Errorf("expected remote route, got %s", run.Route)
			}
			if run.Pages != tt.wantPages || len(src.requests) != tt.wantReqs || run.Total != tt.wantTotal {
				t.Errorf("pages=%d reqs=%d total=%d, want %d/%d/%d",
					run.Pages, len(src.requests), run.Total, tt.wantPages, tt.wantReqs, tt.wantTotal)
			}
			for i, req := range src.requests {
				if req.Page != i+1 || req.PageSize != domain.ProjectedPageSize {
					t.Errorf("request %d has page=%d size=%d", i, req.Page, req.PageSize)
				}
			}
		})
	}

	t.Run("ProjectedParams", func(t *testing.T) {
		src := &pagedSource{sizes: []int{1}}
		run, err := NewRunner(nil, src, cfg).Run(ctx, "t", simpleStrategy(), domain.MarketHK)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		p := run.Params
		if p == nil || p.Market != domain.MarketHK || p.PBMax == nil || *p.PBMax != 1 || p.PEMax == nil || *p.PEMax != 15 {
			t.Errorf("unexpected params %+v", p)
		}
		if run.Description == "" || run.Metadata.EngineVersion != EngineVersion || run.ID == "" {
			t.Errorf("run not stamped: %+v", run)
		}
	})

	t.Run("ProviderError", func(t *testing.T) {
		boom := errors.New("upstream down")
		_, err := NewRunner(nil, &pagedSource{err: boom}, cfg).Run(ctx, "t", simpleStrategy(), domain.MarketAShare)
		if !errors.Is(err, boom) {
			t.Errorf("expected provider error, got %v", err)
		}
	})
}

func TestRunnerLocalRoute(t *testing.T) {
	ctx := context.Background()

	var universe []domain.Record
	for i := 0; i < 23; i++ {
		// pe*pb alternates 10 and 30 so every other record matches.
		pb := 1.0
		if i%2 == 1 {
			pb = 3.0
		}
		universe = append(universe, domain.NewRecord(fmt.Sprintf("%03d", i), "", map[string]float64{"pe": 10, "pb": pb}))
	}

	t.Run("ChunkedKeepsOrder", func(t *testing.T) {
		r := NewRunner(&universeSource{records: universe}, nil, domain.RunnerConfig{ChunkSize: 4, Parallelism: 3})
		run, err := r.Run(ctx, "t", derivedStrategy(), domain.MarketAShare)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if run.Route != domain.RouteLocal || run.Params != nil {
			t.Errorf("expected local route without params, got %s %+v", run.Route, run.Params)
		}
		if run.Scanned != 23 || run.Total != 12 {
			t.Fatalf("scanned=%d total=%d, want 23/12", run.Scanned, run.Total)
		}
		for i, rec := range run.Records {
			if want := fmt.Sprintf("%03d", i*2); rec.Code != want {
				t.Fatalf("record %d: expected %s, got %s", i, want, rec.Code)
			}
		}
	})

	t.Run("EmptyUniverse", func(t *testing.T) {
		run, err := NewRunner(&universeSource{}, nil, domain.RunnerConfig{}).Run(ctx, "t", derivedStrategy(), domain.MarketAShare)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if run.Total != 0 || run.Records == nil {
			t.Errorf("expected empty non-nil result, got %+v", run.Records)
		}
	})

	t.Run("ProviderError", func(t *testing.T) {
		boom := errors.New("timeout")
		_, err := NewRunner(&universeSource{err: boom}, nil, domain.RunnerConfig{}).Run(ctx, "t", derivedStrategy(), domain.MarketAShare)
		if !errors.Is(err, boom) {
			t.Errorf("expected provider error, got %v", err)
		}
	})
}

func TestRunnerRejectsInvalidStrategy(t *testing.T) {
	r := NewRunner(&universeSource{}, &pagedSource{}, domain.RunnerConfig{})

	_, err := r.Run(context.Background(), "t", &domain.Strategy{}, domain.MarketAShare)
	if !errors.Is(err, ErrInvalidStrategy) || !errors.Is(err, domain.ErrNoConditions) {
		t.Errorf("expected ErrInvalidStrategy wrapping ErrNoConditions, got %v", err)
	}

	s := &domain.Strategy{}
	s.Append(domain.NewSimpleCondition(domain.FieldPE, domain.OpLT, ""))
	if _, err := r.Run(context.Background(), "t", s, domain.MarketAShare); !errors.Is(err, domain.ErrEmptyValue) {
		t.Errorf("expected ErrEmptyValue, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	records := []domain.Record{
		domain.NewRecord("a", "", map[string]float64{"pe": 10, "pb": 1}),
		domain.NewRecord("b", "", map[string]float64{"pe": 4, "pb": 3}),
		domain.NewRecord("c", "", map[string]float64{"pe": 7}),
		domain.NewRecord("d", "", map[string]float64{"pe": 1}),
	}

	stats := Summarize(records)
	if len(stats) != 2 {
		t.Fatalf("expected pe and pb stats, got %+v", stats)
	}

	pe := stats[0]
	if pe.Field != domain.FieldPE || pe.Count != 4 || pe.Mean != 5.5 || pe.Median != 5.5 || pe.Min != 1 || pe.Max != 10 {
		t.Errorf("unexpected pe stats %+v", pe)
	}
	pb := stats[1]
	if pb.Count != 2 || pb.Mean != 2 || pb.Median != 2 {
		t.Errorf("unexpected pb stats %+v", pb)
	}

	if Summarize(nil) != nil {
		t.Error("expected nil summary for no records")
	}
}
