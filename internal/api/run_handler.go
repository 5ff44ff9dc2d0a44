package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/screener/internal/bus"
	"github.com/opensource-finance/screener/internal/domain"
	"github.com/opensource-finance/screener/internal/quotes"
	"github.com/opensource-finance/screener/internal/rules"
	"github.com/opensource-finance/screener/internal/templates"
	"github.com/opensource-finance/screener/internal/worker"
)

// RunStrategy handles POST /strategies/{id}/run?market=. The run is executed
// synchronously and stored.
func (h *Handler) RunStrategy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	market, err := h.market(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s, ok := h.loadStrategy(w, r)
	if !ok {
		return
	}

	run, err := h.Runner.Run(ctx, tenantID, s, market)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		writeError(w, status, errorMessage(err))
		return
	}
	if run.Metadata.TraceID == "" {
		run.Metadata.TraceID = GetTraceID(ctx)
	}

	if err := h.Repo.SaveRun(ctx, tenantID, run); err != nil {
		slog.Error("failed to save run", "run_id", run.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, run)
}

// RunAccepted is the response of an async run request.
type RunAccepted struct {
	RunID      string `json:"runId"`
	StrategyID string `json:"strategyId"`
	Market     string `json:"market"`
	Status     string `json:"status"`
}

// RunStrategyAsync handles POST /strategies/{id}/run/async. The worker stores
// the run under the returned id.
func (h *Handler) RunStrategyAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.Bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}
	market, err := h.market(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s, ok := h.loadStrategy(w, r)
	if !ok {
		return
	}
	if v := s.Validate(); !v.Valid {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": v.Error, "validation": v})
		return
	}

	req := domain.RunRequest{
		RunID:      uuid.New().String(),
		TenantID:   tenantID,
		StrategyID: s.ID,
		Market:     market,
	}
	scope := worker.Scope(h.WorkerTenants, tenantID)
	if err := bus.PublishJSON(ctx, h.Bus, scope, domain.TopicRunRequested, req); err != nil {
		slog.Error("failed to publish run request", "strategy_id", s.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to queue run")
		return
	}

	writeJSON(w, http.StatusAccepted, RunAccepted{
		RunID:      req.RunID,
		StrategyID: s.ID,
		Market:     market,
		Status:     "queued",
	})
}

// GetRun handles GET /runs/{id}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	run, err := h.Repo.GetRun(ctx, GetTenantID(ctx), id)
	if err != nil {
		if statusFor(err) != http.StatusNotFound {
			slog.Error("failed to get run", "id", id, "error", err)
		}
		writeError(w, statusFor(err), "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// AdhocRequest carries an unsaved strategy.
type AdhocRequest struct {
	Strategy json.RawMessage `json:"strategy"`
	Records  []domain.Record `json:"records,omitempty"`
	Market   string          `json:"market,omitempty"`
}

// EvaluateResponse is the response for POST /evaluate.
type EvaluateResponse struct {
	Matches     []bool          `json:"matches"`
	Matched     []domain.Record `json:"matched"`
	Total       int             `json:"total"`
	Description string          `json:"description"`
	Metadata    struct {
		TraceID string `json:"traceId"`
		EvalMs  int64  `json:"evalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Evaluate handles POST /evaluate, checking records against an unsaved strategy.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	req, s, ok := h.readAdhoc(w, r)
	if !ok {
		return
	}

	start := time.Now()
	matches := rules.Matches(s, req.Records)
	matched := make([]domain.Record, 0)
	for i, m := range matches {
		if m {
			matched = append(matched, req.Records[i])
		}
	}

	var resp EvaluateResponse
	resp.Matches = matches
	resp.Matched = matched
	resp.Total = len(req.Records)
	resp.Description = rules.Describe(s)
	resp.Metadata.TraceID = GetTraceID(r.Context())
	resp.Metadata.EvalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.Version
	writeJSON(w, http.StatusOK, resp)
}

// ProjectResponse is the response for POST /project.
type ProjectResponse struct {
	Params      domain.ParameterSet `json:"params"`
	Query       string              `json:"query"`
	Projectable bool                `json:"projectable"`
}

// Project handles POST /project.
func (h *Handler) Project(w http.ResponseWriter, r *http.Request) {
	req, s, ok := h.readAdhoc(w, r)
	if !ok {
		return
	}
	market := req.Market
	if market == "" {
		market = h.DefaultMarket
	}

	params := rules.Project(s, market)
	writeJSON(w, http.StatusOK, ProjectResponse{
		Params:      params,
		Query:       params.Query().Encode(),
		Projectable: rules.Projectable(s),
	})
}

// Describe handles POST /describe.
func (h *Handler) Describe(w http.ResponseWriter, r *http.Request) {
	_, s, ok := h.readAdhoc(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, describeResponse(s))
}

func (h *Handler) readAdhoc(w http.ResponseWriter, r *http.Request) (*AdhocRequest, *domain.Strategy, bool) {
	var req AdhocRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return nil, nil, false
	}
	if len(req.Strategy) == 0 {
		writeError(w, http.StatusBadRequest, "strategy is required")
		return nil, nil, false
	}
	s, err := DecodeStrategy(req.Strategy)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, nil, false
	}
	return &req, s, true
}

// ListTemplates handles GET /templates.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	type view struct {
		templates.Template
		Summary string `json:"summary"`
	}
	all := templates.All()
	out := make([]view, len(all))
	for i, t := range all {
		out[i] = view{Template: t, Summary: t.Describe()}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"templates": out,
		"count":     len(out),
	})
}

// ApplyTemplate handles POST /templates/{id}/apply?market=&refresh=true.
// refresh drops the cached page before fetching.
func (h *Handler) ApplyTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if h.Templates == nil {
		writeError(w, http.StatusServiceUnavailable, "quote source not available")
		return
	}
	market, err := h.market(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if r.URL.Query().Get("refresh") == "true" {
		if cached, ok := h.Quotes.(*quotes.Cached); ok {
			if t, found := templates.Get(id); found {
				if _, err := cached.RefreshFiltered(ctx, t.Query(market)); err != nil {
					slog.Warn("template refresh failed", "template", id, "error", err)
				}
			}
		}
	}

	res, err := h.Templates.Apply(ctx, id, market)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}
