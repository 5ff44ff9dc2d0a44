package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/screener/internal/bus"
	"github.com/opensource-finance/screener/internal/domain"
	"github.com/opensource-finance/screener/internal/rules"
	"github.com/tidwall/gjson"
)

// StrategyView is a strategy with its derived presentation.
type StrategyView struct {
	*domain.Strategy
	DisplayName string            `json:"displayName"`
	Summary     string            `json:"summary"`
	Projectable bool              `json:"projectable"`
	Validation  domain.Validation `json:"validation"`
}

func viewOf(s *domain.Strategy) StrategyView {
	return StrategyView{
		Strategy:    s,
		DisplayName: s.DisplayName(),
		Summary:     rules.Describe(s),
		Projectable: rules.Projectable(s),
		Validation:  s.Validate(),
	}
}

// ListStrategies handles GET /strategies.
func (h *Handler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.Repo.ListStrategies(ctx, GetTenantID(ctx))
	if err != nil {
		slog.Error("failed to list strategies", "error", err)
		writeError(w, statusFor(err), "failed to list strategies")
		return
	}

	views := make([]StrategyView, len(list))
	for i, s := range list {
		views[i] = viewOf(s)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"strategies": views,
		"count":      len(views),
	})
}

// CreateStrategy handles POST /strategies. The server assigns the id.
func (h *Handler) CreateStrategy(w http.ResponseWriter, r *http.Request) {
	s, ok := h.readStrategy(w, r)
	if !ok {
		return
	}
	s.ID = ""
	h.save(w, r, s, http.StatusCreated)
}

// GetStrategy handles GET /strategies/{id}.
func (h *Handler) GetStrategy(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadStrategy(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(s))
}

// UpdateStrategy handles PUT /strategies/{id}, replacing the whole document.
func (h *Handler) UpdateStrategy(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.loadStrategy(w, r); !ok {
		return
	}
	s, ok := h.readStrategy(w, r)
	if !ok {
		return
	}
	s.ID = chi.URLParam(r, "id")
	h.save(w, r, s, http.StatusOK)
}

// DeleteStrategy handles DELETE /strategies/{id}.
func (h *Handler) DeleteStrategy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if err := h.Repo.DeleteStrategy(ctx, GetTenantID(ctx), id); err != nil {
		writeError(w, statusFor(err), "strategy not found")
		return
	}

	slog.Info("strategy deleted", "tenant_id", GetTenantID(ctx), "id", id)
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// DescribeStrategy handles GET /strategies/{id}/describe.
func (h *Handler) DescribeStrategy(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadStrategy(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, describeResponse(s))
}

// DescribeResponse renders a strategy and each of its conditions.
type DescribeResponse struct {
	Description string            `json:"description"`
	Conditions  []string          `json:"conditions"`
	Validation  domain.Validation `json:"validation"`
}

func describeResponse(s *domain.Strategy) DescribeResponse {
	parts := make([]string, len(s.Conditions))
	for i, c := range s.Conditions {
		parts[i] = rules.DescribeCondition(c)
	}
	return DescribeResponse{
		Description: rules.Describe(s),
		Conditions:  parts,
		Validation:  s.Validate(),
	}
}

// AppendCondition handles POST /strategies/{id}/conditions. A body carrying
// only a type appends the default condition of that kind.
func (h *Handler) AppendCondition(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadStrategy(w, r)
	if !ok {
		return
	}

	body, err := readBody(r)
	if err != nil || !gjson.ValidBytes(body) {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	c, err := conditionFromBody(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.Append(c)
	h.persistDraft(w, r, s, http.StatusCreated)
}

func conditionFromBody(body []byte) (domain.Condition, error) {
	doc := gjson.ParseBytes(body)
	kind := domain.ConditionKind(doc.Get("type").String())
	bare := !doc.Get("operator").Exists() && !doc.Get("field").Exists() && !doc.Get("field1").Exists()

	switch {
	case bare && (kind == domain.KindSimple || kind == ""):
		return domain.DefaultSimpleCondition(), nil
	case bare && kind == domain.KindDerived:
		return domain.DefaultDerivedCondition(), nil
	default:
		return domain.DecodeCondition(body)
	}
}

// PatchCondition handles PATCH /strategies/{id}/conditions/{cid}.
func (h *Handler) PatchCondition(w http.ResponseWriter, r *http.Request) {
	var patch domain.ConditionPatch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	h.editCondition(w, r, func(s *domain.Strategy, cid string) {
		s.Update(cid, patch)
	})
}

// RemoveCondition handles DELETE /strategies/{id}/conditions/{cid}.
func (h *Handler) RemoveCondition(w http.ResponseWriter, r *http.Request) {
	h.editCondition(w, r, func(s *domain.Strategy, cid string) {
		s.Remove(cid)
	})
}

// MoveCondition handles POST /strategies/{id}/conditions/{cid}/move?direction=up|down.
func (h *Handler) MoveCondition(w http.ResponseWriter, r *http.Request) {
	dir := domain.Direction(r.URL.Query().Get("direction"))
	if dir != domain.Up && dir != domain.Down {
		writeError(w, http.StatusBadRequest, "direction must be up or down")
		return
	}
	h.editCondition(w, r, func(s *domain.Strategy, cid string) {
		s.Move(cid, dir)
	})
}

// ToggleCondition handles POST /strategies/{id}/conditions/{cid}/toggle.
func (h *Handler) ToggleCondition(w http.ResponseWriter, r *http.Request) {
	h.editCondition(w, r, func(s *domain.Strategy, cid string) {
		s.ToggleLogicOp(cid)
	})
}

func (h *Handler) editCondition(w http.ResponseWriter, r *http.Request, edit func(s *domain.Strategy, cid string)) {
	s, ok := h.loadStrategy(w, r)
	if !ok {
		return
	}
	cid := chi.URLParam(r, "cid")
	if _, found := s.Condition(cid); !found {
		writeError(w, http.StatusNotFound, "condition not found")
		return
	}
	edit(s, cid)
	h.persistDraft(w, r, s, http.StatusOK)
}

// readStrategy decodes a schema-checked strategy document from the body.
func (h *Handler) readStrategy(w http.ResponseWriter, r *http.Request) (*domain.Strategy, bool) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	s, err := DecodeStrategy(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return s, true
}

func (h *Handler) loadStrategy(w http.ResponseWriter, r *http.Request) (*domain.Strategy, bool) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	s, err := h.Repo.GetStrategy(ctx, GetTenantID(ctx), id)
	if err != nil {
		if statusFor(err) != http.StatusNotFound {
			slog.Error("failed to get strategy", "id", id, "error", err)
		}
		writeError(w, statusFor(err), "strategy not found")
		return nil, false
	}
	return s, true
}

// save stores a complete strategy document. The document must validate.
func (h *Handler) save(w http.ResponseWriter, r *http.Request, s *domain.Strategy, status int) {
	if v := s.Validate(); !v.Valid {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      v.Error,
			"validation": v,
		})
		return
	}
	h.persistDraft(w, r, s, status)
}

// persistDraft stores s as is, valid or not, and announces the save.
func (h *Handler) persistDraft(w http.ResponseWriter, r *http.Request, s *domain.Strategy, status int) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if err := h.Repo.SaveStrategy(ctx, tenantID, s); err != nil {
		slog.Error("failed to save strategy", "id", s.ID, "error", err)
		writeError(w, statusFor(err), "failed to save strategy")
		return
	}

	if h.Bus != nil {
		event := map[string]string{"id": s.ID, "name": s.DisplayName()}
		if err := bus.PublishJSON(ctx, h.Bus, tenantID, domain.TopicStrategySaved, event); err != nil {
			slog.Warn("failed to publish strategy saved", "id", s.ID, "error", err)
		}
	}

	writeJSON(w, status, viewOf(s))
}
