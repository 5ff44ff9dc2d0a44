package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/opensource-finance/screener/internal/domain"
	"github.com/opensource-finance/screener/internal/quotes"
	"github.com/opensource-finance/screener/internal/repository"
	"github.com/opensource-finance/screener/internal/screen"
	"github.com/opensource-finance/screener/internal/templates"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 4 << 20

// Deps are the collaborators of the API.
type Deps struct {
	Repo      domain.Repository
	Cache     domain.Cache
	Bus       domain.EventBus
	Runner    *screen.Runner
	Quotes    quotes.Source
	Templates *templates.Applier

	// WorkerTenants mirrors the worker configuration so async run requests
	// are published where the worker listens.
	WorkerTenants []string
	DefaultMarket string
	Version       string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	Deps
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	if deps.DefaultMarket == "" {
		deps.DefaultMarket = domain.MarketAShare
	}
	return &Handler{Deps: deps}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.Repo != nil {
		if err := h.Repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.Cache != nil {
		if err := h.Cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.Bus != nil {
		if err := h.Bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.Version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// CatalogResponse lists the building blocks of a condition.
type CatalogResponse struct {
	Fields    []domain.Field  `json:"fields"`
	Operators []domain.Symbol `json:"operators"`
	CalcOps   []domain.Symbol `json:"calcOps"`
	LogicOps  []domain.Symbol `json:"logicOps"`
	Markets   []string        `json:"markets"`
}

// Catalog handles GET /catalog.
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CatalogResponse{
		Fields:    domain.Fields(),
		Operators: domain.Operators(),
		CalcOps:   domain.CalcOps(),
		LogicOps:  domain.LogicOps(),
		Markets:   []string{domain.MarketAShare, domain.MarketHK},
	})
}

// Indices handles GET /market/indices.
func (h *Handler) Indices(w http.ResponseWriter, r *http.Request) {
	if h.Quotes == nil {
		writeError(w, http.StatusServiceUnavailable, "quote source not available")
		return
	}

	indices, err := h.Quotes.Indices(r.Context())
	if err != nil {
		slog.Error("failed to fetch indices", "error", err)
		writeError(w, http.StatusBadGateway, "failed to fetch indices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"indices": indices,
		"count":   len(indices),
	})
}

// market resolves the market query parameter.
func (h *Handler) market(r *http.Request) (string, error) {
	m := r.URL.Query().Get("market")
	switch m {
	case "":
		return h.DefaultMarket, nil
	case domain.MarketAShare, domain.MarketHK:
		return m, nil
	default:
		return "", errors.New("market must be " + domain.MarketAShare + " or " + domain.MarketHK)
	}
}

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, templates.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrInvalidInput),
		errors.Is(err, screen.ErrInvalidStrategy),
		errors.Is(err, quotes.ErrUnknownMarket):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage returns the validation message for an invalid strategy and
// the error text otherwise.
func errorMessage(err error) string {
	for _, v := range []error{domain.ErrNoConditions, domain.ErrEmptyValue, domain.ErrInvalidValue, domain.ErrMissingRangeValue} {
		if errors.Is(err, v) {
			return v.Error()
		}
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
