package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/opensource-finance/screener/internal/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Deps) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Global middleware stack
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", TenantIDHeader, RequestIDHeader, TraceIDHeader, "Authorization"},
		ExposedHeaders:   []string{RequestIDHeader, TraceIDHeader},
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Public endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/catalog", handler.Catalog)
	router.Get("/market/indices", handler.Indices)

	// API routes (tenant required)
	router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Ad hoc strategies
		r.Post("/evaluate", handler.Evaluate)
		r.Post("/project", handler.Project)
		r.Post("/describe", handler.Describe)

		// Strategy management
		r.Get("/strategies", handler.ListStrategies)
		r.Post("/strategies", handler.CreateStrategy)
		r.Get("/strategies/{id}", handler.GetStrategy)
		r.Put("/strategies/{id}", handler.UpdateStrategy)
		r.Delete("/strategies/{id}", handler.DeleteStrategy)
		r.Get("/strategies/{id}/describe", handler.DescribeStrategy)

		// Condition editing
		r.Post("/strategies/{id}/conditions", handler.AppendCondition)
		r.Patch("/strategies/{id}/conditions/{cid}", handler.PatchCondition)
		r.Delete("/strategies/{id}/conditions/{cid}", handler.RemoveCondition)
		r.Post("/strategies/{id}/conditions/{cid}/move", handler.MoveCondition)
		r.Post("/strategies/{id}/conditions/{cid}/toggle", handler.ToggleCondition)

		// Runs
		r.Post("/strategies/{id}/run", handler.RunStrategy)
		r.Post("/strategies/{id}/run/async", handler.RunStrategyAsync)
		r.Get("/runs/{id}", handler.GetRun)

		// Templates
		r.Get("/templates", handler.ListTemplates)
		r.Post("/templates/{id}/apply", handler.ApplyTemplate)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  domain.Timeout(s.config.ReadTimeout),
		WriteTimeout: domain.Timeout(s.config.WriteTimeout),
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
