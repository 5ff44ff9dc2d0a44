package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/screener/internal/api"
	"github.com/opensource-finance/screener/internal/bus"
	"github.com/opensource-finance/screener/internal/cache"
	"github.com/opensource-finance/screener/internal/config"
	"github.com/opensource-finance/screener/internal/domain"
	"github.com/opensource-finance/screener/internal/quotes"
	"github.com/opensource-finance/screener/internal/repository"
	"github.com/opensource-finance/screener/internal/scheduler"
	"github.com/opensource-finance/screener/internal/screen"
	"github.com/opensource-finance/screener/internal/templates"
	"github.com/opensource-finance/screener/internal/worker"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func serve(cfg *domain.Config) error {
	slog.SetDefault(config.NewLogger(cfg.Logging, os.Stdout))

	slog.Info("starting screener",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"quotes", cfg.Quotes.Type,
	)

	if cfg.Tracing.Enabled {
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		slog.Info("trace context propagation enabled", "service", cfg.Tracing.ServiceName)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize quote source. Full universes, templates and indices are
	// cached; projected filter pages go straight to the provider.
	src, err := quotes.New(cfg.Quotes)
	if err != nil {
		return fmt.Errorf("failed to initialize quote source: %w", err)
	}
	cached := quotes.NewCached(src, cacheImpl)
	slog.Info("quote source initialized", "type", cfg.Quotes.Type, "base_url", cfg.Quotes.BaseURL)

	runner := screen.NewRunner(cached, src, cfg.Runner)

	// Initialize async Worker
	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, repo, runner)
		workerCfg := worker.Config{
			TenantIDs:     cfg.Worker.Tenants,
			DefaultMarket: cfg.Runner.DefaultMarket,
		}
		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(cfg.Worker.Tenants))
		}
	}

	// Initialize Scheduler
	sched := scheduler.New(ctx)
	if cfg.Cache.PurgeSchedule != "" {
		if err := sched.AddJob(cfg.Cache.PurgeSchedule, &scheduler.CachePurgeJob{Cache: cacheImpl}); err != nil {
			return fmt.Errorf("failed to schedule cache purge: %w", err)
		}
	}
	sched.Start()

	// Initialize Server
	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:          repo,
		Cache:         cacheImpl,
		Bus:           busImpl,
		Runner:        runner,
		Quotes:        cached,
		Templates:     templates.NewApplier(cached),
		WorkerTenants: cfg.Worker.Tenants,
		DefaultMarket: cfg.Runner.DefaultMarket,
		Version:       Version,
	})

	// Start Server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			cancel()
		}
	}()

	slog.Info("screener is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	sched.Stop()

	// Stop async worker before the bus closes
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("screener shutdown complete")

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	default:
		return nil
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               📈 SCREENER                 ║")
	fmt.Println("  ║      Value screening strategy engine      ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Market:   %s\n", cfg.Runner.DefaultMarket)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /catalog                     - Fields and operators")
	fmt.Println("    GET  /strategies                  - List strategies")
	fmt.Println("    POST /strategies                  - Create a strategy")
	fmt.Println("    POST /strategies/{id}/run         - Run a strategy")
	fmt.Println("    POST /strategies/{id}/run/async   - Queue a strategy run")
	fmt.Println("    GET  /runs/{id}                   - Get a run")
	fmt.Println("    POST /evaluate                    - Evaluate records ad hoc")
	fmt.Println("    GET  /templates                   - List preset templates")
	fmt.Println("    GET  /market/indices              - Market indices")
	fmt.Println("    GET  /health                      - Health check")
	fmt.Println()
}
