// Kestrel - fleet trip edge-case detection and data recovery.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fleetops/kestrel/internal/api"
	"github.com/fleetops/kestrel/internal/baseline"
	"github.com/fleetops/kestrel/internal/bus"
	"github.com/fleetops/kestrel/internal/cache"
	"github.com/fleetops/kestrel/internal/domain"
	"github.com/fleetops/kestrel/internal/recovery"
	"github.com/fleetops/kestrel/internal/repository"
	"github.com/fleetops/kestrel/internal/rules"
	"github.com/fleetops/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

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
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Baseline Service
	baselineSvc := baseline.NewService(repo, cacheImpl)
	slog.Info("baseline service initialized")

	// Initialize Rule Engine with baseline getter
	engine, err := rules.NewEngine(baselineSvc.Getter())
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}

	// Builtin catalog first, database rules layered on top
	if err := loadRules(ctx, repo, engine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Initialize Recovery Analyzer
	analyzer := recovery.NewAnalyzer()
	slog.Info("recovery analyzer initialized")

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, cacheImpl, engine)

		// Fleet IDs to process (comma-separated, from environment)
		var fleetIDs []string
		if envFleets := os.Getenv("KESTREL_FLEETS"); envFleets != "" {
			for _, id := range strings.Split(envFleets, ",") {
				if id = strings.TrimSpace(id); id != "" {
					fleetIDs = append(fleetIDs, id)
				}
			}
		}

		workerCfg := worker.Config{
			FleetIDs:    fleetIDs,
			WorkerCount: 5,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "fleet_count", len(fleetIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, cfg.Analysis, repo, cacheImpl, busImpl, engine, analyzer, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
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

	slog.Info("kestrel shutdown complete")
}

// loadRules loads the builtin catalog and layers database rules on top.
// Database rules are global (fleet_id = "*") and managed via POST /rules.
func loadRules(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	catalog := rules.BuiltinRules()

	dbRules, err := repo.ListRules(ctx, api.GlobalFleetID)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		// Start with the builtin catalog only; database rules can be added
		// via the API and hot-reloaded.
		return engine.LoadRules(catalog)
	}

	if len(dbRules) > 0 {
		slog.Info("loading rules from database", "count", len(dbRules))
		catalog = append(catalog, dbRules...)
	}

	return engine.LoadRules(catalog)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  KESTREL - Fleet Edge-Case Detection Engine")
	fmt.Println("  Every trip accounted for.")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST  /trips                    - Ingest and analyze a trip")
	fmt.Println("    GET   /trips/{id}               - Get trip by ID")
	fmt.Println("    GET   /detections               - List detections")
	fmt.Println("    GET   /detections/summary       - Batch analysis summary")
	fmt.Println("    GET   /detections/{id}          - Get detection by case ID")
	fmt.Println("    PATCH /detections/{id}/status   - Update resolution status")
	fmt.Println("    GET   /vehicles/{id}/recovery   - Run data recovery analysis")
	fmt.Println("    GET   /rules                    - List loaded rules")
	fmt.Println("    POST  /rules                    - Create a new rule")
	fmt.Println("    POST  /rules/reload             - Hot-reload rules from database")
	fmt.Println("    GET   /health                   - Health check")
	fmt.Println()
}
