// Scour research server: exposes the OpenAI-compatible research API and
// drives iterative web research sessions over PostgreSQL-backed storage.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/scourlabs/scour/pkg/api"
	"github.com/scourlabs/scour/pkg/config"
	"github.com/scourlabs/scour/pkg/database"
	"github.com/scourlabs/scour/pkg/fetch"
	"github.com/scourlabs/scour/pkg/llm"
	"github.com/scourlabs/scour/pkg/ratelimit"
	"github.com/scourlabs/scour/pkg/research"
	"github.com/scourlabs/scour/pkg/search"
	"github.com/scourlabs/scour/pkg/services"
	"github.com/scourlabs/scour/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// setupLogging installs the default slog handler. LOG_LEVEL accepts the
// standard level names (debug, info, warn, error); anything else keeps info.
func setupLogging() {
	level := slog.LevelInfo
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := level.UnmarshalText([]byte(v)); err != nil {
			level = slog.LevelInfo
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func main() {
	// Parse command-line flags
	configPath := flag.String("config",
		getEnv("CONFIG_FILE", "./config/config.yaml"),
		"Path to the YAML configuration file")
	flag.Parse()

	// Load .env from the config directory so secrets referenced by ${NAME}
	// placeholders are in the environment before the config is parsed.
	envPath := filepath.Join(filepath.Dir(*configPath), ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	setupLogging()
	slog.Info("Starting scour", "version", version.Full(), "config", *configPath)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configPath)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize database
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(2)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(2)
	}
	defer dbClient.Close()
	slog.Info("Connected to PostgreSQL database")

	// 3. Session store
	store := services.NewSessionStore(dbClient.Pool())

	// 4. Rate limiting and fetch admission
	governor := ratelimit.NewGovernor(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimits.RequestsPerMinute,
		MaxConcurrent:     cfg.RateLimits.MaxConcurrent,
		FailureThreshold:  cfg.RateLimits.FailureThreshold,
		FallbackModel:     cfg.RateLimits.FallbackModel,
	})
	admission := fetch.NewAdmission(cfg.Concurrency.ConcurrentLimit, cfg.Concurrency.CoolDown.Std())

	// 5. LLM client, search client, page pipeline
	llmClient, err := llm.New(cfg, governor)
	if err != nil {
		slog.Error("Failed to initialize LLM client", "error", err)
		os.Exit(1)
	}
	searcher := search.NewClient(cfg.API.SearxngURL, cfg.Concurrency.FetchTimeout.Std())
	pages := fetch.NewPipeline(cfg, governor)

	// 6. Orchestrator and run registry
	orchestrator := research.NewOrchestrator(cfg, llmClient, searcher, pages, admission, store)
	registry := research.NewRunRegistry()
	slog.Info("Research orchestrator initialized",
		"default_model", cfg.LocalAI.DefaultModel,
		"reason_model", cfg.LocalAI.ReasonModel,
		"with_planning", cfg.Settings.PlanningEnabled())

	// 7. Start HTTP server (non-blocking)
	httpServer := api.NewServer(cfg, store, orchestrator, registry, dbClient)
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(cfg.Server.Addr()); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	slog.Info("Scour started successfully", "addr", cfg.Server.Addr())

	// 8. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 9. Graceful shutdown: interrupt active runs first. Interrupted runs
	// checkpoint on a background context and their streaming handlers return
	// once that finishes, so the HTTP shutdown below waits for them.
	if n := registry.Count(); n > 0 {
		slog.Info("Interrupting active research runs", "count", n)
	}
	registry.CancelAll()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
