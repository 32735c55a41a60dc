package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ringworld/server/internal/api"
	"github.com/ringworld/server/internal/cache"
	"github.com/ringworld/server/internal/clock"
	"github.com/ringworld/server/internal/config"
	"github.com/ringworld/server/internal/coordinator"
	"github.com/ringworld/server/internal/generation"
	"github.com/ringworld/server/internal/lock"
	"github.com/ringworld/server/internal/performance"
	"github.com/ringworld/server/internal/streaming"
	"github.com/ringworld/server/internal/world"
)

// main starts the Ringworld chunk server.
// It wires the chunk store, streaming cache, generation orchestrator, and
// section lock manager into the request coordinator, sets up the HTTP and
// WebSocket routes, then serves until interrupted.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	clk := clock.System()

	store, err := openStore(cfg, clk)
	if err != nil {
		log.Fatalf("Failed to open chunk store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Failed to close chunk store: %v", err)
		}
	}()
	log.Printf("Chunk store ready: driver=%s", cfg.Database.Driver)

	chunks, err := cache.New(cfg.Cache.MaxEntries)
	if err != nil {
		log.Fatalf("Failed to create chunk cache: %v", err)
	}

	client := generation.NewClient(generation.ClientConfig{
		BaseURL:    cfg.Generation.BaseURL,
		Timeout:    cfg.Generation.Timeout,
		RetryCount: cfg.Generation.RetryCount,
		MaxBackoff: cfg.Generation.MaxBackoff,
	})
	orchestrator := generation.NewOrchestrator(client, store, cfg.World.Seed)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	locks := lock.NewManager(clk)
	go locks.RunSweeper(ctx, cfg.Locks.SweepInterval)

	profiler := performance.NewProfiler()
	coord := coordinator.New(store, chunks, orchestrator, locks, profiler)

	streamManager := streaming.NewManager()
	wsHandlers := api.NewWebSocketHandlers(coord, streamManager, profiler)
	go wsHandlers.Hub().Run()

	mux := http.NewServeMux()
	api.SetupChunkRoutes(mux, coord, store)
	api.SetupSectionRoutes(mux, locks, cfg.Locks.DefaultTTL)
	api.SetupStatsRoutes(mux, profiler)
	api.SetupHealthRoutes(mux)
	mux.HandleFunc("/ws", wsHandlers.HandleWebSocket)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      api.CORSMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("Ringworld server starting on %s (environment: %s)", server.Addr, cfg.Server.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
		os.Exit(1)
	}
	log.Printf("Ringworld server stopped")
}

// openStore opens the chunk store backend named by the configuration.
func openStore(cfg *config.Config, clk clock.Clock) (world.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return world.OpenPostgresStore(cfg.Database.DatabaseURL(), clk)
	case "sqlite":
		return world.OpenSQLiteStore(cfg.Database.SQLitePath, clk)
	default:
		return world.NewMemoryStore(clk), nil
	}
}
