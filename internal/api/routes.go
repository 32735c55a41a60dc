package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ringworld/server/internal/coordinator"
	"github.com/ringworld/server/internal/lock"
	"github.com/ringworld/server/internal/performance"
	"github.com/ringworld/server/internal/world"
)

// SetupChunkRoutes registers chunk data and edit routes.
func SetupChunkRoutes(mux *http.ServeMux, coord *coordinator.Coordinator, store world.Store) {
	handlers := NewChunkHandlers(coord, store)

	// Handler that routes based on path and method
	chunkHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/chunks")
		path = strings.Trim(path, "/")

		switch {
		case r.Method == http.MethodPost && path == "batch":
			handlers.GetChunkBatch(w, r)
		case r.Method == http.MethodPost && path == "edit":
			handlers.EditSection(w, r)
		case r.Method == http.MethodGet && path != "":
			handlers.GetChunkMetadata(w, r)
		case r.Method == http.MethodDelete && path != "":
			handlers.DeleteChunk(w, r)
		default:
			http.NotFound(w, r)
		}
	})

	mux.Handle("/api/chunks/", chunkHandler)
	mux.Handle("/api/chunks", chunkHandler) // Handle /api/chunks without trailing slash
}

// SetupSectionRoutes registers section lease routes.
func SetupSectionRoutes(mux *http.ServeMux, locks *lock.Manager, defaultTTL time.Duration) {
	handlers := NewLockHandlers(locks, defaultTTL)

	sectionHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/sections")
		path = strings.Trim(path, "/")

		switch {
		case r.Method == http.MethodPost && path == "acquire":
			handlers.AcquireLock(w, r)
		case r.Method == http.MethodPost && path == "renew":
			handlers.RenewLock(w, r)
		case r.Method == http.MethodPost && path == "release":
			handlers.ReleaseLock(w, r)
		default:
			http.NotFound(w, r)
		}
	})

	mux.Handle("/api/sections/", sectionHandler)
	mux.Handle("/api/sections", sectionHandler)
}

// SetupStatsRoutes registers performance snapshot routes.
func SetupStatsRoutes(mux *http.ServeMux, profiler *performance.Profiler) {
	handlers := NewStatsHandlers(profiler)

	statsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/stats")
		path = strings.Trim(path, "/")

		switch {
		case r.Method == http.MethodGet && path == "":
			handlers.GetStats(w, r)
		case r.Method == http.MethodPost && path == "reset":
			handlers.ResetStats(w, r)
		default:
			http.NotFound(w, r)
		}
	})

	mux.Handle("/api/stats/", statsHandler)
	mux.Handle("/api/stats", statsHandler)
}

// SetupHealthRoutes registers the liveness endpoint.
func SetupHealthRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","service":"ringworld-server"}`)
	})
}
