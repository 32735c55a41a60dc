package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ringworld/server/internal/cache"
	"github.com/ringworld/server/internal/coordinator"
	"github.com/ringworld/server/internal/generation"
	"github.com/ringworld/server/internal/lock"
	"github.com/ringworld/server/internal/ringmap"
	"github.com/ringworld/server/internal/world"
)

// ChunkHandlers handles chunk-related HTTP requests.
type ChunkHandlers struct {
	coord     *coordinator.Coordinator
	store     world.Store
	validator *validator.Validate
}

// NewChunkHandlers creates a new instance of ChunkHandlers.
func NewChunkHandlers(coord *coordinator.Coordinator, store world.Store) *ChunkHandlers {
	return &ChunkHandlers{
		coord:     coord,
		store:     store,
		validator: validator.New(),
	}
}

// GetChunkBatch handles POST /api/chunks/batch requests.
// Resolves up to ten chunks at one detail level; each chunk succeeds or
// fails independently, so the response always carries one entry per id.
func (h *ChunkHandlers) GetChunkBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respondWithValidationError(w, err)
		return
	}

	lod := generation.LOD(req.LOD)
	if lod == "" {
		lod = generation.LODLow
	}

	items := make([]cache.BatchItem, 0, len(req.ChunkIDs))
	for _, raw := range req.ChunkIDs {
		id, err := ringmap.ParseChunkID(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		items = append(items, cache.BatchItem{ID: id, LOD: lod})
	}

	viewpoint := items[0].ID
	if req.Viewpoint != "" {
		vp, err := ringmap.ParseChunkID(req.Viewpoint)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid viewpoint: %v", err))
			return
		}
		viewpoint = vp
	}

	results, err := h.coord.GetChunks(r.Context(), items, viewpoint)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, BatchChunkResponse{Chunks: results})
}

// GetChunkMetadata handles GET /api/chunks/{chunk_id} requests.
// Returns metadata for a specific chunk.
// chunk_id format: "floor_chunk_index" (e.g., "0_12345")
func (h *ChunkHandlers) GetChunkMetadata(w http.ResponseWriter, r *http.Request) {
	id, ok := chunkIDFromPath(w, r)
	if !ok {
		return
	}

	defaulted := false
	record, err := h.store.Get(r.Context(), id)
	if errors.Is(err, world.ErrNotFound) {
		// Ungenerated chunks project the default record rather than 404ing.
		record = world.DefaultRecord(id)
		defaulted = true
	} else if err != nil {
		log.Printf("Error querying chunk metadata: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve chunk metadata")
		return
	}

	respondWithJSON(w, http.StatusOK, ChunkMetadata{
		ID:           id.String(),
		Floor:        id.Floor,
		ChunkIndex:   id.Index,
		Version:      record.Version,
		LastModified: record.LastModified,
		IsDirty:      record.IsDirty,
		Default:      defaulted,
	})
}

// DeleteChunk handles DELETE /api/chunks/{chunk_id} requests.
// Deletes a chunk's stored record so the next request regenerates it.
func (h *ChunkHandlers) DeleteChunk(w http.ResponseWriter, r *http.Request) {
	id, ok := chunkIDFromPath(w, r)
	if !ok {
		return
	}

	log.Printf("Deleting chunk %s (floor=%d, chunk_index=%d)", id, id.Floor, id.Index)
	if err := h.coord.DeleteChunk(r.Context(), id); err != nil {
		if errors.Is(err, world.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, fmt.Sprintf("Chunk %s not found", id))
			return
		}
		log.Printf("Error deleting chunk %s: %v", id, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete chunk")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  fmt.Sprintf("Chunk %s deleted successfully. It will be regenerated on next request.", id),
		"chunk_id": id.String(),
	})
}

// EditSection handles POST /api/chunks/edit requests.
// Applies mutations to chunks inside a section under an exclusive lease.
func (h *ChunkHandlers) EditSection(w http.ResponseWriter, r *http.Request) {
	var req EditSectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respondWithValidationError(w, err)
		return
	}

	section, err := req.Section.Build()
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	edits := make([]coordinator.ChunkEdit, 0, len(req.Edits))
	for _, e := range req.Edits {
		id, err := ringmap.ParseChunkID(e.ChunkID)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		edits = append(edits, coordinator.ChunkEdit{
			ID:              id,
			Geometry:        e.Geometry,
			Attributes:      e.Attributes,
			ExpectedVersion: e.ExpectedVersion,
		})
	}

	results, err := h.coord.Edit(r.Context(), coordinator.EditRequest{
		Section: section,
		Actor:   lock.ActorID(req.Actor),
		LockID:  req.LockID,
		TTL:     time.Duration(req.TTLSeconds) * time.Second,
		Edits:   edits,
	})
	if err != nil {
		respondLockError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, EditSectionResponse{Results: results})
}

// respondLockError maps lease failures onto HTTP statuses.
func respondLockError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lock.ErrLockConflict):
		var conflict *lock.ConflictError
		if errors.As(err, &conflict) {
			respondWithJSON(w, http.StatusConflict, map[string]interface{}{
				"error":         err.Error(),
				"blocking_lock": newLockResponse(&conflict.Existing),
			})
			return
		}
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, lock.ErrNotHolder):
		respondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, lock.ErrLockNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	default:
		respondWithError(w, http.StatusBadRequest, err.Error())
	}
}

// chunkIDFromPath extracts and validates the chunk id from
// /api/chunks/{chunk_id} style paths.
func chunkIDFromPath(w http.ResponseWriter, r *http.Request) (ringmap.ChunkID, bool) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 || parts[0] != "api" || parts[1] != "chunks" {
		respondWithError(w, http.StatusBadRequest, "Invalid path")
		return ringmap.ChunkID{}, false
	}
	raw := parts[2]
	if raw == "" {
		respondWithError(w, http.StatusBadRequest, "Chunk ID is required")
		return ringmap.ChunkID{}, false
	}

	id, err := ringmap.ParseChunkID(raw)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return ringmap.ChunkID{}, false
	}
	return id, true
}
