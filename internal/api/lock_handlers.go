package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ringworld/server/internal/lock"
)

// LockHandlers handles section lease HTTP requests.
type LockHandlers struct {
	locks      *lock.Manager
	defaultTTL time.Duration
	validator  *validator.Validate
}

// NewLockHandlers creates a new instance of LockHandlers.
func NewLockHandlers(locks *lock.Manager, defaultTTL time.Duration) *LockHandlers {
	return &LockHandlers{
		locks:      locks,
		defaultTTL: defaultTTL,
		validator:  validator.New(),
	}
}

func (h *LockHandlers) ttl(seconds int) time.Duration {
	if seconds <= 0 {
		return h.defaultTTL
	}
	return time.Duration(seconds) * time.Second
}

// AcquireLock handles POST /api/sections/acquire requests.
// Grants an exclusive-modification lease unless the section overlaps an
// active lock, in which case the blocking lock is reported with a 409.
func (h *LockHandlers) AcquireLock(w http.ResponseWriter, r *http.Request) {
	var req AcquireLockRequest
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

	granted, err := h.locks.Acquire(section, lock.ActorID(req.Actor), h.ttl(req.TTLSeconds))
	if err != nil {
		respondLockError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, newLockResponse(granted))
}

// RenewLock handles POST /api/sections/renew requests.
// Extends an active lease; an expired lease cannot be renewed.
func (h *LockHandlers) RenewLock(w http.ResponseWriter, r *http.Request) {
	var req RenewLockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respondWithValidationError(w, err)
		return
	}

	renewed, err := h.locks.Renew(req.LockID, lock.ActorID(req.Actor), h.ttl(req.TTLSeconds))
	if err != nil {
		respondLockError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, newLockResponse(renewed))
}

// ReleaseLock handles POST /api/sections/release requests.
func (h *LockHandlers) ReleaseLock(w http.ResponseWriter, r *http.Request) {
	var req ReleaseLockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respondWithValidationError(w, err)
		return
	}

	if err := h.locks.Release(req.LockID, lock.ActorID(req.Actor)); err != nil {
		respondLockError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"lock_id": req.LockID,
	})
}
