package api

import (
	"net/http"
)

// ListLocks возвращает все записи блокировок.
// GET /api/v1/locks
func (h *Handler) ListLocks(w http.ResponseWriter, r *http.Request) {
	records, err := h.locks.List(r.Context())
	if HandleError(w, h.logger, err, "") {
		return
	}

	now := h.locks.Now(r.Context())
	result := make([]LockResponse, len(records))
	for i, rec := range records {
		result[i] = LockFromDomain(rec, now)
	}

	List(w, result, len(result))
}

// GetLock возвращает блокировку задачи.
// GET /api/v1/locks/{job}
func (h *Handler) GetLock(w http.ResponseWriter, r *http.Request) {
	job := r.PathValue("job")

	rec, err := h.locks.Get(r.Context(), job)
	if HandleError(w, h.logger, err, "lock not found") {
		return
	}

	Success(w, LockFromDomain(*rec, h.locks.Now(r.Context())))
}

// ReleaseLock снимает блокировку от имени holder.
// DELETE /api/v1/locks/{job}?holder=...
func (h *Handler) ReleaseLock(w http.ResponseWriter, r *http.Request) {
	job := r.PathValue("job")
	holder := r.URL.Query().Get("holder")
	if holder == "" {
		BadRequest(w, "holder is required")
		return
	}

	released, err := h.locks.Release(r.Context(), job, holder)
	if HandleError(w, h.logger, err, "") {
		return
	}
	if !released {
		Conflict(w, "lock is not held by "+holder)
		return
	}

	h.logger.Warn("lock released via api", "job", job, "holder_id", holder)
	NoContent(w)
}

// CleanupLocks удаляет просроченные блокировки.
// POST /api/v1/locks/cleanup
func (h *Handler) CleanupLocks(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.locks.CleanupExpired(r.Context())
	if HandleError(w, h.logger, err, "") {
		return
	}

	Success(w, CleanupResponse{Deleted: deleted})
}
