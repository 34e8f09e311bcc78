package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Locks
	mux.Handle("GET /api/v1/locks", chain(http.HandlerFunc(h.ListLocks)))
	mux.Handle("GET /api/v1/locks/{job}", chain(http.HandlerFunc(h.GetLock)))
	mux.Handle("DELETE /api/v1/locks/{job}", chain(http.HandlerFunc(h.ReleaseLock)))
	mux.Handle("POST /api/v1/locks/cleanup", chain(http.HandlerFunc(h.CleanupLocks)))

	// Jobs
	mux.Handle("GET /api/v1/jobs", chain(http.HandlerFunc(h.ListJobs)))
	mux.Handle("GET /api/v1/jobs/{name}", chain(http.HandlerFunc(h.GetJob)))
	mux.Handle("POST /api/v1/jobs/{name}/run", chain(http.HandlerFunc(h.RunJob)))
}
