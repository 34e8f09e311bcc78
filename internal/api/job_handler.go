package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/shaiso/cronlock/internal/jobs"
	"github.com/shaiso/cronlock/internal/scheduler"
)

// ListJobs возвращает задачи реестра.
// GET /api/v1/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	next := h.nextRuns()

	list := h.registry.Jobs()
	result := make([]JobResponse, len(list))
	for i, job := range list {
		result[i] = JobFromDomain(job, next[job.Name])
	}

	List(w, result, len(result))
}

// GetJob возвращает задачу по имени.
// GET /api/v1/jobs/{name}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.registry.Get(r.PathValue("name"))
	if HandleError(w, h.logger, err, "job not found") {
		return
	}

	Success(w, JobFromDomain(job, h.nextRuns()[job.Name]))
}

// RunJob запускает задачу вне расписания под той же блокировкой.
// Запрос ждёт исхода; разрыв соединения отменяет тело задачи.
// POST /api/v1/jobs/{name}/run
func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		Conflict(w, "runner is not configured")
		return
	}

	job, err := h.registry.Get(r.PathValue("name"))
	if HandleError(w, h.logger, err, "job not found") {
		return
	}

	var req RunJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}

	out := h.runner.Run(r.Context(), job, jobs.Options{
		DryRun: req.DryRun,
		Params: req.Params,
	})

	Success(w, RunFromOutcome(out, h.runner.HolderID()))
}

// nextRuns: время следующего запуска по имени задачи.
func (h *Handler) nextRuns() map[string]time.Time {
	next := make(map[string]time.Time)
	if h.scheduler != nil {
		for _, e := range h.scheduler.Entries() {
			next[e.Job] = e.Next
		}
		return next
	}

	now := time.Now()
	for _, job := range h.registry.Jobs() {
		if job.Schedule == "" {
			continue
		}
		if t, err := scheduler.NextRun(job.Schedule, now, h.location); err == nil {
			next[job.Name] = t
		}
	}
	return next
}
