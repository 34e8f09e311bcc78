package api

import (
	"time"

	"github.com/shaiso/cronlock/internal/domain"
	"github.com/shaiso/cronlock/internal/jobs"
	"github.com/shaiso/cronlock/internal/runner"
)

// Lock DTOs

// LockResponse: ответ с записью блокировки.
type LockResponse struct {
	Job          string    `json:"job"`
	HolderID     string    `json:"holder_id"`
	AcquiredAt   time.Time `json:"acquired_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	RemainingSec float64   `json:"remaining_sec"`
	Expired      bool      `json:"expired"`
}

// LockFromDomain конвертирует domain.LockRecord в LockResponse.
// now берётся из часов хранилища.
func LockFromDomain(rec domain.LockRecord, now time.Time) LockResponse {
	return LockResponse{
		Job:          rec.JobName,
		HolderID:     rec.HolderID,
		AcquiredAt:   rec.AcquiredAt,
		ExpiresAt:    rec.ExpiresAt,
		RemainingSec: rec.Remaining(now).Seconds(),
		Expired:      rec.IsExpired(now),
	}
}

// CleanupResponse: результат очистки.
type CleanupResponse struct {
	Deleted int64 `json:"deleted"`
}

// Job DTOs

// JobResponse: ответ с задачей из реестра.
type JobResponse struct {
	Name                string     `json:"name"`
	Schedule            string     `json:"schedule,omitempty"`
	NextRun             *time.Time `json:"next_run,omitempty"`
	MaxExecutionTimeSec float64    `json:"max_execution_time_sec"`
	Description         string     `json:"description,omitempty"`
}

// JobFromDomain конвертирует jobs.Job в JobResponse.
func JobFromDomain(job jobs.Job, next time.Time) JobResponse {
	resp := JobResponse{
		Name:                job.Name,
		Schedule:            job.Schedule,
		MaxExecutionTimeSec: job.MaxExecutionTime.Seconds(),
		Description:         job.Description,
	}
	if !next.IsZero() {
		resp.NextRun = &next
	}
	return resp
}

// Run DTOs

// RunJobRequest: запрос на внеплановый запуск.
type RunJobRequest struct {
	DryRun bool           `json:"dry_run"`
	Params map[string]any `json:"params,omitempty"`
}

// RunResponse: исход запуска.
type RunResponse struct {
	Job         string           `json:"job"`
	Status      domain.RunStatus `json:"status"`
	State       domain.RunState  `json:"state"`
	HolderID    string           `json:"holder_id"`
	Reclaimed   bool             `json:"reclaimed"`
	Overrun     bool             `json:"overrun"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	DurationSec float64          `json:"duration_sec"`
	Error       string           `json:"error,omitempty"`
	ExitCode    int              `json:"exit_code"`
}

// RunFromOutcome конвертирует runner.Outcome в RunResponse.
func RunFromOutcome(out *runner.Outcome, holderID string) RunResponse {
	resp := RunResponse{
		Job:         out.Job,
		Status:      out.Status,
		State:       out.State,
		HolderID:    holderID,
		Overrun:     out.Overrun,
		DurationSec: out.Duration.Seconds(),
		ExitCode:    out.ExitCode(),
	}
	if out.Lease != nil {
		resp.Reclaimed = out.Lease.Reclaimed
	}
	if out.Executed() {
		started := out.StartedAt
		resp.StartedAt = &started
	}
	switch {
	case out.Err != nil:
		resp.Error = out.Err.Error()
	case out.ReleaseErr != nil:
		resp.Error = out.ReleaseErr.Error()
	case out.AcquireErr != nil:
		resp.Error = out.AcquireErr.Error()
	}
	return resp
}
