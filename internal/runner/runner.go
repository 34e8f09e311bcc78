package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/shaiso/cronlock/internal/domain"
	"github.com/shaiso/cronlock/internal/jobs"
	"github.com/shaiso/cronlock/internal/lock"
	"github.com/shaiso/cronlock/internal/telemetry"
)

// Ошибки runner.
var (
	// ErrReleaseFailed: блокировку не удалось снять после всех попыток.
	ErrReleaseFailed = errors.New("lock release failed")

	// ErrJobPanicked: тело задачи паниковало.
	ErrJobPanicked = errors.New("job panicked")
)

const (
	defaultReleaseAttempts = 3
	defaultReleaseBackoff  = 500 * time.Millisecond
	notifyTimeout          = 5 * time.Second
)

// Config: конфигурация Runner.
type Config struct {
	Locks    *lock.Manager
	HolderID string // default: lock.NewHolderID()
	Logger   *slog.Logger
	Notifier Notifier // опционально
	Metrics  *telemetry.Metrics

	// ReleaseAttempts: попыток release при ошибке хранилища (default: 3).
	ReleaseAttempts int

	// ReleaseBackoff: пауза перед второй попыткой, далее удваивается (default: 500ms).
	ReleaseBackoff time.Duration
}

// Runner выполняет задачи под блокировкой.
//
// Один Runner на процесс: HolderID общий для всех его запусков.
// Безопасен для конкурентного использования.
type Runner struct {
	locks           *lock.Manager
	holderID        string
	logger          *slog.Logger
	notifier        Notifier
	metrics         *telemetry.Metrics
	releaseAttempts int
	releaseBackoff  time.Duration
}

// New создаёт Runner.
func New(cfg Config) *Runner {
	holderID := cfg.HolderID
	if holderID == "" {
		holderID = lock.NewHolderID()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Discard()
	}
	attempts := cfg.ReleaseAttempts
	if attempts <= 0 {
		attempts = defaultReleaseAttempts
	}
	backoff := cfg.ReleaseBackoff
	if backoff <= 0 {
		backoff = defaultReleaseBackoff
	}

	return &Runner{
		locks:           cfg.Locks,
		holderID:        holderID,
		logger:          logger,
		notifier:        cfg.Notifier,
		metrics:         cfg.Metrics,
		releaseAttempts: attempts,
		releaseBackoff:  backoff,
	}
}

// HolderID возвращает идентификатор владельца блокировок этого процесса.
func (r *Runner) HolderID() string {
	return r.holderID
}

// Run выполняет job, если удалось захватить её блокировку.
//
// Run не возвращает ошибку: всё, что произошло, описано в Outcome.
// Контекст передаётся в тело как есть, дедлайн из MaxExecutionTime не ставится.
func (r *Runner) Run(ctx context.Context, job jobs.Job, opts jobs.Options) *Outcome {
	out := &Outcome{
		Job:   job.Name,
		State: domain.RunStateIdle,
	}
	logger := telemetry.WithHolder(telemetry.WithJob(r.logger, job.Name), r.holderID)

	if err := job.Validate(); err != nil {
		out.Status = domain.RunStatusFailed
		out.Err = err
		logger.Error("invalid job", "error", err)
		r.metrics.ObserveRun(job.Name, out.Status.String(), false, 0)
		return out
	}

	// 1. Блокировка
	r.advance(out, domain.RunStateLockRequested, logger)
	lease, ok, err := r.locks.Acquire(ctx, job.Name, r.holderID, job.MaxExecutionTime)
	if err != nil {
		out.Status = domain.RunStatusSkipped
		out.AcquireErr = err
		r.advance(out, domain.RunStateSkipped, logger)
		logger.Error("lock acquire failed, run skipped", "error", err)
		r.metrics.ObserveRun(job.Name, out.Status.String(), false, 0)
		return out
	}
	if !ok {
		out.Status = domain.RunStatusSkipped
		r.advance(out, domain.RunStateSkipped, logger)
		logger.Debug("lock held by another holder, run skipped")
		r.metrics.ObserveRun(job.Name, out.Status.String(), false, 0)
		return out
	}
	out.Lease = lease

	// 2. Тело задачи
	r.advance(out, domain.RunStateRunning, logger)
	if opts.Logger == nil {
		opts.Logger = logger
	}
	out.StartedAt = time.Now()
	logger.Info("job started", "expires_at", lease.ExpiresAt, "dry_run", opts.DryRun)

	runErr := r.execute(ctx, job, opts, logger)
	out.Duration = time.Since(out.StartedAt)

	if runErr != nil {
		out.Status = domain.RunStatusFailed
		out.Err = runErr
		r.advance(out, domain.RunStateErrored, logger)
		logger.Error("job failed", "error", runErr, "duration", out.Duration)
		r.notify(ctx, out, job, domain.AlertJobFailed, runErr, logger)
	} else {
		out.Status = domain.RunStatusSucceeded
		r.advance(out, domain.RunStateCompleted, logger)
		logger.Info("job completed", "duration", out.Duration)
	}

	// 3. Release выполняется даже если ctx уже отменён
	r.release(ctx, job, out, logger)
	r.advance(out, domain.RunStateReleased, logger)

	r.metrics.ObserveRun(job.Name, out.Status.String(), true, out.Duration)
	return out
}

// execute вызывает тело задачи, превращая панику в ErrJobPanicked.
func (r *Runner) execute(ctx context.Context, job jobs.Job, opts jobs.Options, logger *slog.Logger) (err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("job panicked",
				"panic", fmt.Sprint(p),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: %v", ErrJobPanicked, p)
		}
	}()
	return job.Run(ctx, opts)
}

// release снимает блокировку с повторами при ошибке хранилища.
func (r *Runner) release(ctx context.Context, job jobs.Job, out *Outcome, logger *slog.Logger) {
	ctx = context.WithoutCancel(ctx)

	backoff := r.releaseBackoff
	var lastErr error
	for attempt := 1; attempt <= r.releaseAttempts; attempt++ {
		released, err := r.locks.Release(ctx, job.Name, r.holderID)
		if err == nil {
			// NotHeld после ошибки: ответ на прошлую попытку мог потеряться
			// уже после удаления записи, перехват не доказан.
			ambiguous := !released && lastErr != nil
			if ambiguous {
				logger.Warn("lock release outcome ambiguous, an earlier attempt may have removed it",
					"attempt", attempt,
					"previous_error", lastErr,
				)
			}
			if (!released && !ambiguous) || out.Duration >= job.MaxExecutionTime {
				r.overrun(ctx, job, out, released || ambiguous, logger)
			}
			return
		}

		lastErr = err
		logger.Warn("lock release attempt failed",
			"attempt", attempt,
			"max_attempts", r.releaseAttempts,
			"error", err,
		)
		if attempt < r.releaseAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}

	out.ReleaseErr = fmt.Errorf("%w: %s after %d attempts: %w", ErrReleaseFailed, job.Name, r.releaseAttempts, lastErr)
	logger.Error("lock release failed, lock stays until expiry",
		"error", lastErr,
		"expires_at", out.Lease.ExpiresAt,
	)
	r.metrics.ObserveReleaseFailed(job.Name)
	r.notify(ctx, out, job, domain.AlertReleaseFailed, out.ReleaseErr, logger)
}

// overrun фиксирует запуск, переживший свою блокировку.
//
// stillHeld=false: блокировку успел перехватить другой процесс, значит
// тело могло выполняться параллельно с другим экземпляром.
func (r *Runner) overrun(ctx context.Context, job jobs.Job, out *Outcome, stillHeld bool, logger *slog.Logger) {
	out.Overrun = true
	r.metrics.ObserveOverrun(job.Name)

	msg := "job overran max execution time"
	if !stillHeld {
		msg = "job overran max execution time, lock was taken over"
	}
	logger.Error(msg,
		"duration", out.Duration,
		"max_execution_time", job.MaxExecutionTime,
	)

	err := fmt.Errorf("ran %s, max execution time %s", out.Duration.Round(time.Millisecond), job.MaxExecutionTime)
	r.notify(ctx, out, job, domain.AlertJobOverrun, err, logger)
}

func (r *Runner) notify(ctx context.Context, out *Outcome, job jobs.Job, kind domain.AlertKind, cause error, logger *slog.Logger) {
	if r.notifier == nil {
		return
	}

	alert := domain.Alert{
		Kind:             kind,
		Job:              job.Name,
		HolderID:         r.holderID,
		StartedAt:        out.StartedAt,
		Duration:         out.Duration,
		MaxExecutionTime: job.MaxExecutionTime,
		OccurredAt:       time.Now().UTC(),
	}
	if cause != nil {
		alert.Error = cause.Error()
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := r.notifier.Notify(notifyCtx, alert); err != nil {
		logger.Warn("failed to send alert", "kind", kind, "error", err)
	}
}

// advance переводит запуск в следующее состояние.
func (r *Runner) advance(out *Outcome, to domain.RunState, logger *slog.Logger) {
	if !out.State.CanTransition(to) {
		logger.Error("invalid run state transition", "from", out.State, "to", to)
	}
	out.State = to
}
