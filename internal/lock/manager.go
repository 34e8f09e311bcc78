package lock

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shaiso/cronlock/internal/domain"
	"github.com/shaiso/cronlock/internal/telemetry"
)

// Manager: операции acquire/release/cleanup поверх Store.
//
// Manager не хранит состояния блокировок: всё состояние в Store,
// поэтому разные процессы с разными Manager видят одну картину.
// Manager не повторяет операции сам: отказ или ошибка возвращаются вызывающему.
type Manager struct {
	store   Store
	logger  *slog.Logger
	metrics *telemetry.Metrics

	// cleanupBeforeAcquire: перед каждым acquire удалять просроченные записи.
	cleanupBeforeAcquire bool
}

// Option настраивает Manager.
type Option func(*Manager)

// WithLogger задаёт логгер.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithCleanupBeforeAcquire включает опортунистическую очистку перед acquire.
func WithCleanupBeforeAcquire(enabled bool) Option {
	return func(m *Manager) {
		m.cleanupBeforeAcquire = enabled
	}
}

// NewManager создаёт Manager поверх store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		logger: telemetry.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire пытается захватить блокировку jobName на ttl.
//
// Возвращает:
//   - (record, true, nil): блокировка захвачена (record.Reclaimed, если перехвачена просроченная)
//   - (nil, false, nil): блокировку держит другой процесс
//   - (nil, false, err): невалидные аргументы (ErrInvalidArgument) или ошибка хранилища (ErrDatastoreUnavailable)
//
// Одна попытка, без ожидания.
func (m *Manager) Acquire(ctx context.Context, jobName, holderID string, ttl time.Duration) (*domain.LockRecord, bool, error) {
	jobName = strings.TrimSpace(jobName)
	holderID = strings.TrimSpace(holderID)
	if err := validate(jobName, holderID); err != nil {
		return nil, false, err
	}
	if ttl <= 0 {
		return nil, false, fmt.Errorf("%w: ttl must be positive, got %s", ErrInvalidArgument, ttl)
	}

	if m.cleanupBeforeAcquire {
		if _, err := m.CleanupExpired(ctx); err != nil {
			// Очистка не влияет на корректность acquire
			m.logger.Warn("cleanup before acquire failed", "job", jobName, "error", err)
		}
	}

	rec, ok, err := m.store.TryAcquire(ctx, jobName, holderID, ttl)
	if err != nil {
		m.metrics.ObserveAcquire(jobName, telemetry.ResultError)
		return nil, false, fmt.Errorf("%w: acquire %q: %v", ErrDatastoreUnavailable, jobName, err)
	}

	if !ok {
		m.metrics.ObserveAcquire(jobName, telemetry.ResultDenied)
		m.logger.Debug("lock denied", "job", jobName, "holder_id", holderID)
		return nil, false, nil
	}

	if rec.Reclaimed {
		m.metrics.ObserveAcquire(jobName, telemetry.ResultReclaimed)
		m.logger.Warn("reclaimed expired lock",
			"job", jobName,
			"holder_id", holderID,
			"expires_at", rec.ExpiresAt,
		)
	} else {
		m.metrics.ObserveAcquire(jobName, telemetry.ResultAcquired)
		m.logger.Debug("lock acquired",
			"job", jobName,
			"holder_id", holderID,
			"expires_at", rec.ExpiresAt,
		)
	}

	return rec, true, nil
}

// Release снимает блокировку jobName, если её держит holderID.
//
// (false, nil) означает NotHeld: записи нет или её держит другой процесс.
// Это сигнал, а не ошибка.
func (m *Manager) Release(ctx context.Context, jobName, holderID string) (bool, error) {
	jobName = strings.TrimSpace(jobName)
	holderID = strings.TrimSpace(holderID)
	if err := validate(jobName, holderID); err != nil {
		return false, err
	}

	released, err := m.store.Release(ctx, jobName, holderID)
	if err != nil {
		m.metrics.ObserveRelease(jobName, telemetry.ResultError)
		return false, fmt.Errorf("%w: release %q: %v", ErrDatastoreUnavailable, jobName, err)
	}

	if !released {
		m.metrics.ObserveRelease(jobName, telemetry.ResultNotHeld)
		m.logger.Debug("lock not held on release", "job", jobName, "holder_id", holderID)
		return false, nil
	}

	m.metrics.ObserveRelease(jobName, telemetry.ResultReleased)
	m.logger.Debug("lock released", "job", jobName, "holder_id", holderID)
	return true, nil
}

// CleanupExpired удаляет все просроченные записи независимо от владельца.
// Операция гигиеническая: acquire сам перехватывает просроченные записи.
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	deleted, err := m.store.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: cleanup expired: %v", ErrDatastoreUnavailable, err)
	}

	m.metrics.ObserveCleanup(deleted)
	if deleted > 0 {
		m.logger.Info("expired locks removed", "count", deleted)
	}
	return deleted, nil
}

// Get возвращает текущую запись блокировки (ErrNotFound, если её нет).
func (m *Manager) Get(ctx context.Context, jobName string) (*domain.LockRecord, error) {
	jobName = strings.TrimSpace(jobName)
	if jobName == "" {
		return nil, fmt.Errorf("%w: job name required", ErrInvalidArgument)
	}
	return m.store.Get(ctx, jobName)
}

// List возвращает все записи блокировок.
func (m *Manager) List(ctx context.Context) ([]domain.LockRecord, error) {
	return m.store.List(ctx)
}

func validate(jobName, holderID string) error {
	if jobName == "" {
		return fmt.Errorf("%w: job name required", ErrInvalidArgument)
	}
	if holderID == "" {
		return fmt.Errorf("%w: holder id required", ErrInvalidArgument)
	}
	return nil
}

// Now возвращает время по часам хранилища, если Store их предоставляет,
// иначе локальное время процесса.
func (m *Manager) Now(ctx context.Context) time.Time {
	if c, ok := m.store.(Clock); ok {
		if now, err := c.Now(ctx); err == nil {
			return now
		}
	}
	return time.Now().UTC()
}
