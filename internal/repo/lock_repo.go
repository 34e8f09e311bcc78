package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/cronlock/internal/domain"
	"github.com/shaiso/cronlock/internal/lock"
)

// LockRepo: Postgres реализация lock.Store поверх таблицы job_locks.
//
// Все временные метки берутся из now() базы, часы реплик не используются.
type LockRepo struct {
	pool *pgxpool.Pool
}

var _ lock.Store = (*LockRepo)(nil)

// NewLockRepo создаёт новый LockRepo.
func NewLockRepo(pool *pgxpool.Pool) *LockRepo {
	return &LockRepo{pool: pool}
}

// acquireQuery вставляет запись или перехватывает просроченную.
//
// ON CONFLICT DO UPDATE блокирует конфликтующую строку и перепроверяет
// WHERE на её последней версии, поэтому из двух конкурентов, увидевших
// одну просроченную запись, перезапишет только первый. Второй получит
// ноль строк в RETURNING, что означает отказ.
// xmax <> 0 у возвращённой строки: запись была обновлена, а не вставлена.
const acquireQuery = `
	INSERT INTO job_locks (job_name, holder_id, acquired_at, expires_at)
	VALUES ($1, $2, now(), now() + make_interval(secs => $3))
	ON CONFLICT (job_name) DO UPDATE
	SET holder_id   = EXCLUDED.holder_id,
	    acquired_at = EXCLUDED.acquired_at,
	    expires_at  = EXCLUDED.expires_at
	WHERE job_locks.expires_at <= now()
	RETURNING job_name, holder_id, acquired_at, expires_at, (xmax <> 0) AS reclaimed
`

// TryAcquire захватывает блокировку одним запросом.
func (r *LockRepo) TryAcquire(ctx context.Context, jobName, holderID string, ttl time.Duration) (*domain.LockRecord, bool, error) {
	// timestamptz хранит микросекунды: ttl меньше миллисекунды нарушил бы CHECK
	if ttl < time.Millisecond {
		return nil, false, fmt.Errorf("%w: ttl %s below 1ms", lock.ErrInvalidArgument, ttl)
	}

	var rec domain.LockRecord
	err := r.pool.QueryRow(ctx, acquireQuery, jobName, holderID, ttl.Seconds()).Scan(
		&rec.JobName,
		&rec.HolderID,
		&rec.AcquiredAt,
		&rec.ExpiresAt,
		&rec.Reclaimed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock: %w", err)
	}
	return &rec, true, nil
}

// Release удаляет запись, если её держит holderID.
func (r *LockRepo) Release(ctx context.Context, jobName, holderID string) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM job_locks WHERE job_name = $1 AND holder_id = $2
	`, jobName, holderID)
	if err != nil {
		return false, fmt.Errorf("release lock: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// DeleteExpired удаляет просроченные записи.
// Строка, перехваченная конкурентным acquire, к моменту удаления
// уже имеет будущий expires_at и под условие не попадает.
func (r *LockRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM job_locks WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired locks: %w", err)
	}
	return result.RowsAffected(), nil
}

// Get возвращает запись блокировки по имени задачи.
func (r *LockRepo) Get(ctx context.Context, jobName string) (*domain.LockRecord, error) {
	var rec domain.LockRecord
	err := r.pool.QueryRow(ctx, `
		SELECT job_name, holder_id, acquired_at, expires_at
		FROM job_locks
		WHERE job_name = $1
	`, jobName).Scan(&rec.JobName, &rec.HolderID, &rec.AcquiredAt, &rec.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, lock.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lock: %w", err)
	}
	return &rec, nil
}

// List возвращает все записи блокировок.
func (r *LockRepo) List(ctx context.Context) ([]domain.LockRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT job_name, holder_id, acquired_at, expires_at
		FROM job_locks
		ORDER BY job_name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list locks: %w", err)
	}
	defer rows.Close()

	var records []domain.LockRecord
	for rows.Next() {
		var rec domain.LockRecord
		if err := rows.Scan(&rec.JobName, &rec.HolderID, &rec.AcquiredAt, &rec.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan lock: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Now возвращает текущее время по часам БД.
// Нужен CLI для вывода оставшегося времени блокировок.
func (r *LockRepo) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := r.pool.QueryRow(ctx, `SELECT now()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("query db time: %w", err)
	}
	return now, nil
}
