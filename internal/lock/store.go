package lock

import (
	"context"
	"errors"
	"time"

	"github.com/shaiso/cronlock/internal/domain"
)

// Ошибки блокировок.
var (
	// ErrInvalidArgument: пустое имя задачи, пустой holder или ttl <= 0.
	ErrInvalidArgument = errors.New("invalid lock argument")

	// ErrDatastoreUnavailable: хранилище вернуло ошибку (сеть, таймаут, SQL).
	ErrDatastoreUnavailable = errors.New("lock datastore unavailable")

	// ErrNotFound: записи блокировки нет.
	ErrNotFound = errors.New("lock not found")
)

// Store: хранилище записей блокировок.
//
// Каждый метод выполняется одной атомарной операцией в хранилище.
// Время (AcquiredAt, ExpiresAt, "сейчас" для проверки истечения) берётся
// из часов хранилища, а не процесса.
type Store interface {
	// TryAcquire вставляет запись для jobName, либо перезаписывает существующую,
	// если её ExpiresAt уже прошёл. Условие истечения проверяется в момент записи.
	// Возвращает (record, true, nil) при захвате и (nil, false, nil), если
	// блокировку держит другой процесс.
	TryAcquire(ctx context.Context, jobName, holderID string, ttl time.Duration) (*domain.LockRecord, bool, error)

	// Release удаляет запись, только если её HolderID совпадает с holderID.
	// false означает, что такой записи нет (истекла и перехвачена, или не было).
	Release(ctx context.Context, jobName, holderID string) (bool, error)

	// DeleteExpired удаляет все записи с прошедшим ExpiresAt.
	DeleteExpired(ctx context.Context) (int64, error)

	// Get возвращает запись по имени задачи или ErrNotFound.
	Get(ctx context.Context, jobName string) (*domain.LockRecord, error)

	// List возвращает все записи, отсортированные по JobName.
	List(ctx context.Context) ([]domain.LockRecord, error)
}

// Clock реализуют хранилища, умеющие сообщить время по своим часам.
// Используется для диагностики (сколько осталось до истечения).
type Clock interface {
	Now(ctx context.Context) (time.Time, error)
}
