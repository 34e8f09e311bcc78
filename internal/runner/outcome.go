package runner

import (
	"time"

	"github.com/shaiso/cronlock/internal/domain"
)

// Outcome: результат одного вызова Run.
type Outcome struct {
	Job    string
	Status domain.RunStatus

	// State: последнее состояние машины запуска (SKIPPED или RELEASED
	// для завершённых запусков, IDLE если задача не прошла проверку).
	State domain.RunState

	// Err: ошибка тела задачи (или ErrJobPanicked).
	Err error

	// AcquireErr: ошибка хранилища при захвате блокировки.
	AcquireErr error

	// ReleaseErr: блокировку не удалось снять (оборачивает ErrReleaseFailed).
	ReleaseErr error

	// Overrun: тело работало дольше ttl или блокировку успели перехватить.
	Overrun bool

	// Lease: захваченная блокировка; nil, если запуск пропущен.
	Lease *domain.LockRecord

	StartedAt time.Time
	Duration  time.Duration
}

// ExitCode возвращает код завершения для внешнего планировщика.
//
//	0: SUCCEEDED или SKIPPED (в том числе из-за недоступного хранилища)
//	1: FAILED или блокировка не снята
func (o *Outcome) ExitCode() int {
	if o.Status == domain.RunStatusFailed || o.ReleaseErr != nil {
		return 1
	}
	return 0
}

// Executed возвращает true, если тело задачи запускалось.
func (o *Outcome) Executed() bool {
	return o.Status.Executed()
}
