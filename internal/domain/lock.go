package domain

import "time"

// LockRecord описывает захват именованной задачи одним процессом.
//
// В хранилище существует не более одной записи на JobName.
// Запись создаётся при успешном acquire, перезаписывается при reclaim
// (захват просроченной блокировки другим процессом) и удаляется при release
// или периодической очисткой просроченных записей.
type LockRecord struct {
	// JobName: уникальное имя задачи, первичный ключ.
	JobName string `json:"job_name"`

	// HolderID: идентификатор процесса-владельца (host:pid:suffix).
	// Нужен для диагностики и для защиты от release чужой блокировки.
	HolderID string `json:"holder_id"`

	// AcquiredAt: время захвата по часам хранилища.
	AcquiredAt time.Time `json:"acquired_at"`

	// ExpiresAt: AcquiredAt + max_execution_time.
	// Всегда вычисляется хранилищем и всегда строго больше AcquiredAt.
	// После этого момента запись может перехватить любой процесс.
	ExpiresAt time.Time `json:"expires_at"`

	// Reclaimed: true, если acquire перезаписал просроченную запись
	// другого владельца, а не вставил новую.
	Reclaimed bool `json:"reclaimed,omitempty"`
}

// IsExpired возвращает true, если блокировку уже можно перехватить.
func (r *LockRecord) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Remaining возвращает время до истечения блокировки (0, если уже истекла).
func (r *LockRecord) Remaining(now time.Time) time.Duration {
	if r.IsExpired(now) {
		return 0
	}
	return r.ExpiresAt.Sub(now)
}

// TTL возвращает длительность, на которую была выдана блокировка.
func (r *LockRecord) TTL() time.Duration {
	return r.ExpiresAt.Sub(r.AcquiredAt)
}
