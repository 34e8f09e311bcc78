package lock

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shaiso/cronlock/internal/domain"
)

// MemoryStore: Store в памяти процесса.
//
// Координирует только горутины одного процесса, поэтому годится для тестов
// и локального запуска (--store memory), но не для нескольких реплик.
// Мьютекс делает каждую операцию атомарной, как условная запись в БД.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]domain.LockRecord
	now     func() time.Time
}

// NewMemoryStore создаёт пустой MemoryStore с системными часами.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock создаёт MemoryStore с заданными часами.
// Часы играют роль часов хранилища.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		records: make(map[string]domain.LockRecord),
		now:     now,
	}
}

// TryAcquire захватывает блокировку или перехватывает просроченную.
func (s *MemoryStore) TryAcquire(_ context.Context, jobName, holderID string, ttl time.Duration) (*domain.LockRecord, bool, error) {
	if strings.TrimSpace(jobName) == "" || ttl <= 0 {
		return nil, false, fmt.Errorf("%w: job %q ttl %s", ErrInvalidArgument, jobName, ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	existing, exists := s.records[jobName]
	if exists && !existing.IsExpired(now) {
		return nil, false, nil
	}

	rec := domain.LockRecord{
		JobName:    jobName,
		HolderID:   holderID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	s.records[jobName] = rec

	rec.Reclaimed = exists
	return &rec, true, nil
}

// Release удаляет запись, если её держит holderID.
func (s *MemoryStore) Release(_ context.Context, jobName, holderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.records[jobName]
	if !exists || existing.HolderID != holderID {
		return false, nil
	}
	delete(s.records, jobName)
	return true, nil
}

// DeleteExpired удаляет все просроченные записи.
func (s *MemoryStore) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	var deleted int64
	for name, rec := range s.records {
		if rec.IsExpired(now) {
			delete(s.records, name)
			deleted++
		}
	}
	return deleted, nil
}

// Get возвращает копию записи.
func (s *MemoryStore) Get(_ context.Context, jobName string) (*domain.LockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[jobName]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// List возвращает все записи по алфавиту.
func (s *MemoryStore) List(_ context.Context) ([]domain.LockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.LockRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobName < out[j].JobName })
	return out, nil
}

// Now возвращает время по часам хранилища.
func (s *MemoryStore) Now(_ context.Context) (time.Time, error) {
	return s.now().UTC(), nil
}
