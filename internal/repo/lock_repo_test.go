package repo

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/cronlock/internal/lock"
)

// Интеграционные тесты запускаются только при заданном TEST_DB_URL.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DB_URL")
	if dsn == "" {
		t.Skip("TEST_DB_URL not set")
	}

	ctx := context.Background()
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if _, err := pool.Exec(ctx, "TRUNCATE job_locks"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return pool
}

func TestLockRepo_AcquireRelease(t *testing.T) {
	r := NewLockRepo(newTestPool(t))
	ctx := context.Background()

	rec, ok, err := r.TryAcquire(ctx, "daily_digest", "host-a", time.Hour)
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	if rec.Reclaimed {
		t.Error("fresh insert must not be reclaimed")
	}
	if d := rec.ExpiresAt.Sub(rec.AcquiredAt); d != time.Hour {
		t.Errorf("expected ttl 1h, got %s", d)
	}

	if _, ok, err := r.TryAcquire(ctx, "daily_digest", "host-b", time.Hour); err != nil || ok {
		t.Fatalf("expected denied, ok=%v err=%v", ok, err)
	}

	if released, err := r.Release(ctx, "daily_digest", "host-b"); err != nil || released {
		t.Fatalf("non-holder release: released=%v err=%v", released, err)
	}
	if released, err := r.Release(ctx, "daily_digest", "host-a"); err != nil || !released {
		t.Fatalf("holder release: released=%v err=%v", released, err)
	}
	if _, err := r.Get(ctx, "daily_digest"); !errors.Is(err, lock.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLockRepo_ReclaimAndCleanup(t *testing.T) {
	r := NewLockRepo(newTestPool(t))
	ctx := context.Background()

	if _, ok, err := r.TryAcquire(ctx, "stuck_job", "host-a", 50*time.Millisecond); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	if _, ok, err := r.TryAcquire(ctx, "other_job", "host-a", 50*time.Millisecond); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	time.Sleep(100 * time.Millisecond)

	rec, ok, err := r.TryAcquire(ctx, "stuck_job", "host-b", time.Minute)
	if err != nil || !ok {
		t.Fatalf("reclaim: ok=%v err=%v", ok, err)
	}
	if !rec.Reclaimed {
		t.Error("expected Reclaimed=true")
	}

	n, err := r.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted (other_job), got %d", n)
	}

	list, err := r.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].HolderID != "host-b" {
		t.Errorf("unexpected list %+v", list)
	}
}

func TestLockRepo_ConcurrentAcquire(t *testing.T) {
	r := NewLockRepo(newTestPool(t))
	ctx := context.Background()

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := r.TryAcquire(ctx, "weekly_report", lock.NewHolderID(), time.Minute)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d", wins)
	}
}
