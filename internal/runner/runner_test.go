package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shaiso/cronlock/internal/domain"
	"github.com/shaiso/cronlock/internal/jobs"
	"github.com/shaiso/cronlock/internal/lock"
	"github.com/shaiso/cronlock/internal/telemetry"
)

// testClock: управляемые часы хранилища.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recordingNotifier запоминает отправленные оповещения.
type recordingNotifier struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (n *recordingNotifier) Notify(_ context.Context, alert domain.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *recordingNotifier) kinds() []domain.AlertKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]domain.AlertKind, 0, len(n.alerts))
	for _, a := range n.alerts {
		kinds = append(kinds, a.Kind)
	}
	return kinds
}

// flakyStore: MemoryStore, у которого Release падает первые failReleases раз.
// lostReply: запись удаляется, но вызывающий получает ошибку.
type flakyStore struct {
	*lock.MemoryStore
	failReleases int32
	releaseCalls atomic.Int32
	failAcquire  bool
	lostReply    bool
}

func (s *flakyStore) TryAcquire(ctx context.Context, jobName, holderID string, ttl time.Duration) (*domain.LockRecord, bool, error) {
	if s.failAcquire {
		return nil, false, errors.New("connection refused")
	}
	return s.MemoryStore.TryAcquire(ctx, jobName, holderID, ttl)
}

func (s *flakyStore) Release(ctx context.Context, jobName, holderID string) (bool, error) {
	n := s.releaseCalls.Add(1)
	if n <= s.failReleases {
		if s.lostReply {
			s.MemoryStore.Release(ctx, jobName, holderID)
		}
		return false, errors.New("connection reset")
	}
	return s.MemoryStore.Release(ctx, jobName, holderID)
}

type fixture struct {
	clock    *testClock
	store    *lock.MemoryStore
	locks    *lock.Manager
	notifier *recordingNotifier
}

func newFixture() *fixture {
	clock := newTestClock()
	store := lock.NewMemoryStoreWithClock(clock.Now)
	return &fixture{
		clock:    clock,
		store:    store,
		locks:    lock.NewManager(store),
		notifier: &recordingNotifier{},
	}
}

func (f *fixture) runner(holderID string) *Runner {
	return New(Config{
		Locks:          f.locks,
		HolderID:       holderID,
		Notifier:       f.notifier,
		ReleaseBackoff: time.Millisecond,
	})
}

func job(name string, ttl time.Duration, fn jobs.Func) jobs.Job {
	return jobs.Job{Name: name, MaxExecutionTime: ttl, Run: fn}
}

func TestRun_SucceedsAndReleases(t *testing.T) {
	f := newFixture()
	r := f.runner("host-a")

	var gotOpts jobs.Options
	out := r.Run(context.Background(), job("daily_digest", 10*time.Minute, func(_ context.Context, opts jobs.Options) error {
		gotOpts = opts
		return nil
	}), jobs.Options{DryRun: true, Params: map[string]any{"region": "eu"}})

	if out.Status != domain.RunStatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s (err=%v)", out.Status, out.Err)
	}
	if out.State != domain.RunStateReleased {
		t.Errorf("expected RELEASED, got %s", out.State)
	}
	if out.ExitCode() != 0 {
		t.Errorf("expected exit code 0, got %d", out.ExitCode())
	}
	if out.Lease == nil || out.Lease.HolderID != "host-a" {
		t.Errorf("unexpected lease %+v", out.Lease)
	}
	if out.Overrun {
		t.Error("unexpected overrun")
	}

	// Опции передаются в тело без изменений, логгер подставляется
	if !gotOpts.DryRun || gotOpts.Params["region"] != "eu" {
		t.Errorf("options not passed through: %+v", gotOpts)
	}
	if gotOpts.Logger == nil {
		t.Error("expected logger in options")
	}

	if _, err := f.locks.Get(context.Background(), "daily_digest"); !errors.Is(err, lock.ErrNotFound) {
		t.Errorf("expected no lock row after run, got %v", err)
	}
	if len(f.notifier.kinds()) != 0 {
		t.Errorf("unexpected alerts %v", f.notifier.kinds())
	}
}

func TestRun_ConcurrentOnlyOneExecutes(t *testing.T) {
	f := newFixture()
	a := f.runner("host-a")
	b := f.runner("host-b")

	started := make(chan struct{})
	finish := make(chan struct{})
	var executions atomic.Int32

	body := func(context.Context, jobs.Options) error {
		if executions.Add(1) == 1 {
			close(started)
			<-finish
		}
		return nil
	}
	weekly := job("weekly_report", time.Hour, body)

	done := make(chan *Outcome)
	go func() {
		done <- a.Run(context.Background(), weekly, jobs.Options{})
	}()

	<-started
	outB := b.Run(context.Background(), weekly, jobs.Options{})
	close(finish)
	outA := <-done

	if outA.Status != domain.RunStatusSucceeded {
		t.Errorf("expected A SUCCEEDED, got %s", outA.Status)
	}
	if outB.Status != domain.RunStatusSkipped {
		t.Errorf("expected B SKIPPED, got %s", outB.Status)
	}
	if outB.State != domain.RunStateSkipped || outB.AcquireErr != nil {
		t.Errorf("unexpected skipped outcome %+v", outB)
	}
	if outB.ExitCode() != 0 {
		t.Errorf("skipped run must exit 0, got %d", outB.ExitCode())
	}
	if executions.Load() != 1 {
		t.Errorf("expected exactly one execution, got %d", executions.Load())
	}
}

func TestRun_ReclaimsStuckLock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// Процесс упал, не сняв блокировку
	if _, ok, err := f.locks.Acquire(ctx, "stuck_job", "crashed-host", 5*time.Minute); err != nil || !ok {
		t.Fatalf("seed lock: ok=%v err=%v", ok, err)
	}

	var ran atomic.Bool
	stuck := job("stuck_job", 5*time.Minute, func(context.Context, jobs.Options) error {
		ran.Store(true)
		return nil
	})

	r := f.runner("host-b")
	if out := r.Run(ctx, stuck, jobs.Options{}); out.Status != domain.RunStatusSkipped {
		t.Fatalf("expected SKIPPED before expiry, got %s", out.Status)
	}

	f.clock.Advance(5*time.Minute + time.Second)
	out := r.Run(ctx, stuck, jobs.Options{})
	if out.Status != domain.RunStatusSucceeded {
		t.Fatalf("expected SUCCEEDED after expiry, got %s", out.Status)
	}
	if !out.Lease.Reclaimed {
		t.Error("expected lease to be reported as reclaimed")
	}
	if !ran.Load() {
		t.Error("body did not run")
	}
}

func TestRun_FailedBodyStillReleases(t *testing.T) {
	f := newFixture()
	r := f.runner("host-a")
	boom := errors.New("smtp unavailable")

	out := r.Run(context.Background(), job("daily_digest", time.Minute, func(context.Context, jobs.Options) error {
		return boom
	}), jobs.Options{})

	if out.Status != domain.RunStatusFailed {
		t.Fatalf("expected FAILED, got %s", out.Status)
	}
	if !errors.Is(out.Err, boom) {
		t.Errorf("expected body error, got %v", out.Err)
	}
	if out.State != domain.RunStateReleased {
		t.Errorf("expected RELEASED, got %s", out.State)
	}
	if out.ExitCode() != 1 {
		t.Errorf("expected exit code 1, got %d", out.ExitCode())
	}
	if _, err := f.locks.Get(context.Background(), "daily_digest"); !errors.Is(err, lock.ErrNotFound) {
		t.Errorf("lock must be released after failure, got %v", err)
	}

	kinds := f.notifier.kinds()
	if len(kinds) != 1 || kinds[0] != domain.AlertJobFailed {
		t.Errorf("expected one job.failed alert, got %v", kinds)
	}
}

func TestRun_PanicRecovered(t *testing.T) {
	f := newFixture()
	r := f.runner("host-a")

	out := r.Run(context.Background(), job("daily_digest", time.Minute, func(context.Context, jobs.Options) error {
		panic("nil map write")
	}), jobs.Options{})

	if out.Status != domain.RunStatusFailed {
		t.Fatalf("expected FAILED, got %s", out.Status)
	}
	if !errors.Is(out.Err, ErrJobPanicked) {
		t.Errorf("expected ErrJobPanicked, got %v", out.Err)
	}
	if !strings.Contains(out.Err.Error(), "nil map write") {
		t.Errorf("panic value lost: %v", out.Err)
	}
	if _, err := f.locks.Get(context.Background(), "daily_digest"); !errors.Is(err, lock.ErrNotFound) {
		t.Errorf("lock must be released after panic, got %v", err)
	}
}

func TestRun_OverrunLockTakenOver(t *testing.T) {
	f := newFixture()
	r := f.runner("host-a")
	other := f.runner("host-b")
	ctx := context.Background()

	var otherOut *Outcome
	slow := job("weekly_report", time.Minute, func(context.Context, jobs.Options) error {
		// Тело работает дольше ttl, второй процесс перехватывает блокировку
		f.clock.Advance(2 * time.Minute)
		otherOut = other.Run(ctx, job("weekly_report", time.Minute, func(context.Context, jobs.Options) error {
			return nil
		}), jobs.Options{})
		// Второй процесс снял свою блокировку, берём её снова для проверки NotHeld
		if _, ok, err := f.locks.Acquire(ctx, "weekly_report", "host-c", time.Hour); err != nil || !ok {
			t.Errorf("seed third holder: ok=%v err=%v", ok, err)
		}
		return nil
	})

	out := r.Run(ctx, slow, jobs.Options{})

	if otherOut == nil || otherOut.Status != domain.RunStatusSucceeded || !otherOut.Lease.Reclaimed {
		t.Fatalf("expected second holder to reclaim and run, got %+v", otherOut)
	}
	if out.Status != domain.RunStatusSucceeded {
		t.Errorf("overrun does not change status, got %s", out.Status)
	}
	if !out.Overrun {
		t.Error("expected overrun")
	}
	if out.ReleaseErr != nil || out.ExitCode() != 0 {
		t.Errorf("NotHeld is not a release failure: %v, exit %d", out.ReleaseErr, out.ExitCode())
	}

	// Чужая блокировка осталась на месте
	rec, err := f.locks.Get(ctx, "weekly_report")
	if err != nil || rec.HolderID != "host-c" {
		t.Errorf("foreign lock must survive, got %+v err=%v", rec, err)
	}

	kinds := f.notifier.kinds()
	if len(kinds) != 1 || kinds[0] != domain.AlertJobOverrun {
		t.Errorf("expected one job.overrun alert, got %v", kinds)
	}
}

func TestRun_OverrunByWallTime(t *testing.T) {
	f := newFixture()
	r := f.runner("host-a")

	out := r.Run(context.Background(), job("slow", 20*time.Millisecond, func(context.Context, jobs.Options) error {
		time.Sleep(30 * time.Millisecond)
		return nil
	}), jobs.Options{})

	if !out.Overrun {
		t.Error("expected overrun when body outlives ttl")
	}
	if _, err := f.locks.Get(context.Background(), "slow"); !errors.Is(err, lock.ErrNotFound) {
		t.Errorf("own lock must still be released, got %v", err)
	}
}

func TestRun_ReleaseRetried(t *testing.T) {
	clock := newTestClock()
	store := &flakyStore{MemoryStore: lock.NewMemoryStoreWithClock(clock.Now), failReleases: 2}
	notifier := &recordingNotifier{}
	r := New(Config{
		Locks:          lock.NewManager(store),
		HolderID:       "host-a",
		Notifier:       notifier,
		ReleaseBackoff: time.Millisecond,
	})

	out := r.Run(context.Background(), job("daily_digest", time.Minute, func(context.Context, jobs.Options) error {
		return nil
	}), jobs.Options{})

	if out.ReleaseErr != nil {
		t.Fatalf("expected release to succeed on third attempt, got %v", out.ReleaseErr)
	}
	if store.releaseCalls.Load() != 3 {
		t.Errorf("expected 3 release calls, got %d", store.releaseCalls.Load())
	}
	if out.ExitCode() != 0 {
		t.Errorf("expected exit code 0, got %d", out.ExitCode())
	}
}

func TestRun_ReleaseReplyLostIsNotOverrun(t *testing.T) {
	clock := newTestClock()
	store := &flakyStore{MemoryStore: lock.NewMemoryStoreWithClock(clock.Now), failReleases: 1, lostReply: true}
	notifier := &recordingNotifier{}
	reg := prometheus.NewRegistry()
	r := New(Config{
		Locks:          lock.NewManager(store),
		HolderID:       "host-a",
		Notifier:       notifier,
		Metrics:        telemetry.NewMetrics(reg),
		ReleaseBackoff: time.Millisecond,
	})

	out := r.Run(context.Background(), job("daily_digest", time.Minute, func(context.Context, jobs.Options) error {
		return nil
	}), jobs.Options{})

	if out.Overrun {
		t.Error("NotHeld after a failed attempt must not be reported as overrun")
	}
	if out.ReleaseErr != nil {
		t.Errorf("unexpected release error: %v", out.ReleaseErr)
	}
	if store.releaseCalls.Load() != 2 {
		t.Errorf("expected 2 release calls, got %d", store.releaseCalls.Load())
	}
	if kinds := notifier.kinds(); len(kinds) != 0 {
		t.Errorf("expected no alerts, got %v", kinds)
	}
	if n := testutil.CollectAndCount(reg, "cronlock_job_overrun_total"); n != 0 {
		t.Errorf("overrun counter must stay empty, got %d series", n)
	}
	if _, err := store.Get(context.Background(), "daily_digest"); !errors.Is(err, lock.ErrNotFound) {
		t.Errorf("lock must be gone, got %v", err)
	}
}

func TestRun_ReleaseExhausted(t *testing.T) {
	clock := newTestClock()
	store := &flakyStore{MemoryStore: lock.NewMemoryStoreWithClock(clock.Now), failReleases: 100}
	notifier := &recordingNotifier{}
	reg := prometheus.NewRegistry()
	r := New(Config{
		Locks:           lock.NewManager(store),
		HolderID:        "host-a",
		Notifier:        notifier,
		Metrics:         telemetry.NewMetrics(reg),
		ReleaseAttempts: 2,
		ReleaseBackoff:  time.Millisecond,
	})

	out := r.Run(context.Background(), job("daily_digest", time.Minute, func(context.Context, jobs.Options) error {
		return nil
	}), jobs.Options{})

	if out.Status != domain.RunStatusSucceeded {
		t.Errorf("body succeeded, got %s", out.Status)
	}
	if !errors.Is(out.ReleaseErr, ErrReleaseFailed) {
		t.Fatalf("expected ErrReleaseFailed, got %v", out.ReleaseErr)
	}
	if !errors.Is(out.ReleaseErr, lock.ErrDatastoreUnavailable) {
		t.Errorf("expected datastore cause to be kept, got %v", out.ReleaseErr)
	}
	if store.releaseCalls.Load() != 2 {
		t.Errorf("expected 2 release calls, got %d", store.releaseCalls.Load())
	}
	if out.ExitCode() != 1 {
		t.Errorf("expected exit code 1, got %d", out.ExitCode())
	}

	kinds := notifier.kinds()
	if len(kinds) != 1 || kinds[0] != domain.AlertReleaseFailed {
		t.Errorf("expected one job.release_failed alert, got %v", kinds)
	}
	expected := `
# HELP cronlock_lock_release_failed_total Releases abandoned after exhausting retries.
# TYPE cronlock_lock_release_failed_total counter
cronlock_lock_release_failed_total{job="daily_digest"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "cronlock_lock_release_failed_total"); err != nil {
		t.Error(err)
	}
}

func TestRun_AcquireErrorSkips(t *testing.T) {
	clock := newTestClock()
	store := &flakyStore{MemoryStore: lock.NewMemoryStoreWithClock(clock.Now), failAcquire: true}
	r := New(Config{Locks: lock.NewManager(store), HolderID: "host-a"})

	var ran atomic.Bool
	out := r.Run(context.Background(), job("daily_digest", time.Minute, func(context.Context, jobs.Options) error {
		ran.Store(true)
		return nil
	}), jobs.Options{})

	if out.Status != domain.RunStatusSkipped {
		t.Fatalf("expected SKIPPED, got %s", out.Status)
	}
	if !errors.Is(out.AcquireErr, lock.ErrDatastoreUnavailable) {
		t.Errorf("expected ErrDatastoreUnavailable, got %v", out.AcquireErr)
	}
	if ran.Load() {
		t.Error("body must not run without the lock")
	}
	if out.ExitCode() != 0 {
		t.Errorf("datastore outage on acquire exits 0, got %d", out.ExitCode())
	}
}

func TestRun_InvalidJob(t *testing.T) {
	f := newFixture()
	r := f.runner("host-a")

	out := r.Run(context.Background(), jobs.Job{Name: "broken", Run: func(context.Context, jobs.Options) error {
		return nil
	}}, jobs.Options{})

	if out.Status != domain.RunStatusFailed || !errors.Is(out.Err, jobs.ErrInvalidJob) {
		t.Errorf("expected FAILED with ErrInvalidJob, got %s %v", out.Status, out.Err)
	}
	if out.State != domain.RunStateIdle {
		t.Errorf("expected IDLE, got %s", out.State)
	}
}

func TestRun_CancelledContextStillReleases(t *testing.T) {
	f := newFixture()
	r := f.runner("host-a")
	ctx, cancel := context.WithCancel(context.Background())

	out := r.Run(ctx, job("daily_digest", time.Minute, func(ctx context.Context, _ jobs.Options) error {
		cancel()
		return ctx.Err()
	}), jobs.Options{})

	if !errors.Is(out.Err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", out.Err)
	}
	if _, err := f.locks.Get(context.Background(), "daily_digest"); !errors.Is(err, lock.ErrNotFound) {
		t.Errorf("lock must be released after cancellation, got %v", err)
	}
}

func TestRun_Metrics(t *testing.T) {
	f := newFixture()
	reg := prometheus.NewRegistry()
	r := New(Config{
		Locks:    f.locks,
		HolderID: "host-a",
		Metrics:  telemetry.NewMetrics(reg),
	})
	ok := job("daily_digest", time.Minute, func(context.Context, jobs.Options) error { return nil })

	r.Run(context.Background(), ok, jobs.Options{})
	if _, _, err := f.locks.Acquire(context.Background(), "daily_digest", "host-b", time.Minute); err != nil {
		t.Fatalf("seed: %v", err)
	}
	r.Run(context.Background(), ok, jobs.Options{})

	expected := `
# HELP cronlock_job_runs_total Job invocations by job and final status.
# TYPE cronlock_job_runs_total counter
cronlock_job_runs_total{job="daily_digest",status="SKIPPED"} 1
cronlock_job_runs_total{job="daily_digest",status="SUCCEEDED"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "cronlock_job_runs_total"); err != nil {
		t.Error(err)
	}
}
