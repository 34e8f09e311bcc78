package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/cronlock/internal/jobs"
	"github.com/shaiso/cronlock/internal/runner"
)

// JobRunner запускает задачу под блокировкой (runner.Runner).
type JobRunner interface {
	Run(ctx context.Context, job jobs.Job, opts jobs.Options) *runner.Outcome
}

// LockCleaner удаляет просроченные блокировки (lock.Manager).
type LockCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Config: конфигурация Scheduler.
type Config struct {
	Runner   JobRunner
	Registry *jobs.Registry
	Logger   *slog.Logger
	Location *time.Location // default: UTC

	// Cleaner и CleanupInterval включают периодическую очистку (опционально).
	Cleaner         LockCleaner
	CleanupInterval time.Duration
}

// Entry: запланированная задача.
type Entry struct {
	Job      string
	Schedule string
	Next     time.Time
}

// Scheduler запускает задачи реестра по их cron-расписанию внутри процесса.
//
// Каждое срабатывание вызывает Runner.Run. Пересекающиеся запуски одной
// задачи внутри процесса не подавляются: их отсекает та же блокировка,
// что и запуски из других процессов.
type Scheduler struct {
	cron     *cron.Cron
	runner   JobRunner
	logger   *slog.Logger
	location *time.Location

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]cron.EntryID
	specs   map[string]string
}

// New создаёт Scheduler и регистрирует задачи с расписанием.
// Невалидное cron-выражение любой задачи: ошибка.
func New(cfg Config) (*Scheduler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		runner:   cfg.Runner,
		logger:   logger,
		location: loc,
		ctx:      context.Background(),
		entries:  make(map[string]cron.EntryID),
		specs:    make(map[string]string),
	}

	if cfg.Registry != nil {
		for _, job := range cfg.Registry.Jobs() {
			if job.Schedule == "" {
				continue
			}
			if err := s.Add(job); err != nil {
				return nil, err
			}
		}
	}

	if cfg.Cleaner != nil && cfg.CleanupInterval > 0 {
		cleaner := cfg.Cleaner
		s.cron.Schedule(cron.Every(cfg.CleanupInterval), cron.FuncJob(func() {
			s.sweep(cleaner)
		}))
	}

	return s, nil
}

// Add регистрирует задачу по её расписанию.
func (s *Scheduler) Add(job jobs.Job) error {
	if err := ValidateCronExpr(job.Schedule); err != nil {
		return fmt.Errorf("schedule job %s: %w", job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[job.Name]; exists {
		return fmt.Errorf("schedule job %s: %w", job.Name, jobs.ErrDuplicateJob)
	}

	id, err := s.cron.AddFunc(job.Schedule, func() {
		s.fire(job)
	})
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", job.Name, err)
	}
	s.entries[job.Name] = id
	s.specs[job.Name] = job.Schedule

	s.logger.Debug("job scheduled", "job", job.Name, "schedule", job.Schedule)
	return nil
}

// Start запускает cron. ctx передаётся во все запуски задач:
// его отмена отменяет выполняющиеся тела.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.Entries()))
}

// Stop останавливает новые срабатывания. Возвращённый контекст завершается,
// когда отработают уже запущенные задачи.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")
	return s.cron.Stop()
}

// Entries возвращает запланированные задачи в порядке имён.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]Entry, 0, len(s.entries))
	for name, id := range s.entries {
		e := Entry{Job: name, Schedule: s.specs[name], Next: s.cron.Entry(id).Next}
		if e.Next.IsZero() {
			// До Start cron не заполняет Next
			if next, err := NextRun(e.Schedule, time.Now(), s.location); err == nil {
				e.Next = next
			}
		}
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Job < list[j].Job })
	return list
}

// fire: одно срабатывание расписания.
func (s *Scheduler) fire(job jobs.Job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	out := s.runner.Run(ctx, job, jobs.Options{})
	s.logger.Debug("scheduled run finished",
		"job", job.Name,
		"status", out.Status,
		"duration", out.Duration,
	)
}

func (s *Scheduler) sweep(cleaner LockCleaner) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	deleted, err := cleaner.CleanupExpired(ctx)
	if err != nil {
		s.logger.Warn("lock cleanup sweep failed", "error", err)
		return
	}
	s.logger.Debug("lock cleanup sweep completed", "deleted", deleted)
}
