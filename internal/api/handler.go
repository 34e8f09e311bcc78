package api

import (
	"log/slog"
	"time"

	"github.com/shaiso/cronlock/internal/jobs"
	"github.com/shaiso/cronlock/internal/lock"
	"github.com/shaiso/cronlock/internal/runner"
	"github.com/shaiso/cronlock/internal/scheduler"
)

// EntryLister отдаёт запланированные задачи (scheduler.Scheduler).
type EntryLister interface {
	Entries() []scheduler.Entry
}

// Handler: главный обработчик API с зависимостями.
type Handler struct {
	locks     *lock.Manager
	registry  *jobs.Registry
	runner    *runner.Runner
	scheduler EntryLister
	location  *time.Location
	logger    *slog.Logger
}

// Config: конфигурация для создания Handler.
type Config struct {
	Locks    *lock.Manager
	Registry *jobs.Registry
	Runner   *runner.Runner

	// Scheduler опционален: без него next_run считается по cron-выражению.
	Scheduler EntryLister
	Location  *time.Location // default: UTC
	Logger    *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = jobs.NewRegistry()
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	return &Handler{
		locks:     cfg.Locks,
		registry:  registry,
		runner:    cfg.Runner,
		scheduler: cfg.Scheduler,
		location:  loc,
		logger:    logger,
	}
}
