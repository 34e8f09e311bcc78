package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/shaiso/cronlock/internal/config"
	"github.com/shaiso/cronlock/internal/jobs"
	"github.com/shaiso/cronlock/internal/lock"
	"github.com/shaiso/cronlock/internal/mq"
	"github.com/shaiso/cronlock/internal/repo"
	"github.com/shaiso/cronlock/internal/runner"
	"github.com/shaiso/cronlock/internal/telemetry"
)

// Globals: глобальные флаги. Непустые значения перекрывают окружение.
type Globals struct {
	Store    string
	DBURL    string
	RedisURL string
	JobsFile string
	HolderID string
	JSON     bool

	// store подменяет хранилище в тестах.
	store lock.Store
	// logger подменяет логгер в тестах.
	logger *slog.Logger
}

// Bind регистрирует глобальные флаги на корневой команде.
func (g *Globals) Bind(cmd *cobra.Command) {
	fs := cmd.PersistentFlags()
	fs.StringVar(&g.Store, "store", "", "Lock store: postgres, redis or memory (env LOCK_STORE)")
	fs.StringVar(&g.DBURL, "db-url", "", "Postgres connection string (env DB_URL)")
	fs.StringVar(&g.RedisURL, "redis-url", "", "Redis URL (env REDIS_URL)")
	fs.StringVar(&g.JobsFile, "jobs-file", "", "Job definitions file (env JOBS_FILE)")
	fs.StringVar(&g.HolderID, "holder-id", "", "Lock holder id (env HOLDER_ID, default host:pid:uuid)")
	fs.BoolVar(&g.JSON, "json", false, "Output in JSON format")
}

// Env: собранные зависимости одной команды.
type Env struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *telemetry.Metrics
	Locks    *lock.Manager

	pool    *pgxpool.Pool
	closers []func()
}

// EnvOption настраивает OpenEnv.
type EnvOption func(*envOptions)

type envOptions struct {
	lazyStore bool
}

// WithLazyStore открывает хранилище без проверки соединения.
// Недоступность хранилища проявится при первой операции как
// lock.ErrDatastoreUnavailable, а не ошибкой OpenEnv.
func WithLazyStore() EnvOption {
	return func(o *envOptions) { o.lazyStore = true }
}

// OpenEnv загружает конфигурацию и подключается к хранилищу.
func OpenEnv(ctx context.Context, g *Globals, opts ...EnvOption) (*Env, error) {
	var o envOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyFlags(cfg, g)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := g.logger
	if logger == nil {
		logger = telemetry.SetupLogger()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	env := &Env{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  telemetry.NewMetrics(reg),
	}

	store, err := env.openStore(ctx, g, o.lazyStore)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Locks = lock.NewManager(store,
		lock.WithLogger(logger),
		lock.WithMetrics(env.Metrics),
		lock.WithCleanupBeforeAcquire(cfg.CleanupBeforeAcquire),
	)
	return env, nil
}

func applyFlags(cfg *config.Config, g *Globals) {
	if g.Store != "" {
		cfg.Store = g.Store
	}
	if g.DBURL != "" {
		cfg.DBURL = g.DBURL
	}
	if g.RedisURL != "" {
		cfg.RedisURL = g.RedisURL
	}
	if g.JobsFile != "" {
		cfg.JobsFile = g.JobsFile
	}
	if g.HolderID != "" {
		cfg.HolderID = g.HolderID
	}
}

func (e *Env) openStore(ctx context.Context, g *Globals, lazy bool) (lock.Store, error) {
	if g.store != nil {
		return g.store, nil
	}

	switch e.Config.Store {
	case config.StoreMemory:
		e.Logger.Warn("memory lock store: locks are not shared between processes")
		return lock.NewMemoryStore(), nil

	case config.StoreRedis:
		var client *redis.Client
		var err error
		if lazy {
			client, err = repo.OpenRedisClient(e.Config.RedisURL)
		} else {
			client, err = repo.NewRedisClient(ctx, e.Config.RedisURL)
		}
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func() { client.Close() })
		return repo.NewRedisLockRepo(client, e.Config.RedisPrefix), nil

	default:
		var pool *pgxpool.Pool
		var err error
		if lazy {
			pool, err = repo.OpenPool(ctx, e.Config.DBURL)
		} else {
			pool, err = repo.NewPool(ctx, e.Config.DBURL)
		}
		if err != nil {
			return nil, err
		}
		e.pool = pool
		e.closers = append(e.closers, pool.Close)
		return repo.NewLockRepo(pool), nil
	}
}

// Pool возвращает пул Postgres (nil для других хранилищ).
func (e *Env) Pool() *pgxpool.Pool {
	return e.pool
}

// Jobs загружает реестр задач из JobsFile.
func (e *Env) Jobs() (*jobs.Registry, error) {
	defs, err := jobs.LoadDefinitions(e.Config.JobsFile)
	if err != nil {
		return nil, err
	}
	return jobs.BuildRegistry(defs, jobs.Deps{
		Cleaner: e.Locks,
		Logger:  e.Logger,
	})
}

// Notifier подключается к RabbitMQ, если он настроен.
// Брокер недоступен: nil и предупреждение, запуск задач не зависит от оповещений.
func (e *Env) Notifier(ctx context.Context) runner.Notifier {
	if e.Config.RabbitMQURL == "" {
		return nil
	}

	conn, err := mq.Dial(e.Config.RabbitMQURL, e.Logger)
	if err != nil {
		e.Logger.Warn("RabbitMQ unavailable, alerts will only be logged", "error", err)
		return nil
	}
	e.closers = append(e.closers, func() { conn.Close() })

	if err := mq.SetupTopology(ctx, conn); err != nil {
		e.Logger.Warn("failed to declare alert topology", "error", err)
	}
	return mq.NewPublisher(conn, e.Logger)
}

// Runner создаёт Runner с настройками из конфигурации.
func (e *Env) Runner(notifier runner.Notifier) *runner.Runner {
	return runner.New(runner.Config{
		Locks:           e.Locks,
		HolderID:        e.Config.HolderID,
		Logger:          e.Logger,
		Notifier:        notifier,
		Metrics:         e.Metrics,
		ReleaseAttempts: e.Config.ReleaseAttempts,
		ReleaseBackoff:  e.Config.ReleaseBackoff,
	})
}

// Close освобождает ресурсы в обратном порядке.
func (e *Env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// EnvFunc открывает Env для команды.
type EnvFunc func(ctx context.Context, opts ...EnvOption) (*Env, error)

// NewEnvFunc связывает OpenEnv с глобальными флагами.
func NewEnvFunc(g *Globals) EnvFunc {
	return func(ctx context.Context, opts ...EnvOption) (*Env, error) {
		return OpenEnv(ctx, g, opts...)
	}
}
