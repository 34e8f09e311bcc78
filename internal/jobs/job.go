package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Ошибки задач.
var (
	// ErrJobNotFound: задачи нет в реестре.
	ErrJobNotFound = errors.New("job not found")

	// ErrDuplicateJob: задача с таким именем уже зарегистрирована.
	ErrDuplicateJob = errors.New("job already registered")

	// ErrInvalidJob: у задачи нет имени, тела или положительного MaxExecutionTime.
	ErrInvalidJob = errors.New("invalid job")

	// ErrInvalidDefinition: ошибка в файле определений.
	ErrInvalidDefinition = errors.New("invalid job definition")
)

// Func: тело задачи. Должно проверять ctx.Done() на долгих операциях.
type Func func(ctx context.Context, opts Options) error

// Options: параметры конкретного запуска, передаются в тело без изменений.
type Options struct {
	// DryRun: тело не должно делать внешних побочных эффектов.
	DryRun bool

	// Params: произвольные параметры (--param key=value).
	Params map[string]any

	// Logger: логгер с атрибутами задачи. Runner заполняет его, если пусто.
	Logger *slog.Logger
}

// Param возвращает строковый параметр или defaultVal.
func (o Options) Param(key, defaultVal string) string {
	if v, ok := o.Params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return defaultVal
}

// Job: периодическая задача.
type Job struct {
	// Name: уникальное имя, используется как ключ блокировки.
	Name string

	// MaxExecutionTime: время жизни блокировки. Если тело работает дольше,
	// другой процесс может перехватить блокировку.
	MaxExecutionTime time.Duration

	// Schedule: cron-выражение для режима serve. Пусто: только ручной запуск.
	Schedule string

	Description string

	Run Func
}

// Validate проверяет обязательные поля.
func (j Job) Validate() error {
	name := strings.TrimSpace(j.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidJob)
	}
	if name != j.Name || strings.ContainsAny(name, " \t\n") {
		return fmt.Errorf("%w: name %q must not contain whitespace", ErrInvalidJob, j.Name)
	}
	if j.MaxExecutionTime <= 0 {
		return fmt.Errorf("%w: %s: max_execution_time must be positive", ErrInvalidJob, j.Name)
	}
	if j.Run == nil {
		return fmt.Errorf("%w: %s: run func is required", ErrInvalidJob, j.Name)
	}
	return nil
}
