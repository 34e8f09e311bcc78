package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Виды задач, поддерживаемые файлом определений.
const (
	KindHTTP         = "http"
	KindDelay        = "delay"
	KindCleanupLocks = "cleanup_locks"
)

// Definition: задача в файле определений.
//
//	jobs:
//	  - name: daily_digest
//	    kind: http
//	    schedule: "0 9 * * *"
//	    max_execution_time: 10m
//	    config:
//	      method: POST
//	      url: https://hooks.example.com/digest
type Definition struct {
	Name             string         `yaml:"name"`
	Kind             string         `yaml:"kind"`
	Schedule         string         `yaml:"schedule"`
	MaxExecutionTime string         `yaml:"max_execution_time"`
	Description      string         `yaml:"description"`
	Config           map[string]any `yaml:"config"`
}

type definitionsFile struct {
	Jobs []Definition `yaml:"jobs"`
}

// LockCleaner удаляет просроченные блокировки (lock.Manager).
type LockCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Deps: зависимости, которые нужны фабрикам видов.
type Deps struct {
	// Cleaner нужен виду cleanup_locks.
	Cleaner LockCleaner

	// HTTPClient для вида http. Если nil, создаётся клиент по умолчанию.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Factory строит тело задачи по определению.
type Factory func(def Definition, deps Deps) (Func, error)

var factories = map[string]Factory{
	KindHTTP:         newHTTPFunc,
	KindDelay:        newDelayFunc,
	KindCleanupLocks: newCleanupFunc,
}

// Kinds возвращает поддерживаемые виды.
func Kinds() []string {
	return []string{KindCleanupLocks, KindDelay, KindHTTP}
}

// LoadDefinitions читает файл определений.
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs file: %w", err)
	}
	return ParseDefinitions(data)
}

// ParseDefinitions разбирает YAML с определениями. Неизвестные поля: ошибка.
func ParseDefinitions(data []byte) ([]Definition, error) {
	var file definitionsFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return file.Jobs, nil
}

// Build превращает определение в Job.
func (d Definition) Build(deps Deps) (Job, error) {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return Job{}, fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}

	factory, ok := factories[d.Kind]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s: unknown kind %q, expected one of %v", ErrInvalidDefinition, name, d.Kind, Kinds())
	}

	if d.MaxExecutionTime == "" {
		return Job{}, fmt.Errorf("%w: %s: max_execution_time is required", ErrInvalidDefinition, name)
	}
	ttl, err := parseDurationValue(d.MaxExecutionTime)
	if err != nil {
		return Job{}, fmt.Errorf("%w: %s: max_execution_time: %v", ErrInvalidDefinition, name, err)
	}

	if d.Config == nil {
		d.Config = make(map[string]any)
	}
	fn, err := factory(d, deps)
	if err != nil {
		return Job{}, fmt.Errorf("%w: %s: %v", ErrInvalidDefinition, name, err)
	}

	job := Job{
		Name:             name,
		MaxExecutionTime: ttl,
		Schedule:         strings.TrimSpace(d.Schedule),
		Description:      d.Description,
		Run:              fn,
	}
	if err := job.Validate(); err != nil {
		return Job{}, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	return job, nil
}

// BuildRegistry строит реестр из определений.
// Первая же ошибка прерывает построение: частичный набор задач не запускается.
func BuildRegistry(defs []Definition, deps Deps) (*Registry, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	reg := NewRegistry()
	for _, def := range defs {
		job, err := def.Build(deps)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(job); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
		}
	}
	return reg, nil
}
