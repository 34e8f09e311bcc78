package jobs

import (
	"fmt"
	"sort"
	"sync"
)

// Registry: реестр задач процесса.
//
// Набор задач фиксируется при старте; после этого реестр только читается.
// Потокобезопасен.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]Job),
	}
}

// Register добавляет задачу. Повторное имя: ErrDuplicateJob.
func (r *Registry) Register(job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name)
	}
	r.jobs[job.Name] = job
	return nil
}

// MustRegister как Register, но паникует при ошибке.
// Для регистрации встроенных задач при старте.
func (r *Registry) MustRegister(job Job) {
	if err := r.Register(job); err != nil {
		panic(err)
	}
}

// Get возвращает задачу по имени.
func (r *Registry) Get(name string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, exists := r.jobs[name]
	if !exists {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return job, nil
}

// Has проверяет, зарегистрирована ли задача.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.jobs[name]
	return exists
}

// Names возвращает отсортированный список имён.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Jobs возвращает задачи в порядке имён.
func (r *Registry) Jobs() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		list = append(list, job)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Count возвращает количество задач.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Unregister удаляет задачу.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, name)
}
