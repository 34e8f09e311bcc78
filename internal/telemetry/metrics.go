package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Результаты операций блокировки (label "result").
const (
	ResultAcquired  = "acquired"
	ResultReclaimed = "reclaimed"
	ResultDenied    = "denied"
	ResultReleased  = "released"
	ResultNotHeld   = "not_held"
	ResultError     = "error"
)

// Metrics: набор Prometheus метрик cronlock.
//
// Все методы безопасны для nil-получателя: компоненты, собранные
// без метрик (например, в тестах), просто ничего не считают.
type Metrics struct {
	lockAcquire   *prometheus.CounterVec
	lockRelease   *prometheus.CounterVec
	lockCleanup   prometheus.Counter
	jobRuns       *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobOverruns   *prometheus.CounterVec
	releaseFailed *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в reg.
// Для бинарника передаётся prometheus.DefaultRegisterer, в тестах новый prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		lockAcquire: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cronlock_lock_acquire_total",
			Help: "Lock acquire attempts by job and result.",
		}, []string{"job", "result"}),
		lockRelease: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cronlock_lock_release_total",
			Help: "Lock release attempts by job and result.",
		}, []string{"job", "result"}),
		lockCleanup: f.NewCounter(prometheus.CounterOpts{
			Name: "cronlock_lock_cleanup_deleted_total",
			Help: "Expired lock records removed by cleanup sweeps.",
		}),
		jobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cronlock_job_runs_total",
			Help: "Job invocations by job and final status.",
		}, []string{"job", "status"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cronlock_job_duration_seconds",
			Help:    "Wall time of executed job bodies.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 3600},
		}, []string{"job"}),
		jobOverruns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cronlock_job_overrun_total",
			Help: "Executions that outlived their max execution time.",
		}, []string{"job"}),
		releaseFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cronlock_lock_release_failed_total",
			Help: "Releases abandoned after exhausting retries.",
		}, []string{"job"}),
	}
}

// ObserveAcquire считает попытку acquire.
func (m *Metrics) ObserveAcquire(job, result string) {
	if m == nil {
		return
	}
	m.lockAcquire.WithLabelValues(job, result).Inc()
}

// ObserveRelease считает попытку release.
func (m *Metrics) ObserveRelease(job, result string) {
	if m == nil {
		return
	}
	m.lockRelease.WithLabelValues(job, result).Inc()
}

// ObserveCleanup добавляет число удалённых просроченных записей.
func (m *Metrics) ObserveCleanup(deleted int64) {
	if m == nil || deleted <= 0 {
		return
	}
	m.lockCleanup.Add(float64(deleted))
}

// ObserveRun считает завершённый запуск задачи.
// duration учитывается, только если тело выполнялось.
func (m *Metrics) ObserveRun(job, status string, executed bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, status).Inc()
	if executed {
		m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
	}
}

// ObserveOverrun считает выполнение, пережившее свой max_execution_time.
func (m *Metrics) ObserveOverrun(job string) {
	if m == nil {
		return
	}
	m.jobOverruns.WithLabelValues(job).Inc()
}

// ObserveReleaseFailed считает release, брошенный после всех повторов.
func (m *Metrics) ObserveReleaseFailed(job string) {
	if m == nil {
		return
	}
	m.releaseFailed.WithLabelValues(job).Inc()
}
