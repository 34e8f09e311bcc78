package domain

import "time"

// AlertKind: тип оповещения оператору. Значение совпадает с routing key в RabbitMQ.
type AlertKind string

const (
	// AlertJobFailed: тело задачи вернуло ошибку или паниковало.
	AlertJobFailed AlertKind = "job.failed"

	// AlertJobOverrun: задача работала дольше MaxExecutionTime.
	AlertJobOverrun AlertKind = "job.overrun"

	// AlertReleaseFailed: блокировку не удалось снять после всех попыток.
	AlertReleaseFailed AlertKind = "job.release_failed"
)

// Alert: оповещение о проблемном запуске задачи.
type Alert struct {
	Kind             AlertKind     `json:"kind"`
	Job              string        `json:"job"`
	HolderID         string        `json:"holder_id"`
	Error            string        `json:"error,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
	MaxExecutionTime time.Duration `json:"max_execution_time"`
	OccurredAt       time.Time     `json:"occurred_at"`
}
