// Package telemetry обеспечивает наблюдаемость cronlock.
//
// Включает:
//   - logging.go: structured logging через slog
//   - metrics.go: Prometheus метрики блокировок и запусков задач
//
// Команды CLI используют единый формат логирования,
// serve отдаёт метрики на /metrics.
package telemetry
