// Package mq доставляет оповещения о проблемных запусках через RabbitMQ.
//
// Структура:
//   - connection.go: соединение с переподключением в фоне
//   - topology.go: обменники cronlock.alerts и cronlock.alerts.dlx, очереди
//   - publisher.go: Publisher (runner.Notifier) и формат сообщения
//   - consumer.go: Consumer для cronlock alerts watch
//
// Типы оповещений (routing key):
//   - job.failed: тело задачи вернуло ошибку или паниковало
//   - job.overrun: задача пережила свой max_execution_time
//   - job.release_failed: блокировку не удалось снять
//
// Брокер не обязателен: без него оповещения остаются только в логах.
package mq
