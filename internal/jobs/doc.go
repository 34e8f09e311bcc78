// Package jobs описывает задачи, которые запускает runner.
//
// Задача: имя (ключ блокировки), MaxExecutionTime (ttl блокировки),
// необязательное cron-расписание и тело Func.
//
// Файлы:
//   - job.go: Job, Func, Options и ошибки пакета
//   - registry.go: потокобезопасный реестр задач
//   - definitions.go: загрузка задач из YAML и фабрики видов
//   - config.go: извлечение значений из config определения
//   - http.go: вид http (вызов webhook)
//   - delay.go: вид delay (ожидание)
//   - cleanup.go: вид cleanup_locks (удаление просроченных блокировок)
package jobs
