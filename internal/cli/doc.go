// Package cli реализует команды cronlock.
//
// # Обзор
//
// CLI работает напрямую с хранилищем блокировок (Postgres, Redis или
// память процесса) и файлом определений задач. Каждая команда открывает
// Env через EnvFunc: конфигурация из окружения, поверх неё глобальные
// флаги, затем подключение к хранилищу.
//
// # Команды
//
//   - run JOB: однократный запуск под блокировкой, для внешнего cron.
//     Код выхода 0 для SUCCEEDED и SKIPPED, 1 для FAILED.
//   - serve: запуск задач по расписанию внутри процесса; /healthz, /metrics
//     и API оператора (пакет api).
//   - cleanup: удаление просроченных блокировок.
//   - locks: list, show, release --holder.
//   - jobs list: задачи из файла определений и их следующий запуск.
//   - migrate: создание таблицы job_locks.
//   - alerts watch: чтение оповещений из RabbitMQ.
//
// # Output
//
// Таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные выводятся в stdout, сообщения в stderr:
//
//	cronlock locks list --json | jq '.[].job'
package cli
