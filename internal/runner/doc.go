// Package runner выполняет задачу под распределённой блокировкой.
//
// Один вызов Run:
//
//  1. Acquire блокировки с ttl = MaxExecutionTime. Занята: SKIPPED.
//     Ошибка хранилища: тоже SKIPPED (с AcquireErr), тело не запускается.
//  2. Выполнение тела. Ошибка или паника: FAILED.
//  3. Release всегда, с повторами при ошибке хранилища. Если блокировку
//     уже перехватили, запуск помечается как overrun.
//
// Runner не продлевает блокировку и не прерывает тело по истечении ttl:
// MaxExecutionTime является обязательством автора задачи.
//
// Файлы:
//   - runner.go: Runner и Config
//   - outcome.go: Outcome и код завершения процесса
//   - notifier.go: интерфейс оповещений
package runner
