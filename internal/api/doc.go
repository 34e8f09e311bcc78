// Package api содержит HTTP API режима serve.
//
// Структура:
//   - handler.go: Handler и его зависимости (блокировки, задачи, runner)
//   - routes.go: регистрация маршрутов
//   - middleware.go: middleware (logging, recovery)
//   - response.go: унифицированные JSON-ответы и обработка ошибок
//   - dto.go: Data Transfer Objects (request/response)
//   - lock_handler.go: обработчики для /locks
//   - job_handler.go: обработчики для /jobs
//
// API нужен оператору для диагностики блокировок и внеплановых запусков.
package api
