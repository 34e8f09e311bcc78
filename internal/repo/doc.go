// Package repo содержит реализации хранилища блокировок.
//
// Файлы:
//   - db.go: пул соединений PostgreSQL
//   - schema.go: создание таблицы job_locks
//   - lock_repo.go: lock.Store поверх PostgreSQL (INSERT ... ON CONFLICT)
//   - redis_lock_repo.go: lock.Store поверх Redis (Lua-скрипты)
//
// Обе реализации берут время из часов хранилища, а не процесса.
package repo
