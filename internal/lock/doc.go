// Package lock реализует распределённую блокировку задач поверх общего хранилища.
//
// Координация между репликами идёт только через хранилище: одна запись
// на имя задачи, все изменения выполняются условной записью (compare-and-swap)
// за один запрос. Отдельного lock-сервиса и выбора лидера нет.
//
// Структура:
//   - store.go: интерфейс Store и ошибки
//   - manager.go: Manager (Acquire, Release, CleanupExpired) поверх Store
//   - memory.go: MemoryStore, in-memory реализация Store для тестов и локального запуска
//   - holder.go: построение HolderID процесса
//
// Реализации Store для Postgres и Redis находятся в пакете repo.
//
// Использование:
//
//	mgr := lock.NewManager(store, lock.WithLogger(logger))
//	rec, ok, err := mgr.Acquire(ctx, "daily_digest", holderID, 5*time.Minute)
//	if err != nil || !ok {
//	    // пропускаем запуск, следующий триггер попробует снова
//	}
//	defer mgr.Release(ctx, "daily_digest", holderID)
//
// Корректность acquire не зависит от CleanupExpired: просроченная запись
// перехватывается самим acquire, условие истечения перепроверяется в момент записи.
package lock
