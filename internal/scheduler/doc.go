// Package scheduler запускает задачи по cron-расписанию внутри процесса
// (режим cronlock serve).
//
// Структура:
//   - scheduler.go: Scheduler поверх robfig/cron, по одной записи на задачу
//   - cron.go: разбор cron-выражений и вычисление следующего запуска
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Runner:          run,
//	    Registry:        registry,
//	    Logger:          logger,
//	    Cleaner:         locks,            // опционально
//	    CleanupInterval: 15 * time.Minute, // опционально
//	})
//	if err != nil {
//	    return err
//	}
//	sched.Start(ctx)
//	defer func() { <-sched.Stop().Done() }()
//
// Leader election не нужна: каждое срабатывание проходит через runner,
// и в кластере тело задачи выполнит только процесс, захвативший блокировку.
package scheduler
