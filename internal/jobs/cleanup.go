package jobs

import (
	"context"
	"fmt"
)

// newCleanupFunc: удаление просроченных блокировок как обычная задача
// (сама защищена блокировкой, поэтому в кластере выполняется одним процессом).
func newCleanupFunc(_ Definition, deps Deps) (Func, error) {
	if deps.Cleaner == nil {
		return nil, fmt.Errorf("%s: lock cleaner is not configured", KindCleanupLocks)
	}

	return func(ctx context.Context, opts Options) error {
		logger := loggerFor(opts, deps)
		if opts.DryRun {
			logger.Info("dry run: lock cleanup skipped")
			return nil
		}

		deleted, err := deps.Cleaner.CleanupExpired(ctx)
		if err != nil {
			return fmt.Errorf("cleanup expired locks: %w", err)
		}
		logger.Info("lock cleanup completed", "deleted", deleted)
		return nil
	}, nil
}
