package jobs

import (
	"context"
	"fmt"
	"time"
)

// newDelayFunc: ожидание config.duration (или --param duration=...).
// Используется для проверки развёртывания и учений по overrun.
func newDelayFunc(def Definition, deps Deps) (Func, error) {
	duration, err := configDuration(def.Config, "duration", time.Second)
	if err != nil {
		return nil, fmt.Errorf("%s: duration: %w", KindDelay, err)
	}
	if duration < 0 {
		return nil, fmt.Errorf("%s: duration must not be negative", KindDelay)
	}

	return func(ctx context.Context, opts Options) error {
		d := duration
		if v, ok := opts.Params["duration"]; ok {
			override, err := parseDurationValue(v)
			if err != nil {
				return fmt.Errorf("param duration: %w", err)
			}
			d = override
		}

		logger := loggerFor(opts, deps)
		if opts.DryRun {
			logger.Info("dry run: delay skipped", "duration", d)
			return nil
		}

		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, nil
}
