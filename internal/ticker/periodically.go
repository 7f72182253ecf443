package ticker

import (
	"context"
	"log/slog"
	"time"
)

// Periodically runs task once immediately, then again every interval, until ctx is done.
//
// Task errors are logged and do not stop the loop. Runs never overlap: a tick which arrives while a task is still running is dropped.
func Periodically(ctx context.Context, logger *slog.Logger, interval time.Duration, task func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := task(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("periodic task failed", "err", err)
		}
		logger.Debug("waiting for next run", "interval", interval)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
