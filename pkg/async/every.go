package async

import (
	"context"
	"time"

	"github.com/formulafinance/licensehub/pkg/observability"
)

// Every calls fn once per interval until ctx is done. A panic or error in
// one tick is logged and the loop keeps going.
func Every(ctx context.Context, interval time.Duration, taskName string, logger *observability.Logger, fn func(context.Context) error) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runTick(ctx, taskName, logger, fn)
		}
	}
}

func runTick(ctx context.Context, taskName string, logger *observability.Logger, fn func(context.Context) error) {
	defer observability.RecoverPanic(logger, taskName)
	if err := fn(ctx); err != nil {
		logger.WithError(err).WithField("task", taskName).Warn("Periodic task failed")
	}
}
