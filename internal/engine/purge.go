package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// purgeInterval governs how often the Engine sweeps terminal jobs out of
// the store; the retention ages themselves come from
// cfg.RemoveOnCompleteAgeSec/RemoveOnFailAgeSec (spec §4.4 completion
// policy).
const purgeInterval = 10 * time.Minute

func (e *Engine) runPurgeLoop(ctx context.Context) {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("purge loop panic recovered", zap.Any("panic", r))
		}
	}()

	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.purgeOnce(ctx)
		}
	}
}

func (e *Engine) purgeOnce(ctx context.Context) {
	completedOlderThan := time.Duration(e.cfg.RemoveOnCompleteAgeSec) * time.Second
	failedOlderThan := time.Duration(e.cfg.RemoveOnFailAgeSec) * time.Second

	n, err := e.store.Purge(ctx, completedOlderThan, failedOlderThan)
	if err != nil {
		e.logger.Error("purge failed", zap.Error(err))
		return
	}
	if n > 0 {
		e.logger.Info("purged terminal jobs", zap.Int64("count", n))
	}
}
