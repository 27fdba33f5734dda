package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// Schedule запускает периодическую перестройку по cron-выражению.
// Блокируется до отмены ctx. Каждая перестройка ограничена timeout.
func Schedule(ctx context.Context, expr string, timeout time.Duration, m *Maintainer, src Source) error {
	if !gronx.IsValid(expr) {
		return fmt.Errorf("index/Schedule: invalid cron expression %q", expr)
	}

	m.log.Info("index_schedule_started", "cron", expr)

	for {
		next, err := gronx.NextTickAfter(expr, time.Now().UTC(), false)
		if err != nil {
			m.log.Error("index_schedule_next_tick_failed", "cron", expr, "err", err)
			next = time.Now().Add(30 * time.Second)
		}

		select {
		case <-ctx.Done():
			m.log.Info("index_schedule_stopping")
			return nil
		case <-time.After(time.Until(next)):
		}

		runRebuild(ctx, timeout, m, src, m.log)
	}
}

func runRebuild(ctx context.Context, timeout time.Duration, m *Maintainer, src Source, lg *slog.Logger) {
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := m.Rebuild(rctx, src); err != nil {
		lg.Error("index_scheduled_rebuild_failed", "err", err)
	}
}
