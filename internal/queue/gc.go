package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// purgeTimeout bounds a single sweep of the dead-letter queue
const purgeTimeout = 2 * time.Minute

// GarbageCollector sweeps dead-lettered transcription jobs. A job whose
// message has been dead-lettered longer than retention no longer has a job
// record or audio in the store, so the message is useless for inspection.
type GarbageCollector struct {
	dlqPurger DLQPurger
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger
	purged    int
}

// NewGarbageCollector creates a collector that sweeps every interval. A nil
// purger makes every sweep a no-op.
func NewGarbageCollector(purger DLQPurger, interval time.Duration, retention time.Duration, logger *zap.Logger) *GarbageCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GarbageCollector{
		dlqPurger: purger,
		interval:  interval,
		retention: retention,
		logger:    logger,
	}
}

// Start sweeps once immediately, then on every tick until ctx is cancelled
func (gc *GarbageCollector) Start(ctx context.Context) error {
	gc.sweep(ctx)

	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			gc.logger.Info("dlq_gc_stopped", zap.Int("purged_total", gc.purged))
			return ctx.Err()
		case <-ticker.C:
			gc.sweep(ctx)
		}
	}
}

func (gc *GarbageCollector) sweep(ctx context.Context) {
	if err := gc.collect(ctx); err != nil {
		gc.logger.Warn("dlq_gc_failed", zap.Error(err))
	}
}

// collect purges dead-lettered messages older than retention
func (gc *GarbageCollector) collect(ctx context.Context) error {
	if gc.dlqPurger == nil || ctx.Err() != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, purgeTimeout)
	defer cancel()

	n, err := gc.dlqPurger.PurgeOlderThan(ctx, gc.retention)
	if err != nil {
		return fmt.Errorf("DLQ purge: %w", err)
	}
	if n > 0 {
		gc.purged += n
		gc.logger.Info("dlq_gc_purged", zap.Int("messages", n), zap.Duration("retention", gc.retention))
	}
	return nil
}
