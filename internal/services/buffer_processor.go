package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/huddle/internal/infrastructure/buffer"
	"github.com/fastygo/huddle/usecase"
)

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// Replayer re-executes a side effect that failed earlier.
type Replayer interface {
	Replay(ctx context.Context, effect usecase.SideEffect) error
}

// ProcessorConfig controls how frequently the outbox is drained.
type ProcessorConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	Retention  time.Duration
}

// BufferProcessor drains the side-effect outbox, replaying each entry until it
// succeeds or runs out of retries.
type BufferProcessor struct {
	store    *buffer.Store
	monitor  ConnectionHealth
	replayer Replayer
	logger   *zap.Logger
	cron     *cron.Cron
	cfg      ProcessorConfig
}

func NewBufferProcessor(
	store *buffer.Store,
	monitor ConnectionHealth,
	replayer Replayer,
	logger *zap.Logger,
	cfg ProcessorConfig,
) *BufferProcessor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Interval < time.Second {
		// cron cannot tick faster than once a second
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bp := &BufferProcessor{
		store:    store,
		monitor:  monitor,
		replayer: replayer,
		logger:   logger,
		cfg:      cfg,
		cron:     cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}

	bp.cron.Schedule(cron.Every(cfg.Interval), cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := bp.Drain(ctx); err != nil {
			bp.logger.Error("outbox drain failed", zap.Error(err))
		}
	}))

	return bp
}

// Start launches the cron scheduler.
func (bp *BufferProcessor) Start() {
	if bp == nil || bp.cron == nil {
		return
	}
	bp.cron.Start()
	bp.logger.Info("side effect retry processor started", zap.Duration("interval", bp.cfg.Interval))
}

// Stop gracefully stops the scheduler.
func (bp *BufferProcessor) Stop(ctx context.Context) {
	if bp == nil || bp.cron == nil {
		return
	}
	stopCtx := bp.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	bp.logger.Info("side effect retry processor stopped")
}

// Drain replays one batch of buffered side effects synchronously.
func (bp *BufferProcessor) Drain(ctx context.Context) error {
	if bp == nil || bp.store == nil {
		return nil
	}
	if bp.monitor != nil && !bp.monitor.IsOnline() {
		bp.logger.Debug("skipping outbox drain (offline)")
		return nil
	}

	if removed, err := bp.store.Cleanup(time.Now().Add(-bp.cfg.Retention)); err != nil {
		bp.logger.Warn("outbox cleanup failed", zap.Error(err))
	} else if removed > 0 {
		bp.logger.Warn("expired side effects dropped", zap.Int("count", removed))
	}

	items, err := bp.store.GetBatch(bp.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, item := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := bp.processItem(ctx, item); err != nil {
			item.Retries++
			item.LastError = err.Error()
			bp.logger.Error("side effect retry failed",
				zap.String("item_id", item.ID),
				zap.String("operation", item.Operation),
				zap.String("activity_id", item.ActivityID),
				zap.Int("retries", item.Retries),
				zap.Error(err))

			if item.Retries >= bp.cfg.MaxRetries {
				bp.logger.Warn("dropping side effect (max retries reached)",
					zap.String("item_id", item.ID),
					zap.String("operation", item.Operation),
					zap.String("activity_id", item.ActivityID))
				_ = bp.store.Remove(item)
				continue
			}
			if err := bp.store.Requeue(item); err != nil {
				bp.logger.Error("failed to requeue side effect", zap.Error(err))
			}
			continue
		}

		if err := bp.store.Remove(item); err != nil {
			bp.logger.Warn("failed to purge replayed side effect", zap.Error(err))
		}
		bp.logger.Info("side effect replayed",
			zap.String("operation", item.Operation),
			zap.String("activity_id", item.ActivityID))
	}
	return nil
}

// Enqueue persists an item for the next drain.
func (bp *BufferProcessor) Enqueue(item buffer.Item) error {
	if bp == nil || bp.store == nil {
		return fmt.Errorf("buffer processor not configured")
	}
	return bp.store.Enqueue(item)
}

// Size returns the number of buffered items.
func (bp *BufferProcessor) Size() int {
	if bp == nil || bp.store == nil {
		return 0
	}
	size, err := bp.store.Size()
	if err != nil {
		return 0
	}
	return size
}

func (bp *BufferProcessor) processItem(ctx context.Context, item buffer.Item) error {
	if item.Entity != buffer.EntitySideEffect {
		return fmt.Errorf("unsupported entity %s", item.Entity)
	}
	var effect usecase.SideEffect
	if err := json.Unmarshal(item.Data, &effect); err != nil {
		return err
	}
	return bp.replayer.Replay(ctx, effect)
}
