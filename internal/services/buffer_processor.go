package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/nemscan/backend/domain"
	"github.com/nemscan/backend/internal/infrastructure/buffer"
	"github.com/nemscan/backend/repository"
)

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// ProcessorConfig controls how frequently the buffer is drained.
type ProcessorConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	Retention  time.Duration
}

// BufferProcessor replays buffered report writes into the event store.
type BufferProcessor struct {
	store   *buffer.Store
	monitor ConnectionHealth
	reports repository.ReportRepository
	logger  *zap.Logger
	cron    *cron.Cron
	cfg     ProcessorConfig
}

func NewBufferProcessor(
	store *buffer.Store,
	monitor ConnectionHealth,
	reports repository.ReportRepository,
	logger *zap.Logger,
	cfg ProcessorConfig,
) *BufferProcessor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
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
		store:   store,
		monitor: monitor,
		reports: reports,
		logger:  logger.Named("buffer"),
		cfg:     cfg,
		cron:    cron.New(cron.WithSeconds()),
	}

	schedule := fmt.Sprintf("@every %ds", int(cfg.Interval.Seconds()))
	_, _ = bp.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := bp.Drain(ctx); err != nil {
			bp.logger.Error("buffer drain failed", zap.Error(err))
		}
	})
	_, _ = bp.cron.AddFunc("@hourly", func() {
		if err := bp.store.Cleanup(time.Now().Add(-cfg.Retention)); err != nil {
			bp.logger.Warn("dead-letter cleanup failed", zap.Error(err))
		}
	})

	return bp
}

// Start launches the cron scheduler.
func (bp *BufferProcessor) Start() {
	if bp == nil || bp.cron == nil {
		return
	}
	bp.cron.Start()
	bp.logger.Info("buffer processor started", zap.Duration("interval", bp.cfg.Interval))
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
	bp.logger.Info("buffer processor stopped")
}

// Drain replays one batch of buffered items. Items that keep failing are
// moved to the dead-letter bucket after MaxRetries attempts.
func (bp *BufferProcessor) Drain(ctx context.Context) error {
	if bp == nil || bp.store == nil {
		return nil
	}
	if bp.monitor != nil && !bp.monitor.IsOnline() {
		bp.logger.Debug("skipping buffer drain (offline)")
		return nil
	}

	items, err := bp.store.GetBatch(bp.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := bp.processItem(ctx, item); err != nil {
			bp.logger.Error("failed to replay buffer item",
				zap.String("item_id", item.ID),
				zap.String("entity", item.Entity),
				zap.Int("retries", item.Retries),
				zap.Error(err))

			if item.Retries+1 >= bp.cfg.MaxRetries {
				bp.logger.Warn("burying buffer item (max retries reached)", zap.String("item_id", item.ID))
				item.Retries++
				item.LastError = err.Error()
				if err := bp.store.Bury(item); err != nil {
					bp.logger.Error("failed to bury buffer item", zap.Error(err))
				}
				continue
			}
			if err := bp.store.Requeue(item, err); err != nil {
				bp.logger.Error("failed to requeue buffer item", zap.Error(err))
			}
			continue
		}

		if err := bp.store.Remove(item); err != nil {
			bp.logger.Warn("failed to purge replayed buffer item", zap.Error(err))
		}
	}
	return nil
}

// BufferOperation persists an item for a later replay.
func (bp *BufferProcessor) BufferOperation(_ context.Context, item buffer.Item) error {
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
	switch item.Entity {
	case buffer.EntityReport:
		var report domain.ReportEvent
		if err := item.Decode(&report); err != nil {
			return err
		}
		if item.Operation != buffer.OperationAppend {
			return fmt.Errorf("unsupported operation %s", item.Operation)
		}
		stored, err := bp.reports.AppendReport(ctx, &report)
		if err != nil {
			return err
		}
		if !stored {
			// already present from an earlier replay
			bp.logger.Debug("buffered report already stored", zap.String("report_id", report.ID))
		}
		return nil
	default:
		return fmt.Errorf("unsupported entity %s", item.Entity)
	}
}
