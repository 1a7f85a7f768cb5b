package services

import (
	"context"

	"github.com/nemscan/backend/domain"
	"github.com/nemscan/backend/internal/infrastructure/buffer"
	"github.com/nemscan/backend/usecase"
)

// BufferBridge exposes the buffer processor to the report use case.
type BufferBridge struct {
	processor *BufferProcessor
}

func NewBufferBridge(processor *BufferProcessor) *BufferBridge {
	return &BufferBridge{processor: processor}
}

func (b *BufferBridge) BufferReport(ctx context.Context, report *domain.ReportEvent) error {
	if b.processor == nil || report == nil {
		return domain.ErrInvalidPayload
	}
	item, err := buffer.NewItem(report.ID, buffer.EntityReport, report)
	if err != nil {
		return err
	}
	return b.processor.BufferOperation(ctx, item)
}

var _ usecase.ReportBuffer = (*BufferBridge)(nil)
