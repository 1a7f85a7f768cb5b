package usecase

import (
	"context"

	"github.com/nemscan/backend/domain"
)

// ReportBuffer abstracts the offline buffer so use cases stay storage-agnostic.
type ReportBuffer interface {
	BufferReport(ctx context.Context, report *domain.ReportEvent) error
}
