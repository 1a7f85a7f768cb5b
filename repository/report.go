package repository

import (
	"context"
	"time"

	"github.com/nemscan/backend/domain"
)

// ReportFilter selects report events by creation time and optional product.
type ReportFilter struct {
	From          time.Time
	To            time.Time
	OpenEnd       bool
	ProductNumber string
}

type ReportRepository interface {
	QueryReports(ctx context.Context, filter ReportFilter) ([]domain.ReportEvent, error)
	AppendReport(ctx context.Context, report *domain.ReportEvent) (bool, error)
}
