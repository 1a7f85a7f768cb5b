package repository

import (
	"context"
	"time"

	"github.com/nemscan/backend/domain"
)

// ScanFilter selects scan events. Zero From/To leave that side of the range
// open; To is inclusive unless OpenEnd is set.
type ScanFilter struct {
	From          time.Time
	To            time.Time
	OpenEnd       bool
	ProductNumber string
	IDs           []string
}

type ScanRepository interface {
	QueryScans(ctx context.Context, filter ScanFilter) ([]domain.ScanEvent, error)
	GetScan(ctx context.Context, id string) (*domain.ScanEvent, error)
	AppendScan(ctx context.Context, scan *domain.ScanEvent) error
}
