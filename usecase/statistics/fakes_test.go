package statistics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nemscan/backend/domain"
	"github.com/nemscan/backend/repository"
)

func inRange(ts, from, to time.Time, openEnd bool) bool {
	if !from.IsZero() && ts.Before(from) {
		return false
	}
	if to.IsZero() {
		return true
	}
	if openEnd {
		return ts.Before(to)
	}
	return !ts.After(to)
}

type fakeScans struct {
	mu    sync.Mutex
	scans []domain.ScanEvent
	err   error
	calls int
}

func (f *fakeScans) QueryScans(ctx context.Context, filter repository.ScanFilter) ([]domain.ScanEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	ids := make(map[string]bool, len(filter.IDs))
	for _, id := range filter.IDs {
		ids[id] = true
	}
	var out []domain.ScanEvent
	for _, s := range f.scans {
		if !inRange(s.Timestamp, filter.From, filter.To, filter.OpenEnd) {
			continue
		}
		if filter.ProductNumber != "" && s.ProductNumber != filter.ProductNumber {
			continue
		}
		if len(ids) > 0 && !ids[s.ID] {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeScans) GetScan(_ context.Context, id string) (*domain.ScanEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.scans {
		if f.scans[i].ID == id {
			s := f.scans[i]
			return &s, nil
		}
	}
	return nil, domain.ErrScanNotFound
}

func (f *fakeScans) AppendScan(_ context.Context, scan *domain.ScanEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	scan.Normalize()
	f.scans = append(f.scans, *scan)
	return nil
}

type fakeReports struct {
	mu      sync.Mutex
	reports []domain.ReportEvent
	err     error
}

func (f *fakeReports) QueryReports(ctx context.Context, filter repository.ReportFilter) ([]domain.ReportEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.ReportEvent
	for _, r := range f.reports {
		if !inRange(r.CreatedAt, filter.From, filter.To, filter.OpenEnd) {
			continue
		}
		if filter.ProductNumber != "" && r.ProductNumber() != filter.ProductNumber {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeReports) AppendReport(_ context.Context, report *domain.ReportEvent) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, *report)
	return true, nil
}

var errCatalogDown = errors.New("catalog down")

type fakeCatalog struct {
	mu         sync.Mutex
	products   []domain.CatalogProduct
	groups     map[string]string
	listErr    error
	groupErr   map[string]error
	thresholds []decimal.Decimal
}

func (f *fakeCatalog) ListLowStockCandidates(ctx context.Context, threshold decimal.Decimal) ([]domain.CatalogProduct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.thresholds = append(f.thresholds, threshold)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.CatalogProduct(nil), f.products...), nil
}

func (f *fakeCatalog) ResolveGroupName(ctx context.Context, groupID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.groupErr[groupID]; err != nil {
		return "", err
	}
	return f.groups[groupID], nil
}
