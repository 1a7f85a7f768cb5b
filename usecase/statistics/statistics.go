package statistics

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nemscan/backend/domain"
	"github.com/nemscan/backend/pkg/logger"
	"github.com/nemscan/backend/pkg/stats"
	"github.com/nemscan/backend/pkg/timewindow"
	"github.com/nemscan/backend/repository"
)

const (
	distributionDays    = 30
	maxDistributionRows = 6
	maxErrorRateRows    = 5
	groupLookupLimit    = 4
)

var errInvalidThreshold = domain.NewError(domain.ErrCodeInvalid, "stock threshold must be a finite number")

// Config tunes the aggregates that expose caller policy.
type Config struct {
	// LowStockLimit caps the low-stock list. Zero or less returns every match.
	LowStockLimit int
	// ErrorRateDays is used when the caller passes zero days.
	ErrorRateDays int
}

// UseCase computes read-only aggregates over the scan and report event logs.
type UseCase struct {
	scans   repository.ScanRepository
	reports repository.ReportRepository
	catalog repository.ProductCatalog
	windows *timewindow.Resolver
	cfg     Config
	logger  *zap.Logger
}

func New(
	scans repository.ScanRepository,
	reports repository.ReportRepository,
	catalog repository.ProductCatalog,
	windows *timewindow.Resolver,
	cfg Config,
	logger *zap.Logger,
) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if windows == nil {
		windows = timewindow.NewResolver(nil, nil)
	}
	if cfg.ErrorRateDays <= 0 {
		cfg.ErrorRateDays = 7
	}
	return &UseCase{
		scans:   scans,
		reports: reports,
		catalog: catalog,
		windows: windows,
		cfg:     cfg,
		logger:  logger,
	}
}

// GetScanPerformance counts scans in the window and compares the success rate
// with the previous window. Without bounds the current calendar month is
// compared with the previous one; otherwise the previous window is the
// equally long span right before the requested one.
func (uc *UseCase) GetScanPerformance(ctx context.Context, from, to *time.Time) (domain.ScanPerformance, error) {
	current, err := uc.windows.Bounded(from, to, uc.windows.CurrentMonth())
	if err != nil {
		return domain.ScanPerformance{}, err
	}
	previous := current.Preceding()
	if from == nil && to == nil {
		previous = uc.windows.PreviousMonth(current.From)
	}

	var currentScans, previousScans []domain.ScanEvent
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		currentScans, err = uc.scans.QueryScans(gctx, scanFilter(current))
		return err
	})
	g.Go(func() (err error) {
		previousScans, err = uc.scans.QueryScans(gctx, scanFilter(previous))
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.ScanPerformance{}, err
	}

	successful := countSuccessful(currentScans)
	currentRate := stats.Ratio(successful, len(currentScans))
	previousRate := stats.Ratio(countSuccessful(previousScans), len(previousScans))

	return domain.ScanPerformance{
		TotalScans:      len(currentScans),
		SuccessfulScans: successful,
		FailedScans:     len(currentScans) - successful,
		SuccessRate:     stats.Round1(currentRate),
		Trend:           stats.Round1(stats.RelativeChange(currentRate, previousRate)),
	}, nil
}

// GetProductGroupDistribution returns the share of scans per product group,
// defaulting to the trailing 30 days. More than six groups collapse into the
// top five plus a synthetic "Other" entry that also absorbs ungrouped scans.
func (uc *UseCase) GetProductGroupDistribution(ctx context.Context, from, to *time.Time) ([]domain.GroupShare, error) {
	window, err := uc.windows.Bounded(from, to, uc.windows.Trailing(distributionDays))
	if err != nil {
		return nil, err
	}
	scans, err := uc.scans.QueryScans(ctx, scanFilter(window))
	if err != nil {
		return nil, err
	}
	return distribute(scans), nil
}

func distribute(scans []domain.ScanEvent) []domain.GroupShare {
	if len(scans) == 0 {
		return []domain.GroupShare{}
	}

	counts := make(map[string]int)
	for i := range scans {
		counts[scans[i].GroupLabel()]++
	}
	ranked := stats.CountKeys(counts)

	rows := ranked
	if len(ranked) > maxDistributionRows {
		rows = make([]stats.Counted, 0, maxDistributionRows)
		rest := 0
		for _, c := range ranked {
			if c.Key != domain.OtherGroup && len(rows) < maxDistributionRows-1 {
				rows = append(rows, c)
				continue
			}
			rest += c.Count
		}
		rows = append(rows, stats.Counted{Key: domain.OtherGroup, Count: rest})
	}

	values := make([]int, len(rows))
	for i, r := range rows {
		values[i] = r.Count
	}
	percentages := stats.Apportion(values)

	out := make([]domain.GroupShare, len(rows))
	for i, r := range rows {
		out[i] = domain.GroupShare{
			ProductGroup: r.Key,
			ScanCount:    r.Count,
			Percentage:   percentages[i],
		}
	}
	return out
}

type productCounts struct {
	name            string
	currentScans    int
	currentReports  int
	previousScans   int
	previousReports int
}

// GetProductsWithIncreasingErrorRate compares report/scan ratios per product
// between the last days days and the days before that. Only rising products
// are returned, highest change first, at most five.
func (uc *UseCase) GetProductsWithIncreasingErrorRate(ctx context.Context, days int) ([]domain.ErrorRateTrend, error) {
	if days < 0 {
		return nil, domain.ErrInvalidPeriod
	}
	if days == 0 {
		days = uc.cfg.ErrorRateDays
	}
	current, previous := uc.windows.TrailingPair(days)

	var (
		curScans, prevScans     []domain.ScanEvent
		curReports, prevReports []domain.ReportEvent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		curScans, err = uc.scans.QueryScans(gctx, scanFilter(current))
		return err
	})
	g.Go(func() (err error) {
		prevScans, err = uc.scans.QueryScans(gctx, scanFilter(previous))
		return err
	})
	g.Go(func() (err error) {
		curReports, err = uc.reports.QueryReports(gctx, reportFilter(current))
		return err
	})
	g.Go(func() (err error) {
		prevReports, err = uc.reports.QueryReports(gctx, reportFilter(previous))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	products := make(map[string]*productCounts)
	entry := func(number string) *productCounts {
		p, ok := products[number]
		if !ok {
			p = &productCounts{}
			products[number] = p
		}
		return p
	}
	for i := range curScans {
		p := entry(curScans[i].ProductNumber)
		p.currentScans++
		if p.name == "" {
			p.name = curScans[i].ProductName
		}
	}
	for i := range curReports {
		p := entry(curReports[i].ProductNumber())
		p.currentReports++
		if s, ok := curReports[i].Subject.(domain.StandaloneSubject); ok && p.name == "" {
			p.name = s.ProductName
		}
	}
	for i := range prevScans {
		if p, ok := products[prevScans[i].ProductNumber]; ok {
			p.previousScans++
		}
	}
	for i := range prevReports {
		if p, ok := products[prevReports[i].ProductNumber()]; ok {
			p.previousReports++
		}
	}

	trends := make([]domain.ErrorRateTrend, 0, len(products))
	for number, p := range products {
		currentRate := stats.Ratio(p.currentReports, p.currentScans)
		previousRate := stats.Ratio(p.previousReports, p.previousScans)
		change := stats.Round1(stats.ErrorRateChange(currentRate, previousRate))
		if change <= 0 {
			continue
		}
		trends = append(trends, domain.ErrorRateTrend{
			ProductNumber:     number,
			ProductName:       p.name,
			CurrentErrorRate:  stats.Round1(currentRate),
			PreviousErrorRate: stats.Round1(previousRate),
			TrendChange:       change,
		})
	}
	sort.Slice(trends, func(i, j int) bool {
		if trends[i].TrendChange != trends[j].TrendChange {
			return trends[i].TrendChange > trends[j].TrendChange
		}
		return trends[i].ProductNumber < trends[j].ProductNumber
	})
	return stats.Top(trends, maxErrorRateRows), nil
}

// GetMostScannedProduct returns the product scanned most often during the
// current local day, or the no-activity sentinel.
func (uc *UseCase) GetMostScannedProduct(ctx context.Context) (domain.TopScannedProduct, error) {
	scans, err := uc.scans.QueryScans(ctx, scanFilter(uc.windows.Today()))
	if err != nil {
		return domain.TopScannedProduct{}, err
	}
	if len(scans) == 0 {
		return domain.NoActivity(), nil
	}

	type key struct{ number, name string }
	counts := make(map[key]int)
	for i := range scans {
		counts[key{scans[i].ProductNumber, scans[i].ProductName}]++
	}

	var best key
	bestCount := 0
	for k, c := range counts {
		// ties go to the lowest product number so repeated calls agree
		better := c > bestCount ||
			(c == bestCount && (k.number < best.number || (k.number == best.number && k.name < best.name)))
		if better {
			best, bestCount = k, c
		}
	}

	number := best.number
	return domain.TopScannedProduct{
		ProductNumber: &number,
		ProductName:   best.name,
		ScanCount:     bestCount,
	}, nil
}

// GetLowStockProducts lists catalog products with stock below minThreshold,
// lowest stock first. A non-finite threshold is rejected. Catalog failures
// degrade to an empty list; only cancellation of ctx is returned as an error.
func (uc *UseCase) GetLowStockProducts(ctx context.Context, minThreshold float64) ([]domain.LowStockProduct, error) {
	if math.IsNaN(minThreshold) || math.IsInf(minThreshold, 0) {
		return nil, errInvalidThreshold
	}
	out := []domain.LowStockProduct{}
	if uc.catalog == nil {
		return out, nil
	}
	log := logger.WithRequestID(ctx, uc.logger)
	threshold := decimal.NewFromFloat(minThreshold)

	candidates, err := uc.catalog.ListLowStockCandidates(ctx, threshold)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Warn("product catalog unavailable, returning empty low-stock list", zap.Error(err))
		return out, nil
	}

	matches := make([]domain.CatalogProduct, 0, len(candidates))
	for _, c := range candidates {
		if c.Stock.LessThan(threshold) {
			matches = append(matches, c)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if cmp := matches[i].Stock.Cmp(matches[j].Stock); cmp != 0 {
			return cmp < 0
		}
		return matches[i].Number < matches[j].Number
	})
	matches = stats.Top(matches, uc.cfg.LowStockLimit)

	out = make([]domain.LowStockProduct, len(matches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(groupLookupLimit)
	for i, m := range matches {
		i, m := i, m
		out[i] = domain.LowStockProduct{
			ProductNumber:        m.Number,
			ProductName:          m.Name,
			CurrentStockQuantity: m.Stock,
		}
		if strings.TrimSpace(m.GroupID) == "" {
			continue
		}
		g.Go(func() error {
			name, err := uc.catalog.ResolveGroupName(gctx, m.GroupID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Debug("product group lookup failed", zap.String("group_id", m.GroupID), zap.Error(err))
				return nil
			}
			out[i].ProductGroup = name
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func countSuccessful(scans []domain.ScanEvent) int {
	n := 0
	for i := range scans {
		if scans[i].Success {
			n++
		}
	}
	return n
}

func scanFilter(w timewindow.Window) repository.ScanFilter {
	return repository.ScanFilter{From: w.From.UTC(), To: w.To.UTC(), OpenEnd: w.OpenEnd}
}

func reportFilter(w timewindow.Window) repository.ReportFilter {
	return repository.ReportFilter{From: w.From.UTC(), To: w.To.UTC(), OpenEnd: w.OpenEnd}
}
