package report

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nemscan/backend/domain"
	"github.com/nemscan/backend/pkg/logger"
	"github.com/nemscan/backend/pkg/stats"
	"github.com/nemscan/backend/pkg/timewindow"
	"github.com/nemscan/backend/repository"
	"github.com/nemscan/backend/usecase"
)

const defaultTopFailed = 3

var errReportRejected = domain.NewError(domain.ErrCodeConflict, "report was not stored")

// CreateInput describes a new report. A non-empty ScanEventID makes the report
// correlated and requires the scan event to exist.
type CreateInput struct {
	ScanEventID   string `json:"scan_event_id"`
	ProductNumber string `json:"product_number"`
	ProductName   string `json:"product_name"`
	ReportType    string `json:"report_type"`
	UserRole      string `json:"user_role"`
}

type UseCase struct {
	scans    repository.ScanRepository
	reports  repository.ReportRepository
	buffer   usecase.ReportBuffer
	windows  *timewindow.Resolver
	language string
	logger   *zap.Logger
}

func New(
	scans repository.ScanRepository,
	reports repository.ReportRepository,
	buffer usecase.ReportBuffer,
	windows *timewindow.Resolver,
	language string,
	logger *zap.Logger,
) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if windows == nil {
		windows = timewindow.NewResolver(nil, nil)
	}
	if language == "" {
		language = "da"
	}
	return &UseCase{
		scans:    scans,
		reports:  reports,
		buffer:   buffer,
		windows:  windows,
		language: language,
		logger:   logger,
	}
}

// CreateReport validates and stores a report. When the store rejects the
// write with an error and a buffer is configured, the report is buffered for
// a later retry and returned as accepted.
func (uc *UseCase) CreateReport(ctx context.Context, in CreateInput) (*domain.ReportEvent, error) {
	reportType, err := domain.ParseReportType(in.ReportType)
	if err != nil {
		return nil, err
	}
	subject, err := uc.subject(ctx, in)
	if err != nil {
		return nil, err
	}

	report := &domain.ReportEvent{
		ID:         uuid.NewString(),
		Subject:    subject,
		ReportType: reportType,
		UserRole:   in.UserRole,
	}
	report.Normalize()

	stored, err := uc.reports.AppendReport(ctx, report)
	if err != nil {
		if uc.buffer == nil || ctx.Err() != nil {
			return nil, err
		}
		log := logger.WithRequestID(ctx, uc.logger)
		if bufErr := uc.buffer.BufferReport(ctx, report); bufErr != nil {
			log.Error("failed to buffer report", zap.Error(bufErr))
			return nil, err
		}
		log.Warn("report buffered due to repository error", zap.String("report_id", report.ID), zap.Error(err))
		return report, nil
	}
	if !stored {
		return nil, errReportRejected
	}
	return report, nil
}

func (uc *UseCase) subject(ctx context.Context, in CreateInput) (domain.ReportSubject, error) {
	if id := strings.TrimSpace(in.ScanEventID); id != "" {
		scan, err := uc.scans.GetScan(ctx, id)
		if err != nil {
			return nil, err
		}
		number := strings.TrimSpace(in.ProductNumber)
		if number == "" {
			number = scan.ProductNumber
		}
		return domain.CorrelatedSubject{ScanEventID: scan.ID, ProductNumber: number}, nil
	}

	number := strings.TrimSpace(in.ProductNumber)
	if number == "" {
		return nil, domain.WrapError(domain.ErrCodeInvalid, "product number is required", nil)
	}
	return domain.StandaloneSubject{ProductNumber: number, ProductName: strings.TrimSpace(in.ProductName)}, nil
}

// GetErrorPatterns groups all reports by type with localized labels.
func (uc *UseCase) GetErrorPatterns(ctx context.Context, language string) ([]domain.ErrorPattern, error) {
	if language == "" {
		language = uc.language
	}
	reports, err := uc.reports.QueryReports(ctx, repository.ReportFilter{})
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for i := range reports {
		counts[string(reports[i].ReportType)]++
	}
	patterns := make([]domain.ErrorPattern, 0, len(counts))
	for _, c := range stats.CountKeys(counts) {
		patterns = append(patterns, domain.ErrorPattern{
			ReportType: c.Key,
			Label:      domain.ReportType(c.Key).Label(language),
			Count:      c.Count,
			Percentage: stats.Percentage(c.Count, len(reports)),
		})
	}
	return patterns, nil
}

// GetTopFailedProducts returns the n most reported products with their share
// of all reports. n <= 0 means three.
func (uc *UseCase) GetTopFailedProducts(ctx context.Context, n int) ([]domain.FailedProduct, error) {
	if n <= 0 {
		n = defaultTopFailed
	}
	reports, err := uc.reports.QueryReports(ctx, repository.ReportFilter{})
	if err != nil {
		return nil, err
	}
	names, err := uc.correlatedNames(ctx, reports)
	if err != nil {
		return nil, err
	}

	type key struct{ number, name string }
	counts := make(map[key]int)
	for i := range reports {
		var name string
		switch s := reports[i].Subject.(type) {
		case domain.CorrelatedSubject:
			name = names[s.ScanEventID]
			if name == "" {
				name = domain.UnknownProductLabel
			}
		case domain.StandaloneSubject:
			name = s.ProductName
		}
		counts[key{reports[i].ProductNumber(), name}]++
	}

	products := make([]domain.FailedProduct, 0, len(counts))
	for k, c := range counts {
		products = append(products, domain.FailedProduct{
			ProductNumber: k.number,
			ProductName:   k.name,
			ErrorCount:    c,
			Percentage:    stats.Percentage(c, len(reports)),
		})
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].ErrorCount != products[j].ErrorCount {
			return products[i].ErrorCount > products[j].ErrorCount
		}
		if products[i].ProductNumber != products[j].ProductNumber {
			return products[i].ProductNumber < products[j].ProductNumber
		}
		return products[i].ProductName < products[j].ProductName
	})
	return stats.Top(products, n), nil
}

func (uc *UseCase) correlatedNames(ctx context.Context, reports []domain.ReportEvent) (map[string]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	for i := range reports {
		if s, ok := reports[i].Subject.(domain.CorrelatedSubject); ok {
			if _, dup := seen[s.ScanEventID]; !dup {
				seen[s.ScanEventID] = struct{}{}
				ids = append(ids, s.ScanEventID)
			}
		}
	}
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	scans, err := uc.scans.QueryScans(ctx, repository.ScanFilter{IDs: ids})
	if err != nil {
		return nil, err
	}
	for i := range scans {
		names[scans[i].ID] = scans[i].ProductName
	}
	return names, nil
}

// GetTodaysReportCount counts reports created during the current UTC day.
func (uc *UseCase) GetTodaysReportCount(ctx context.Context) (int, error) {
	today := uc.windows.TodayUTC()
	reports, err := uc.reports.QueryReports(ctx, repository.ReportFilter{
		From:    today.From,
		To:      today.To,
		OpenEnd: today.OpenEnd,
	})
	if err != nil {
		return 0, err
	}
	return len(reports), nil
}
