package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nemscan/backend/domain"
	"github.com/nemscan/backend/repository"
)

type reportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository returns a Postgres-backed implementation of ReportRepository.
func NewReportRepository(pool *pgxpool.Pool) repository.ReportRepository {
	return &reportRepository{pool: pool}
}

func (r *reportRepository) QueryReports(ctx context.Context, filter repository.ReportFilter) ([]domain.ReportEvent, error) {
	const query = `
	SELECT id, scan_event_id, product_number, product_name, report_type, user_role, created_at
	FROM report_events
	WHERE ($1::timestamptz IS NULL OR created_at >= $1)
	  AND ($2::timestamptz IS NULL OR (CASE WHEN $3 THEN created_at < $2 ELSE created_at <= $2 END))
	  AND ($4 = '' OR product_number = $4)
	ORDER BY created_at ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query,
		nullTime(filter.From),
		nullTime(filter.To),
		filter.OpenEnd,
		filter.ProductNumber,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []domain.ReportEvent
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}
	return reports, rows.Err()
}

// AppendReport inserts the report and reports whether a row was written.
// Replaying an already stored report is a no-op that returns false.
func (r *reportRepository) AppendReport(ctx context.Context, report *domain.ReportEvent) (bool, error) {
	if report == nil || report.Subject == nil {
		return false, domain.ErrInvalidPayload
	}
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	report.Normalize()

	var (
		scanID      *string
		productName string
	)
	switch s := report.Subject.(type) {
	case domain.CorrelatedSubject:
		scanID = &s.ScanEventID
	case domain.StandaloneSubject:
		productName = s.ProductName
	}

	const query = `
	INSERT INTO report_events (id, scan_event_id, product_number, product_name, report_type, user_role, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query,
		report.ID,
		scanID,
		report.ProductNumber(),
		productName,
		string(report.ReportType),
		report.UserRole,
		report.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanReport(row rowScanner) (*domain.ReportEvent, error) {
	var (
		report             domain.ReportEvent
		scanID             *string
		number, name, kind string
	)
	if err := row.Scan(
		&report.ID,
		&scanID,
		&number,
		&name,
		&kind,
		&report.UserRole,
		&report.CreatedAt,
	); err != nil {
		return nil, err
	}
	report.ReportType = domain.ReportType(kind)
	report.Subject = domain.SubjectFor(scanID, number, name)
	report.CreatedAt = report.CreatedAt.UTC()
	return &report, nil
}
