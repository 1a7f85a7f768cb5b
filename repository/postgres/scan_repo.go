package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/nemscan/backend/domain"
	"github.com/nemscan/backend/repository"
)

const scanColumns = `id, product_number, product_name, product_group, current_sales_price,
	current_stock_quantity, success, user_role, timestamp`

type scanRepository struct {
	pool *pgxpool.Pool
}

// NewScanRepository returns a Postgres-backed implementation of ScanRepository.
func NewScanRepository(pool *pgxpool.Pool) repository.ScanRepository {
	return &scanRepository{pool: pool}
}

func (r *scanRepository) QueryScans(ctx context.Context, filter repository.ScanFilter) ([]domain.ScanEvent, error) {
	const query = `
	SELECT ` + scanColumns + `
	FROM scan_events
	WHERE ($1::timestamptz IS NULL OR timestamp >= $1)
	  AND ($2::timestamptz IS NULL OR (CASE WHEN $3 THEN timestamp < $2 ELSE timestamp <= $2 END))
	  AND ($4 = '' OR product_number = $4)
	  AND (NOT $5 OR id = ANY($6::uuid[]))
	ORDER BY timestamp ASC, id ASC
	`

	filterIDs := filter.IDs != nil
	ids := validIDs(filter.IDs)

	rows, err := r.pool.Query(ctx, query,
		nullTime(filter.From),
		nullTime(filter.To),
		filter.OpenEnd,
		filter.ProductNumber,
		filterIDs,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []domain.ScanEvent
	for rows.Next() {
		scan, err := scanScanEvent(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, *scan)
	}
	return scans, rows.Err()
}

func (r *scanRepository) GetScan(ctx context.Context, id string) (*domain.ScanEvent, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrScanNotFound
	}
	const query = `SELECT ` + scanColumns + ` FROM scan_events WHERE id = $1`
	return scanScanEvent(r.pool.QueryRow(ctx, query, id))
}

func (r *scanRepository) AppendScan(ctx context.Context, scan *domain.ScanEvent) error {
	if scan == nil {
		return domain.ErrInvalidPayload
	}
	if scan.ID == "" {
		scan.ID = uuid.NewString()
	}
	scan.Normalize()

	const query = `
	INSERT INTO scan_events (` + scanColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		scan.ID,
		scan.ProductNumber,
		scan.ProductName,
		scan.ProductGroup,
		nullDecimal(scan.CurrentSalesPrice),
		nullDecimal(scan.CurrentStockQuantity),
		scan.Success,
		scan.UserRole,
		scan.Timestamp,
	)
	return err
}

func scanScanEvent(row rowScanner) (*domain.ScanEvent, error) {
	var (
		scan         domain.ScanEvent
		price, stock decimal.NullDecimal
	)
	if err := row.Scan(
		&scan.ID,
		&scan.ProductNumber,
		&scan.ProductName,
		&scan.ProductGroup,
		&price,
		&stock,
		&scan.Success,
		&scan.UserRole,
		&scan.Timestamp,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrScanNotFound
		}
		return nil, err
	}
	scan.CurrentSalesPrice = decimalPtr(price)
	scan.CurrentStockQuantity = decimalPtr(stock)
	scan.Timestamp = scan.Timestamp.UTC()
	return &scan, nil
}
