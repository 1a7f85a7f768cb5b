package domain

import "github.com/shopspring/decimal"

// NoScansToday is the product name of the top-product sentinel.
const NoScansToday = "No scans today"

// UnknownProductLabel names report subjects whose scan event can no longer be
// resolved. It is never written to the event store.
const UnknownProductLabel = "Unknown product"

// ScanPerformance summarizes scan outcomes in a window and the trend against
// the previous window.
type ScanPerformance struct {
	TotalScans      int     `json:"total_scans"`
	SuccessfulScans int     `json:"successful_scans"`
	FailedScans     int     `json:"failed_scans"`
	SuccessRate     float64 `json:"success_rate"`
	Trend           float64 `json:"trend"`
}

// GroupShare is one row of the product group distribution.
type GroupShare struct {
	ProductGroup string  `json:"product_group"`
	ScanCount    int     `json:"scan_count"`
	Percentage   float64 `json:"percentage"`
}

// ErrorRateTrend compares the report/scan ratio of a product across two windows.
type ErrorRateTrend struct {
	ProductNumber     string  `json:"product_number"`
	ProductName       string  `json:"product_name"`
	CurrentErrorRate  float64 `json:"current_error_rate"`
	PreviousErrorRate float64 `json:"previous_error_rate"`
	TrendChange       float64 `json:"trend_change"`
}

// TopScannedProduct is the most scanned product of the day. ProductNumber is
// nil for the "no activity" sentinel.
type TopScannedProduct struct {
	ProductNumber *string `json:"product_number"`
	ProductName   string  `json:"product_name"`
	ScanCount     int     `json:"scan_count"`
}

// NoActivity returns the sentinel used when nothing was scanned today.
func NoActivity() TopScannedProduct {
	return TopScannedProduct{ProductName: NoScansToday}
}

// Empty reports whether p is the no-activity sentinel.
func (p TopScannedProduct) Empty() bool {
	return p.ProductNumber == nil && p.ScanCount == 0
}

// LowStockProduct is a catalog product whose stock is below the requested threshold.
type LowStockProduct struct {
	ProductNumber        string          `json:"product_number"`
	ProductName          string          `json:"product_name"`
	ProductGroup         string          `json:"product_group"`
	CurrentStockQuantity decimal.Decimal `json:"current_stock_quantity"`
}

// CatalogProduct is a stock snapshot delivered by the product catalog.
type CatalogProduct struct {
	Number  string
	Name    string
	GroupID string
	Stock   decimal.Decimal
}

const (
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

// HeatmapCell counts scans for one weekday and time-of-day period.
type HeatmapCell struct {
	Day    string `json:"day"`
	Period string `json:"period"`
	Count  int    `json:"count"`
}

// TrendPoint is one day of the rolling-average activity trend.
type TrendPoint struct {
	Date           string  `json:"date"`
	Count          int     `json:"count"`
	RollingAverage float64 `json:"rolling_average"`
}

// ActivityReport holds either a heatmap (week) or a trend (month), never both.
type ActivityReport struct {
	PeriodType string        `json:"period_type"`
	Heatmap    []HeatmapCell `json:"heatmap,omitempty"`
	Trend      []TrendPoint  `json:"trend,omitempty"`
}

// ErrorPattern is the share of one report type among all reports.
type ErrorPattern struct {
	ReportType string  `json:"report_type"`
	Label      string  `json:"label"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// FailedProduct is a frequently reported product.
type FailedProduct struct {
	ProductNumber string  `json:"product_number"`
	ProductName   string  `json:"product_name"`
	ErrorCount    int     `json:"error_count"`
	Percentage    float64 `json:"percentage"`
}
