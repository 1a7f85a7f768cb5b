package transport

import (
	"strings"
	"time"

	"github.com/nemscan/backend/domain"
)

const dateLayout = "2006-01-02"

// CreateReportRequest is the body of POST /api/v1/reports.
type CreateReportRequest struct {
	ScanEventID   string `json:"scan_event_id"`
	ProductNumber string `json:"product_number"`
	ProductName   string `json:"product_name"`
	ReportType    string `json:"report_type"`
}

// ParseTime accepts RFC3339 timestamps or plain dates. A plain date is read
// as midnight in loc. Empty input yields nil.
func ParseTime(raw string, loc *time.Location) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return &t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInvalid, "invalid time "+raw, err)
	}
	return &t, nil
}
