package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// ReportType classifies a user-submitted problem report.
type ReportType string

const (
	ReportProductNotFound    ReportType = "ProductNotFound"
	ReportCampaignNotFound   ReportType = "CampaignNotFound"
	ReportMissingInformation ReportType = "MissingInformation"
)

// UnknownProductName replaces a blank name on a stored standalone report. It
// is a stored value; UnknownProductLabel is only a display label for reports
// whose product cannot be resolved when aggregating.
const UnknownProductName = "Unknown"

var reportTypes = []ReportType{
	ReportProductNotFound,
	ReportCampaignNotFound,
	ReportMissingInformation,
}

var reportLabels = map[string]map[ReportType]string{
	"da": {
		ReportProductNotFound:    "Produkt kunne ikke findes",
		ReportCampaignNotFound:   "Kampagne ikke fundet",
		ReportMissingInformation: "Manglende information",
	},
	"en": {
		ReportProductNotFound:    "Product not found",
		ReportCampaignNotFound:   "Campaign not found",
		ReportMissingInformation: "Missing information",
	},
}

// ParseReportType matches raw against the known report types, ignoring case.
func ParseReportType(raw string) (ReportType, error) {
	raw = strings.TrimSpace(raw)
	for _, t := range reportTypes {
		if strings.EqualFold(raw, string(t)) {
			return t, nil
		}
	}
	return "", ErrInvalidReportType
}

// Label returns the localized label. Unknown languages use English and
// unknown types fall back to the raw name.
func (t ReportType) Label(language string) string {
	labels, ok := reportLabels[strings.ToLower(language)]
	if !ok {
		labels = reportLabels["en"]
	}
	if label, ok := labels[t]; ok {
		return label
	}
	return string(t)
}

// ReportSubject identifies what a report is about. It is either a
// CorrelatedSubject or a StandaloneSubject.
type ReportSubject interface {
	Number() string
	isReportSubject()
}

// CorrelatedSubject points back at the scan event that triggered the report.
type CorrelatedSubject struct {
	ScanEventID   string
	ProductNumber string
}

func (c CorrelatedSubject) Number() string { return c.ProductNumber }
func (CorrelatedSubject) isReportSubject() {}

// StandaloneSubject carries the product identity on the report itself.
type StandaloneSubject struct {
	ProductNumber string
	ProductName   string
}

func (s StandaloneSubject) Number() string { return s.ProductNumber }
func (StandaloneSubject) isReportSubject() {}

// ReportEvent is an append-only record of a user-submitted report.
type ReportEvent struct {
	ID         string
	Subject    ReportSubject
	ReportType ReportType
	UserRole   string
	CreatedAt  time.Time
}

// ProductNumber returns the product number of the report subject.
func (r *ReportEvent) ProductNumber() string {
	if r == nil || r.Subject == nil {
		return ""
	}
	return r.Subject.Number()
}

// Normalize fills defaults and moves CreatedAt to UTC.
func (r *ReportEvent) Normalize() {
	if r == nil {
		return
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	r.CreatedAt = r.CreatedAt.UTC()
	if s, ok := r.Subject.(StandaloneSubject); ok && strings.TrimSpace(s.ProductName) == "" {
		s.ProductName = UnknownProductName
		r.Subject = s
	}
}

// reportRecord is the flat wire shape of a ReportEvent.
type reportRecord struct {
	ID            string     `json:"id"`
	ScanEventID   *string    `json:"scan_event_id,omitempty"`
	ProductNumber string     `json:"product_number"`
	ProductName   string     `json:"product_name,omitempty"`
	ReportType    ReportType `json:"report_type"`
	UserRole      string     `json:"user_role"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (r ReportEvent) MarshalJSON() ([]byte, error) {
	rec := reportRecord{
		ID:         r.ID,
		ReportType: r.ReportType,
		UserRole:   r.UserRole,
		CreatedAt:  r.CreatedAt,
	}
	switch s := r.Subject.(type) {
	case CorrelatedSubject:
		id := s.ScanEventID
		rec.ScanEventID = &id
		rec.ProductNumber = s.ProductNumber
	case StandaloneSubject:
		rec.ProductNumber = s.ProductNumber
		rec.ProductName = s.ProductName
	}
	return json.Marshal(rec)
}

func (r *ReportEvent) UnmarshalJSON(data []byte) error {
	var rec reportRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	r.ID = rec.ID
	r.ReportType = rec.ReportType
	r.UserRole = rec.UserRole
	r.CreatedAt = rec.CreatedAt
	r.Subject = SubjectFor(rec.ScanEventID, rec.ProductNumber, rec.ProductName)
	return nil
}

// SubjectFor picks the subject variant from the flat storage columns.
func SubjectFor(scanEventID *string, productNumber, productName string) ReportSubject {
	if scanEventID != nil && *scanEventID != "" {
		return CorrelatedSubject{ScanEventID: *scanEventID, ProductNumber: productNumber}
	}
	return StandaloneSubject{ProductNumber: productNumber, ProductName: productName}
}
