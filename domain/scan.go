package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleEmployee = "employee"
	RoleCustomer = "customer"
)

// OtherGroup is the bucket used for scans without a product group and for collapsed tails.
const OtherGroup = "Other"

// ScanEvent records one barcode lookup attempt. Scan events are append-only.
type ScanEvent struct {
	ID                   string           `json:"id"`
	ProductNumber        string           `json:"product_number"`
	ProductName          string           `json:"product_name"`
	ProductGroup         *string          `json:"product_group,omitempty"`
	CurrentSalesPrice    *decimal.Decimal `json:"current_sales_price,omitempty"`
	CurrentStockQuantity *decimal.Decimal `json:"current_stock_quantity,omitempty"`
	Success              bool             `json:"success"`
	UserRole             string           `json:"user_role"`
	Timestamp            time.Time        `json:"timestamp"`
}

// GroupLabel returns the product group, or OtherGroup when the scan carries none.
func (s *ScanEvent) GroupLabel() string {
	if s == nil || s.ProductGroup == nil || strings.TrimSpace(*s.ProductGroup) == "" {
		return OtherGroup
	}
	return *s.ProductGroup
}

// Normalize stores the timestamp in UTC so windows compare correctly across offsets.
func (s *ScanEvent) Normalize() {
	if s == nil {
		return
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	s.Timestamp = s.Timestamp.UTC()
}

// ValidRole reports whether role is one of the known user roles.
func ValidRole(role string) bool {
	return role == RoleEmployee || role == RoleCustomer
}
