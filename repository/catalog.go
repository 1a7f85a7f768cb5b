package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/nemscan/backend/domain"
)

// ProductCatalog is the external product catalog consulted for stock levels.
type ProductCatalog interface {
	ListLowStockCandidates(ctx context.Context, threshold decimal.Decimal) ([]domain.CatalogProduct, error)
	ResolveGroupName(ctx context.Context, groupID string) (string, error)
}

// GroupNameCache stores resolved product group names.
type GroupNameCache interface {
	Get(ctx context.Context, groupID string) (string, bool, error)
	Set(ctx context.Context, groupID, name string) error
}
