package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/nemscan/backend/domain"
	"github.com/nemscan/backend/pkg/httpcontext"
)

const (
	msgNoScanData       = "No scanning data found in the selected interval"
	msgNoErrorRateRises = "No products with an increasing error rate found in the selected period"
	msgNoLowStock       = "No products with low stock found"
)

// StatisticsService is the read side consumed by StatisticsHandler.
type StatisticsService interface {
	GetScanPerformance(ctx context.Context, from, to *time.Time) (domain.ScanPerformance, error)
	GetProductGroupDistribution(ctx context.Context, from, to *time.Time) ([]domain.GroupShare, error)
	GetProductsWithIncreasingErrorRate(ctx context.Context, days int) ([]domain.ErrorRateTrend, error)
	GetMostScannedProduct(ctx context.Context) (domain.TopScannedProduct, error)
	GetLowStockProducts(ctx context.Context, minThreshold float64) ([]domain.LowStockProduct, error)
	GetScanActivity(ctx context.Context, periodType string) (domain.ActivityReport, error)
	GetWeeklyScanHeatmap(ctx context.Context, from, to *time.Time) ([]domain.HeatmapCell, error)
}

// StatisticsDefaults are the query defaults applied when a parameter is absent.
type StatisticsDefaults struct {
	ErrorRateDays     int
	LowStockThreshold float64
	Location          *time.Location
}

type StatisticsHandler struct {
	baseHandler
	svc      StatisticsService
	defaults StatisticsDefaults
}

func NewStatisticsHandler(svc StatisticsService, defaults StatisticsDefaults, adapter *httpcontext.Adapter, logger *zap.Logger) *StatisticsHandler {
	if defaults.ErrorRateDays <= 0 {
		defaults.ErrorRateDays = 7
	}
	if defaults.LowStockThreshold <= 0 {
		defaults.LowStockThreshold = 100
	}
	if defaults.Location == nil {
		defaults.Location = time.UTC
	}
	return &StatisticsHandler{
		baseHandler: newBaseHandler(adapter, logger),
		svc:         svc,
		defaults:    defaults,
	}
}

// @Summary Scan performance
// @Tags statistics
// @Router /api/v1/statistics/scans/performance [get]
func (h *StatisticsHandler) ScanPerformance(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	from, to, err := queryRange(ctx, h.defaults.Location)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	perf, err := h.svc.GetScanPerformance(stdCtx, from, to)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	if perf.TotalScans == 0 {
		h.respondNotFound(ctx, stdCtx, msgNoScanData)
		return
	}
	h.respondSuccess(ctx, stdCtx, http.StatusOK, perf)
}

// @Summary Product group distribution
// @Tags statistics
// @Router /api/v1/statistics/scans/product-group-distribution [get]
func (h *StatisticsHandler) GroupDistribution(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	from, to, err := queryRange(ctx, h.defaults.Location)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	shares, err := h.svc.GetProductGroupDistribution(stdCtx, from, to)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	if len(shares) == 0 {
		h.respondNotFound(ctx, stdCtx, msgNoScanData)
		return
	}
	h.respondSuccess(ctx, stdCtx, http.StatusOK, shares)
}

// @Summary Products with a rising error rate
// @Tags statistics
// @Router /api/v1/statistics/errors/increasing-error-rate [get]
func (h *StatisticsHandler) IncreasingErrorRate(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	days, err := queryInt(ctx, "days", h.defaults.ErrorRateDays)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	trends, err := h.svc.GetProductsWithIncreasingErrorRate(stdCtx, days)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	if len(trends) == 0 {
		h.respondNotFound(ctx, stdCtx, msgNoErrorRateRises)
		return
	}
	h.respondSuccess(ctx, stdCtx, http.StatusOK, trends)
}

// @Summary Most scanned product today
// @Tags statistics
// @Router /api/v1/statistics/scans/top-product-today [get]
func (h *StatisticsHandler) TopProductToday(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	top, err := h.svc.GetMostScannedProduct(stdCtx)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, stdCtx, http.StatusOK, top)
}

// @Summary Low stock products
// @Tags statistics
// @Router /api/v1/statistics/products/low-stock [get]
func (h *StatisticsHandler) LowStock(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	threshold, err := queryFloat(ctx, "minThreshold", h.defaults.LowStockThreshold)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	products, err := h.svc.GetLowStockProducts(stdCtx, threshold)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	if len(products) == 0 {
		h.respondNotFound(ctx, stdCtx, msgNoLowStock)
		return
	}
	h.respondSuccess(ctx, stdCtx, http.StatusOK, products)
}

// @Summary Scan activity heatmap or trend
// @Tags statistics
// @Router /api/v1/statistics/scans/activity [get]
func (h *StatisticsHandler) Activity(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	periodType := queryString(ctx, "periodType")
	if periodType == "" {
		periodType = domain.PeriodWeek
	}
	report, err := h.svc.GetScanActivity(stdCtx, periodType)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, stdCtx, http.StatusOK, report)
}

// @Summary Scan heatmap over a custom range
// @Tags statistics
// @Router /api/v1/statistics/scans/heatmap [get]
func (h *StatisticsHandler) Heatmap(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	from, to, err := queryRange(ctx, h.defaults.Location)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	cells, err := h.svc.GetWeeklyScanHeatmap(stdCtx, from, to)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, stdCtx, http.StatusOK, cells)
}
