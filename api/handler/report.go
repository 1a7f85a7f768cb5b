package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/nemscan/backend/api/transport"
	"github.com/nemscan/backend/domain"
	"github.com/nemscan/backend/pkg/httpcontext"
	reportUC "github.com/nemscan/backend/usecase/report"
)

const msgNoReports = "No reports found"

// ReportService is the report use case consumed by ReportHandler.
type ReportService interface {
	CreateReport(ctx context.Context, in reportUC.CreateInput) (*domain.ReportEvent, error)
	GetErrorPatterns(ctx context.Context, language string) ([]domain.ErrorPattern, error)
	GetTopFailedProducts(ctx context.Context, n int) ([]domain.FailedProduct, error)
	GetTodaysReportCount(ctx context.Context) (int, error)
}

type ReportHandler struct {
	baseHandler
	svc ReportService
}

func NewReportHandler(svc ReportService, adapter *httpcontext.Adapter, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		baseHandler: newBaseHandler(adapter, logger),
		svc:         svc,
	}
}

// @Summary Create report
// @Tags reports
// @Router /api/v1/reports [post]
func (h *ReportHandler) Create(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	var req transport.CreateReportRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondError(ctx, stdCtx, domain.WrapError(domain.ErrCodeInvalid, domain.ErrInvalidPayload.Message, err))
		return
	}

	report, err := h.svc.CreateReport(stdCtx, reportUC.CreateInput{
		ScanEventID:   req.ScanEventID,
		ProductNumber: req.ProductNumber,
		ProductName:   req.ProductName,
		ReportType:    req.ReportType,
		UserRole:      httpcontext.UserRole(stdCtx),
	})
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, stdCtx, http.StatusCreated, report)
}

// @Summary Report type distribution
// @Tags reports
// @Router /api/v1/reports/error-patterns [get]
func (h *ReportHandler) ErrorPatterns(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	patterns, err := h.svc.GetErrorPatterns(stdCtx, queryString(ctx, "language"))
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	if len(patterns) == 0 {
		h.respondNotFound(ctx, stdCtx, msgNoReports)
		return
	}
	h.respondSuccess(ctx, stdCtx, http.StatusOK, patterns)
}

// @Summary Most reported products
// @Tags reports
// @Router /api/v1/reports/top-failed-products [get]
func (h *ReportHandler) TopFailedProducts(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	limit, err := queryInt(ctx, "limit", 0)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	products, err := h.svc.GetTopFailedProducts(stdCtx, limit)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	if len(products) == 0 {
		h.respondNotFound(ctx, stdCtx, msgNoReports)
		return
	}
	h.respondSuccess(ctx, stdCtx, http.StatusOK, products)
}

type reportCount struct {
	TotalReportsToday int `json:"total_reports_today"`
}

// @Summary Reports created today
// @Tags reports
// @Router /api/v1/reports/count-today [get]
func (h *ReportHandler) CountToday(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	count, err := h.svc.GetTodaysReportCount(stdCtx)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, stdCtx, http.StatusOK, reportCount{TotalReportsToday: count})
}
