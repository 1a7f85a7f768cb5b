package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/nemscan/backend/api/transport"
	"github.com/nemscan/backend/internal/infrastructure/monitor"
	"github.com/nemscan/backend/pkg/httpcontext"
	"github.com/nemscan/backend/pkg/logger"
)

// StatusSource reports the last dependency check.
type StatusSource interface {
	GetStatus() monitor.Status
}

type HealthHandler struct {
	baseHandler
	monitor StatusSource
}

func NewHealthHandler(mon StatusSource, adapter *httpcontext.Adapter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		baseHandler: newBaseHandler(adapter, logger),
		monitor:     mon,
	}
}

// @Summary Health check
// @Tags health
// @Router /health [get]
func (h *HealthHandler) Check(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	status := h.monitor.GetStatus()
	if status.Healthy() {
		h.respondSuccess(ctx, stdCtx, http.StatusOK, status)
		return
	}
	h.respondJSON(ctx, http.StatusServiceUnavailable,
		transport.NewError("DEGRADED", status, transport.NewMeta(logger.RequestID(stdCtx))))
}
