package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/nemscan/backend/api/transport"
	"github.com/nemscan/backend/domain"
	"github.com/nemscan/backend/pkg/httpcontext"
	"github.com/nemscan/backend/pkg/logger"
)

type baseHandler struct {
	adapter *httpcontext.Adapter
	logger  *zap.Logger
}

func newBaseHandler(adapter *httpcontext.Adapter, log *zap.Logger) baseHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return baseHandler{adapter: adapter, logger: log}
}

func (h baseHandler) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if h.adapter != nil {
		return h.adapter.Attach(ctx)
	}
	return context.WithCancel(context.Background())
}

func (h baseHandler) respondJSON(ctx *fasthttp.RequestCtx, status int, payload transport.Envelope) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	body, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
		ctx.SetStatusCode(http.StatusInternalServerError)
		return
	}
	ctx.SetBody(body)
}

func (h baseHandler) respondSuccess(ctx *fasthttp.RequestCtx, std context.Context, status int, data interface{}) {
	h.respondJSON(ctx, status, transport.NewSuccess(data, transport.NewMeta(logger.RequestID(std))))
}

// respondNotFound reports an empty aggregate the way clients expect it: as a
// 404 with an explanatory message.
func (h baseHandler) respondNotFound(ctx *fasthttp.RequestCtx, std context.Context, message string) {
	h.respondJSON(ctx, http.StatusNotFound,
		transport.NewError(string(domain.ErrCodeNotFound), message, transport.NewMeta(logger.RequestID(std))))
}

func (h baseHandler) respondError(ctx *fasthttp.RequestCtx, std context.Context, err error) {
	status, code := mapError(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.WithRequestID(std, h.logger).Error("request failed",
			zap.String("path", string(ctx.Path())),
			zap.Error(err))
		if status == http.StatusInternalServerError {
			message = "internal error"
		}
	}
	h.respondJSON(ctx, status, transport.NewError(code, message, transport.NewMeta(logger.RequestID(std))))
}

func mapError(err error) (int, string) {
	switch {
	case domain.IsDomainError(err, domain.ErrCodeUnauthorized):
		return http.StatusUnauthorized, string(domain.ErrCodeUnauthorized)
	case domain.IsDomainError(err, domain.ErrCodeForbidden):
		return http.StatusForbidden, string(domain.ErrCodeForbidden)
	case domain.IsDomainError(err, domain.ErrCodeInvalid):
		return http.StatusBadRequest, string(domain.ErrCodeInvalid)
	case domain.IsDomainError(err, domain.ErrCodeNotFound):
		return http.StatusNotFound, string(domain.ErrCodeNotFound)
	case domain.IsDomainError(err, domain.ErrCodeConflict):
		return http.StatusConflict, string(domain.ErrCodeConflict)
	case domain.IsDomainError(err, domain.ErrCodeUpstreamUnavailable):
		return http.StatusBadGateway, string(domain.ErrCodeUpstreamUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, string(domain.ErrCodeInternal)
	default:
		return http.StatusInternalServerError, string(domain.ErrCodeInternal)
	}
}

func queryString(ctx *fasthttp.RequestCtx, key string) string {
	return strings.TrimSpace(string(ctx.QueryArgs().Peek(key)))
}

// queryInt parses an integer query parameter, returning fallback when absent.
func queryInt(ctx *fasthttp.RequestCtx, key string, fallback int) (int, error) {
	raw := queryString(ctx, key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.WrapError(domain.ErrCodeInvalid, "invalid "+key, err)
	}
	return v, nil
}

func queryFloat(ctx *fasthttp.RequestCtx, key string, fallback float64) (float64, error) {
	raw := queryString(ctx, key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, domain.WrapError(domain.ErrCodeInvalid, "invalid "+key, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, domain.NewError(domain.ErrCodeInvalid, "invalid "+key)
	}
	return v, nil
}

func queryRange(ctx *fasthttp.RequestCtx, loc *time.Location) (from, to *time.Time, err error) {
	if from, err = transport.ParseTime(queryString(ctx, "from"), loc); err != nil {
		return nil, nil, err
	}
	if to, err = transport.ParseTime(queryString(ctx, "to"), loc); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}
