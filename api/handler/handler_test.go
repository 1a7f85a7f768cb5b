package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/nemscan/backend/domain"
	"github.com/nemscan/backend/internal/infrastructure/monitor"
	"github.com/nemscan/backend/pkg/httpcontext"
	reportUC "github.com/nemscan/backend/usecase/report"
)

type fakeStatistics struct {
	perf      domain.ScanPerformance
	shares    []domain.GroupShare
	trends    []domain.ErrorRateTrend
	lowStock  []domain.LowStockProduct
	err       error
	from, to  *time.Time
	days      int
	threshold float64
	period    string
}

func (f *fakeStatistics) GetScanPerformance(_ context.Context, from, to *time.Time) (domain.ScanPerformance, error) {
	f.from, f.to = from, to
	return f.perf, f.err
}

func (f *fakeStatistics) GetProductGroupDistribution(_ context.Context, from, to *time.Time) ([]domain.GroupShare, error) {
	f.from, f.to = from, to
	return f.shares, f.err
}

func (f *fakeStatistics) GetProductsWithIncreasingErrorRate(_ context.Context, days int) ([]domain.ErrorRateTrend, error) {
	f.days = days
	return f.trends, f.err
}

func (f *fakeStatistics) GetMostScannedProduct(context.Context) (domain.TopScannedProduct, error) {
	return domain.NoActivity(), f.err
}

func (f *fakeStatistics) GetLowStockProducts(_ context.Context, minThreshold float64) ([]domain.LowStockProduct, error) {
	f.threshold = minThreshold
	return f.lowStock, f.err
}

func (f *fakeStatistics) GetScanActivity(_ context.Context, periodType string) (domain.ActivityReport, error) {
	f.period = periodType
	return domain.ActivityReport{PeriodType: periodType}, f.err
}

func (f *fakeStatistics) GetWeeklyScanHeatmap(_ context.Context, from, to *time.Time) ([]domain.HeatmapCell, error) {
	f.from, f.to = from, to
	return []domain.HeatmapCell{}, f.err
}

type response struct {
	Status string          `json:"status"`
	Code   string          `json:"code"`
	Data   json.RawMessage `json:"data"`
	Error  json.RawMessage `json:"error"`
}

func call(t *testing.T, h fasthttp.RequestHandler, uri string, prepare func(*fasthttp.RequestCtx)) (int, response) {
	t.Helper()
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI(uri)
	if prepare != nil {
		prepare(ctx)
	}
	h(ctx)

	var body response
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	return ctx.Response.StatusCode(), body
}

func newStatistics(svc *fakeStatistics) *StatisticsHandler {
	loc, err := time.LoadLocation("Europe/Copenhagen")
	if err != nil {
		loc = time.UTC
	}
	return NewStatisticsHandler(svc, StatisticsDefaults{Location: loc}, httpcontext.NewAdapter(time.Second), nil)
}

func TestScanPerformanceEmptyWindowIsNotFound(t *testing.T) {
	svc := &fakeStatistics{}
	status, body := call(t, newStatistics(svc).ScanPerformance, "/x?from=2024-03-01&to=2024-03-31T23:59:59Z", nil)

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body.Code)
	require.NotNil(t, svc.from)
	assert.Equal(t, time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC), svc.from.UTC())
	assert.Equal(t, time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC), svc.to.UTC())
}

func TestScanPerformanceSuccess(t *testing.T) {
	svc := &fakeStatistics{perf: domain.ScanPerformance{TotalScans: 10, SuccessfulScans: 8, FailedScans: 2, SuccessRate: 80}}
	status, body := call(t, newStatistics(svc).ScanPerformance, "/x", nil)

	assert.Equal(t, http.StatusOK, status)
	var perf domain.ScanPerformance
	require.NoError(t, json.Unmarshal(body.Data, &perf))
	assert.Equal(t, 80.0, perf.SuccessRate)
	assert.Nil(t, svc.from)
	assert.Nil(t, svc.to)
}

func TestInvalidQueryParameters(t *testing.T) {
	h := newStatistics(&fakeStatistics{})

	status, body := call(t, h.ScanPerformance, "/x?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID", body.Code)

	status, _ = call(t, h.IncreasingErrorRate, "/x?days=seven", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = call(t, h.LowStock, "/x?minThreshold=lots", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestLowStockRejectsNonFiniteThreshold(t *testing.T) {
	svc := &fakeStatistics{lowStock: []domain.LowStockProduct{{ProductNumber: "1"}}}
	h := newStatistics(svc)

	for _, raw := range []string{"NaN", "Inf", "%2BInf", "-Inf"} {
		status, body := call(t, h.LowStock, "/x?minThreshold="+raw, nil)
		assert.Equal(t, http.StatusBadRequest, status, raw)
		assert.Equal(t, "INVALID", body.Code)
	}
	assert.Zero(t, svc.threshold)
}

func TestQueryDefaults(t *testing.T) {
	svc := &fakeStatistics{
		trends:   []domain.ErrorRateTrend{{ProductNumber: "1", TrendChange: 10}},
		lowStock: []domain.LowStockProduct{{ProductNumber: "1"}},
	}
	h := newStatistics(svc)

	status, _ := call(t, h.IncreasingErrorRate, "/x", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 7, svc.days)

	status, _ = call(t, h.LowStock, "/x?minThreshold=25.5", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 25.5, svc.threshold)

	status, _ = call(t, h.Activity, "/x", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, domain.PeriodWeek, svc.period)
}

func TestEmptyAggregatesAreNotFound(t *testing.T) {
	h := newStatistics(&fakeStatistics{})
	for name, handle := range map[string]fasthttp.RequestHandler{
		"distribution": h.GroupDistribution,
		"error rate":   h.IncreasingErrorRate,
		"low stock":    h.LowStock,
	} {
		t.Run(name, func(t *testing.T) {
			status, _ := call(t, handle, "/x", nil)
			assert.Equal(t, http.StatusNotFound, status)
		})
	}
}

func TestTopProductSentinelIsOK(t *testing.T) {
	status, body := call(t, newStatistics(&fakeStatistics{}).TopProductToday, "/x", nil)

	assert.Equal(t, http.StatusOK, status)
	var top domain.TopScannedProduct
	require.NoError(t, json.Unmarshal(body.Data, &top))
	assert.Nil(t, top.ProductNumber)
	assert.Equal(t, domain.NoScansToday, top.ProductName)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrInvalidRange, http.StatusBadRequest, "INVALID"},
		{domain.ErrCatalogUnavailable, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "INTERNAL"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		status, body := call(t, newStatistics(&fakeStatistics{err: tc.err}).TopProductToday, "/x", nil)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, body.Code)
	}

	_, body := call(t, newStatistics(&fakeStatistics{err: errors.New("pq: password leaked")}).TopProductToday, "/x", nil)
	assert.JSONEq(t, `"internal error"`, string(body.Error))
}

type fakeReportService struct {
	input    reportUC.CreateInput
	patterns []domain.ErrorPattern
	count    int
	language string
	limit    int
	err      error
}

func (f *fakeReportService) CreateReport(_ context.Context, in reportUC.CreateInput) (*domain.ReportEvent, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ReportEvent{
		ID:         "r1",
		Subject:    domain.StandaloneSubject{ProductNumber: in.ProductNumber, ProductName: in.ProductName},
		ReportType: domain.ReportType(in.ReportType),
		UserRole:   in.UserRole,
	}, nil
}

func (f *fakeReportService) GetErrorPatterns(_ context.Context, language string) ([]domain.ErrorPattern, error) {
	f.language = language
	return f.patterns, f.err
}

func (f *fakeReportService) GetTopFailedProducts(_ context.Context, n int) ([]domain.FailedProduct, error) {
	f.limit = n
	return nil, f.err
}

func (f *fakeReportService) GetTodaysReportCount(context.Context) (int, error) {
	return f.count, f.err
}

func TestCreateReportUsesCallerRole(t *testing.T) {
	svc := &fakeReportService{}
	h := NewReportHandler(svc, httpcontext.NewAdapter(time.Second), nil)

	status, body := call(t, h.Create, "/api/v1/reports", func(ctx *fasthttp.RequestCtx) {
		ctx.Request.Header.SetMethod(fasthttp.MethodPost)
		ctx.Request.SetBodyString(`{"product_number":"100","product_name":"Milk","report_type":"ProductNotFound"}`)
		ctx.SetUserValue(string(httpcontext.KeyUserRole), domain.RoleCustomer)
	})

	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, domain.RoleCustomer, svc.input.UserRole)
	assert.Equal(t, "100", svc.input.ProductNumber)

	var created map[string]any
	require.NoError(t, json.Unmarshal(body.Data, &created))
	assert.Equal(t, "Milk", created["product_name"])
	assert.NotContains(t, created, "scan_event_id")
}

func TestCreateReportRejectsMalformedBody(t *testing.T) {
	h := NewReportHandler(&fakeReportService{}, nil, nil)
	status, body := call(t, h.Create, "/api/v1/reports", func(ctx *fasthttp.RequestCtx) {
		ctx.Request.SetBodyString(`{"product_number":`)
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID", body.Code)
}

func TestCreateReportConflict(t *testing.T) {
	h := NewReportHandler(&fakeReportService{err: domain.NewError(domain.ErrCodeConflict, "report already exists")}, nil, nil)
	status, _ := call(t, h.Create, "/api/v1/reports", func(ctx *fasthttp.RequestCtx) {
		ctx.Request.SetBodyString(`{"scan_event_id":"s1","report_type":"ProductNotFound"}`)
	})
	assert.Equal(t, http.StatusConflict, status)
}

func TestReportQueries(t *testing.T) {
	svc := &fakeReportService{
		patterns: []domain.ErrorPattern{{ReportType: "ProductNotFound", Count: 1, Percentage: 100}},
		count:    3,
	}
	h := NewReportHandler(svc, nil, nil)

	status, _ := call(t, h.ErrorPatterns, "/x?language=en", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "en", svc.language)

	status, _ = call(t, h.TopFailedProducts, "/x?limit=3", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 3, svc.limit)

	status, body := call(t, h.CountToday, "/x", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"total_reports_today":3}`, string(body.Data))
}

type staticStatus monitor.Status

func (s staticStatus) GetStatus() monitor.Status { return monitor.Status(s) }

func TestHealth(t *testing.T) {
	status, body := call(t, NewHealthHandler(staticStatus{EventStore: true}, nil, nil).Check, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", body.Status)

	status, body = call(t, NewHealthHandler(staticStatus{GroupCache: true}, nil, nil).Check, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "DEGRADED", body.Code)
}
