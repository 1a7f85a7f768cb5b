package router

import (
	"github.com/fasthttp/router"

	apiHandler "github.com/nemscan/backend/api/handler"
	"github.com/nemscan/backend/domain"
	"github.com/nemscan/backend/internal/middleware"
)

type Handlers struct {
	Statistics *apiHandler.StatisticsHandler
	Report     *apiHandler.ReportHandler
	Health     *apiHandler.HealthHandler
}

func New(handlers Handlers, auth middleware.Middleware) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)

	employee := []middleware.Middleware{auth, middleware.RequireRoles(domain.RoleEmployee)}
	anyone := []middleware.Middleware{auth, middleware.RequireRoles(domain.RoleEmployee, domain.RoleCustomer)}

	stats := r.Group("/api/v1/statistics")
	stats.GET("/scans/performance", middleware.Chain(handlers.Statistics.ScanPerformance, employee...))
	stats.GET("/scans/product-group-distribution", middleware.Chain(handlers.Statistics.GroupDistribution, employee...))
	stats.GET("/errors/increasing-error-rate", middleware.Chain(handlers.Statistics.IncreasingErrorRate, employee...))
	stats.GET("/scans/top-product-today", middleware.Chain(handlers.Statistics.TopProductToday, employee...))
	stats.GET("/products/low-stock", middleware.Chain(handlers.Statistics.LowStock, employee...))
	stats.GET("/scans/activity", middleware.Chain(handlers.Statistics.Activity, employee...))
	stats.GET("/scans/heatmap", middleware.Chain(handlers.Statistics.Heatmap, employee...))

	reports := r.Group("/api/v1/reports")
	reports.POST("", middleware.Chain(handlers.Report.Create, anyone...))
	reports.GET("/error-patterns", middleware.Chain(handlers.Report.ErrorPatterns, employee...))
	reports.GET("/top-failed-products", middleware.Chain(handlers.Report.TopFailedProducts, employee...))
	reports.GET("/count-today", middleware.Chain(handlers.Report.CountToday, employee...))

	return r
}
