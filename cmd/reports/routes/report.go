package routes

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/opensafely-core/reports/cmd/reports/container"
	"github.com/opensafely-core/reports/cmd/reports/middleware"
)

// RegisterReportRoutes registers all report-related routes
func RegisterReportRoutes(e *echo.Echo, c *container.Container) {
	h := c.ReportHandler
	adminToken := c.Components.Config.Service.AdminToken

	// Public report pages. Fetching a report costs two or three upstream
	// calls, so the render route is rate limited per client.
	pages := e.Group("/reports")
	pages.Use(middleware.CheckAdmin(adminToken))
	pages.Use(echomiddleware.RateLimiter(echomiddleware.NewRateLimiterMemoryStore(rate.Limit(20))))
	pages.GET("/:slug", h.RenderReport) // GET /reports/my-report?force-update

	// JSON API
	api := e.Group("/api/v1/reports")
	api.Use(middleware.CheckAdmin(adminToken))
	{
		api.GET("", h.ListReports)     // GET /api/v1/reports
		api.GET("/:slug", h.GetReport) // GET /api/v1/reports/my-report
	}

	// Mutating routes require the admin token
	admin := e.Group("/api/v1/reports", middleware.RequireAdmin(adminToken))
	{
		admin.POST("", h.CreateReport)                // POST /api/v1/reports
		admin.PATCH("/:slug", h.PatchReport)          // PATCH /api/v1/reports/my-report
		admin.DELETE("/:slug", h.DeleteReport)        // DELETE /api/v1/reports/my-report
		admin.POST("/:slug/refresh", h.RefreshReport) // POST /api/v1/reports/my-report/refresh
	}
}
