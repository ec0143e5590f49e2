package server

import (
	"github.com/labstack/echo/v4"

	"github.com/lorekeep/lorekeep/internal/server/middleware"
	"github.com/lorekeep/lorekeep/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Retrieval routes
	apiRoutes.POST("/search", routes.SearchHandler, middleware.RequirePermission("graph.search"))
	apiRoutes.GET("/stats", routes.GetStatsHandler, middleware.RequirePermission("graph.view:stats"))

	// Node routes
	apiRoutes.GET("/nodes", routes.ListNodesHandler, middleware.RequirePermission("node.view"))
	apiRoutes.GET("/nodes/:id", routes.GetNodeHandler, middleware.RequirePermission("node.view"))

	// Ingestion and extraction routes
	apiRoutes.POST("/ingest", routes.IngestHandler, middleware.RequirePermission("node.create"))
	apiRoutes.POST("/extract", routes.TriggerExtractHandler, middleware.RequirePermission("graph.extract"))

	// Report archive routes
	apiRoutes.GET("/reports", routes.ListReportsHandler, middleware.RequirePermission("report.list"))
	apiRoutes.GET("/reports/download", routes.GetReportHandler, middleware.RequirePermission("report.list"))
}
