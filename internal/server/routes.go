package server

import (
	"net/http"

	"github.com/spacebio/knowledge-engine/backend/internal/server/middleware"
	"github.com/spacebio/knowledge-engine/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(e *echo.Echo, reg *prometheus.Registry) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	if reg != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	apiRoutes := e.Group("/api")

	// Graph routes
	apiRoutes.GET("/graph/publication", routes.GetPublicationSubgraphHandler)
	apiRoutes.GET("/graph/publication/*", routes.GetPublicationSubgraphHandler)
	apiRoutes.GET("/graph/stats", routes.GetGraphStatsHandler)

	// Analytics routes
	apiRoutes.GET("/analytics/top-organizations", routes.GetTopOrganizationsHandler)
	apiRoutes.GET("/analytics/top-authors", routes.GetTopAuthorsHandler)
	apiRoutes.GET("/analytics/top-locations", routes.GetTopLocationsHandler)

	// Retrieval routes
	apiRoutes.POST("/keywords", routes.ExtractKeywordsHandler)
	apiRoutes.POST("/search", routes.SearchPublicationsHandler)

	// Chat routes
	apiRoutes.POST("/chat", routes.ChatHandler)
	apiRoutes.POST("/chat/stream", routes.ChatStreamHandler)

	// Admin routes
	adminRoutes := apiRoutes.Group("/admin", middleware.AuthMiddleware)
	adminRoutes.POST("/ingest", routes.EnqueueIngestHandler, middleware.RequirePermission(middleware.PermissionIngest))
	adminRoutes.POST("/reset", routes.ResetGraphHandler, middleware.RequirePermission(middleware.PermissionReset))
}
