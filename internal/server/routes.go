package server

import (
	"github.com/OFFIS-RIT/evidence-graph/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	// Graph build and progress routes
	e.POST("/graph", routes.BuildGraphHandler)
	e.GET("/progress/:jobId", routes.GetProgressHandler)
	e.GET("/progress", routes.GetProgressHandler)
	e.DELETE("/progress/:jobId", routes.DeleteProgressHandler)

	// Expansion routes
	e.POST("/expand/source", routes.ExpandSourceHandler)
	e.POST("/expand/reasoning", routes.ExpandReasoningHandler)

	// Density routes
	e.GET("/density/:level", routes.GetDensityHandler)
	e.POST("/density/infer", routes.InferDensityHandler)
}
