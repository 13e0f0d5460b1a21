package middleware

import (
	"github.com/OFFIS-RIT/evidence-graph/pkg/graph"
	"github.com/OFFIS-RIT/evidence-graph/pkg/progress"

	"github.com/labstack/echo/v4"
)

// App holds the long lived services shared by every request.
type App struct {
	Graph   *graph.GraphClient
	Tracker *progress.Tracker
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
