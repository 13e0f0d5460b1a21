package routes

import (
	"net/http"
	"time"

	"github.com/OFFIS-RIT/evidence-graph/internal/server/middleware"
	"github.com/OFFIS-RIT/evidence-graph/pkg/density"
	"github.com/OFFIS-RIT/evidence-graph/pkg/graph"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// BuildGraphHandler answers a question and returns the evidence graph. The
// build runs within the request; clients poll /progress/:jobId meanwhile,
// which is why they may choose the job id themselves.
func BuildGraphHandler(c echo.Context) error {
	type buildGraphData struct {
		Question     string `json:"question" validate:"required,notblank"`
		JobID        string `json:"jobId"`
		DensityLevel string `json:"densityLevel"`
	}

	type buildGraphResponse struct {
		JobID        string         `json:"jobId"`
		DensityLevel density.Level  `json:"densityLevel"`
		Density      density.Config `json:"density"`
		Graph        *graph.Graph   `json:"graph"`
		Meta         graph.Stats    `json:"meta"`
	}

	start := time.Now()
	data := new(buildGraphData)
	if ok, err := bindAndValidate(c, data); !ok {
		return err
	}

	app := c.(*middleware.AppContext).App
	jobID := data.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	app.Tracker.CreateJob(jobID)

	res, err := app.Graph.BuildEvidenceGraph(c.Request().Context(), graph.BuildRequest{
		JobID:        jobID,
		Question:     data.Question,
		DensityLevel: data.DensityLevel,
	})
	if err != nil {
		return failure(c, start, err)
	}

	return c.JSON(http.StatusOK, buildGraphResponse{
		JobID:        jobID,
		DensityLevel: res.Level,
		Density:      res.Density,
		Graph:        res.Graph,
		Meta:         res.Stats,
	})
}
