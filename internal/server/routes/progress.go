package routes

import (
	"net/http"
	"strings"

	"github.com/OFFIS-RIT/evidence-graph/internal/server/middleware"
	"github.com/OFFIS-RIT/evidence-graph/pkg/progress"

	"github.com/labstack/echo/v4"
)

func GetProgressHandler(c echo.Context) error {
	type progressResponse struct {
		JobID    string         `json:"jobId"`
		Progress int            `json:"progress"`
		Status   string         `json:"status"`
		Phase    progress.Phase `json:"phase"`
	}

	jobID := strings.TrimSpace(c.Param("jobId"))
	if jobID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request", Message: "jobId must not be empty"})
	}

	st, ok := c.(*middleware.AppContext).App.Tracker.GetProgress(jobID)
	if !ok {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "Not found", Message: "job not found"})
	}

	return c.JSON(http.StatusOK, progressResponse{
		JobID:    st.JobID,
		Progress: st.Progress,
		Status:   st.Status,
		Phase:    st.Phase,
	})
}

func DeleteProgressHandler(c echo.Context) error {
	jobID := strings.TrimSpace(c.Param("jobId"))
	if jobID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request", Message: "jobId must not be empty"})
	}

	c.(*middleware.AppContext).App.Tracker.RemoveJob(jobID)
	return c.NoContent(http.StatusNoContent)
}
