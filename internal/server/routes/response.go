package routes

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/OFFIS-RIT/evidence-graph/pkg/common"
	"github.com/OFFIS-RIT/evidence-graph/pkg/logger"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

type errorMeta struct {
	LatencyMs int64 `json:"latencyMs"`
}

type errorResponse struct {
	Error   string     `json:"error"`
	Message string     `json:"message"`
	Meta    *errorMeta `json:"meta,omitempty"`
}

func sinceMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

// bindAndValidate decodes the body into data and runs the struct validator.
// It writes the 400 response itself and reports whether the handler may
// continue.
func bindAndValidate(c echo.Context, data any) (bool, error) {
	if err := c.Bind(data); err != nil {
		return false, c.JSON(http.StatusBadRequest, errorResponse{
			Error:   "Invalid request",
			Message: "request body is not valid JSON",
		})
	}
	if err := c.Validate(data); err != nil {
		return false, c.JSON(http.StatusBadRequest, errorResponse{
			Error:   "Invalid request",
			Message: validationMessage(err),
		})
	}
	return true, nil
}

// validationMessage names the first offending field.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s must not be empty", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// failure maps an error of the graph engine onto a status code and body.
func failure(c echo.Context, start time.Time, err error) error {
	status := http.StatusInternalServerError
	title := "Internal server error"
	switch {
	case errors.Is(err, common.ErrValidation):
		status, title = http.StatusBadRequest, "Invalid request"
	case errors.Is(err, common.ErrNotExpandable):
		status, title = http.StatusBadRequest, "Not expandable"
	case errors.Is(err, common.ErrNotFound):
		status, title = http.StatusNotFound, "Not found"
	case errors.Is(err, common.ErrConfiguration):
		title = "Service not configured"
	case errors.Is(err, common.ErrCollaborator):
		title = "Upstream failure"
	}
	if status >= http.StatusInternalServerError {
		logger.Error("[Server] Request failed", "path", c.Path(), "err", err)
	}
	return c.JSON(status, errorResponse{
		Error:   title,
		Message: errorMessage(err),
		Meta:    &errorMeta{LatencyMs: sinceMs(start)},
	})
}

// errorMessage drops the sentinel prefix so the message reads like
// "content must not be empty".
func errorMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{common.ErrValidation, common.ErrNotExpandable, common.ErrNotFound} {
		msg = strings.TrimPrefix(msg, sentinel.Error()+": ")
	}
	return msg
}
