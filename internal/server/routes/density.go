package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/evidence-graph/pkg/density"

	"github.com/labstack/echo/v4"
)

type densityResponse struct {
	Level   density.Level  `json:"level"`
	Score   *int           `json:"score,omitempty"`
	Density density.Config `json:"density"`
}

// GetDensityHandler resolves a level name. Unknown names resolve to the
// default level.
func GetDensityHandler(c echo.Context) error {
	level := density.ParseLevel(c.Param("level"))
	return c.JSON(http.StatusOK, densityResponse{
		Level:   level,
		Density: density.ForLevel(level),
	})
}

func InferDensityHandler(c echo.Context) error {
	type inferDensityData struct {
		Question         string `json:"question" validate:"required,notblank"`
		AnswerBlockCount *int   `json:"answerBlockCount" validate:"omitempty,min=0"`
	}

	data := new(inferDensityData)
	if ok, err := bindAndValidate(c, data); !ok {
		return err
	}

	level := density.Infer(data.Question, data.AnswerBlockCount)
	score := density.Score(data.Question, data.AnswerBlockCount)
	return c.JSON(http.StatusOK, densityResponse{
		Level:   level,
		Score:   &score,
		Density: density.ForLevel(level),
	})
}
