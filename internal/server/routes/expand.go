package routes

import (
	"maps"
	"net/http"
	"time"

	"github.com/OFFIS-RIT/evidence-graph/internal/server/middleware"
	"github.com/OFFIS-RIT/evidence-graph/pkg/common"
	"github.com/OFFIS-RIT/evidence-graph/pkg/density"
	"github.com/OFFIS-RIT/evidence-graph/pkg/graph"

	"github.com/labstack/echo/v4"
)

func ExpandSourceHandler(c echo.Context) error {
	type expandSourceData struct {
		Title          string   `json:"title" validate:"required,notblank"`
		URL            string   `json:"url" validate:"required,notblank"`
		Content        string   `json:"content" validate:"required,notblank"`
		SourceID       string   `json:"sourceId"`
		SourceNodeID   string   `json:"sourceNodeId"`
		CitingBlockIDs []string `json:"citingBlockIds"`
		DensityLevel   string   `json:"densityLevel"`
	}

	type expandSourceMeta struct {
		LatencyMs       int64         `json:"latencyMs"`
		DensityLevel    density.Level `json:"densityLevel"`
		SourceTitle     string        `json:"sourceTitle"`
		SourceURL       string        `json:"sourceUrl"`
		DroppedConcepts int           `json:"droppedConcepts"`
	}

	type expandSourceResponse struct {
		Concepts []common.Concept `json:"concepts"`
		Nodes    []graph.Node     `json:"nodes"`
		Edges    []graph.Edge     `json:"edges"`
		Meta     expandSourceMeta `json:"meta"`
	}

	start := time.Now()
	data := new(expandSourceData)
	if ok, err := bindAndValidate(c, data); !ok {
		return err
	}

	app := c.(*middleware.AppContext).App
	exp, err := app.Graph.ExpandSource(c.Request().Context(), graph.SourceExpansionRequest{
		SourceNodeID: data.SourceNodeID,
		Source: common.Source{
			ID:       data.SourceID,
			Title:    data.Title,
			URL:      data.URL,
			FullText: data.Content,
		},
		CitingBlockIDs: data.CitingBlockIDs,
		DensityLevel:   data.DensityLevel,
	})
	if err != nil {
		return failure(c, start, err)
	}

	return c.JSON(http.StatusOK, expandSourceResponse{
		Concepts: exp.Concepts,
		Nodes:    exp.Nodes,
		Edges:    exp.Edges,
		Meta: expandSourceMeta{
			LatencyMs:       sinceMs(start),
			DensityLevel:    exp.Level,
			SourceTitle:     data.Title,
			SourceURL:       data.URL,
			DroppedConcepts: exp.Dropped,
		},
	})
}

func ExpandReasoningHandler(c echo.Context) error {
	type expandReasoningData struct {
		Title string `json:"title"`
		Text  string `json:"text" validate:"required,notblank"`
	}

	type expandReasoningResponse struct {
		ExpandedText string         `json:"expandedText"`
		Meta         map[string]any `json:"meta"`
	}

	start := time.Now()
	data := new(expandReasoningData)
	if ok, err := bindAndValidate(c, data); !ok {
		return err
	}

	app := c.(*middleware.AppContext).App
	res, err := app.Graph.ExpandReasoning(c.Request().Context(), data.Title, data.Text)
	if err != nil {
		return failure(c, start, err)
	}

	meta := make(map[string]any, len(res.Meta)+1)
	maps.Copy(meta, res.Meta)
	meta["latencyMs"] = sinceMs(start)

	return c.JSON(http.StatusOK, expandReasoningResponse{
		ExpandedText: res.ExpandedText,
		Meta:         meta,
	})
}
