package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lorekeep/lorekeep/internal/server/middleware"
	"github.com/lorekeep/lorekeep/pkg/logger"
	"github.com/lorekeep/lorekeep/pkg/search"
)

// SearchHandler answers a natural language query over the knowledge
// graph through the hybrid retrieval engine.
func SearchHandler(c echo.Context) error {
	type searchRequest struct {
		Query string `json:"query" validate:"required"`
	}

	type searchResponse struct {
		Message string          `json:"message"`
		Results []search.Result `json:"results,omitempty"`
		Metrics *search.Metrics `json:"metrics,omitempty"`
	}

	data := new(searchRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, searchResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, searchResponse{
			Message: "Invalid request body",
		})
	}

	engine := c.(*middleware.AppContext).App.Engine
	if engine == nil {
		return c.JSON(http.StatusServiceUnavailable, searchResponse{
			Message: "Search is not available",
		})
	}

	ctx := c.Request().Context()
	results, metrics, err := engine.Search(ctx, data.Query)
	if err != nil {
		logger.Error("[Search] query failed", "err", err)
		return c.JSON(http.StatusInternalServerError, searchResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, searchResponse{
		Message: "OK",
		Results: results,
		Metrics: metrics,
	})
}
