package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lorekeep/lorekeep/internal/server/middleware"
	"github.com/lorekeep/lorekeep/pkg/logger"
)

// GetStatsHandler reports the size of the knowledge graph and the
// freshness of the vector index.
func GetStatsHandler(c echo.Context) error {
	type statsResponse struct {
		Message      string  `json:"message"`
		Nodes        int64   `json:"nodes"`
		Edges        int64   `json:"edges"`
		IndexedNodes int     `json:"indexed_nodes"`
		Connectivity float64 `json:"edges_per_node"`
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	nodes, err := app.Graph.CountNodes(ctx)
	if err != nil {
		logger.Error("Failed to count nodes", "err", err)
		return c.JSON(http.StatusInternalServerError, statsResponse{
			Message: "Internal server error",
		})
	}
	edges, err := app.Graph.CountEdges(ctx)
	if err != nil {
		logger.Error("Failed to count edges", "err", err)
		return c.JSON(http.StatusInternalServerError, statsResponse{
			Message: "Internal server error",
		})
	}

	resp := statsResponse{
		Message: "OK",
		Nodes:   nodes,
		Edges:   edges,
	}
	if app.Engine != nil {
		resp.IndexedNodes = app.Engine.IndexedNodes()
	}
	if nodes > 0 {
		resp.Connectivity = float64(edges) / float64(nodes)
	}

	return c.JSON(http.StatusOK, resp)
}
