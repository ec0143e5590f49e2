package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lorekeep/lorekeep/internal/server/middleware"
	"github.com/lorekeep/lorekeep/pkg/knowledge"
	"github.com/lorekeep/lorekeep/pkg/logger"
	"github.com/lorekeep/lorekeep/pkg/store"
)

// GetNodeHandler returns a single knowledge node by ID.
func GetNodeHandler(c echo.Context) error {
	type getNodeParams struct {
		ID string `param:"id" validate:"required"`
	}

	type getNodeResponse struct {
		Message string          `json:"message"`
		Node    *knowledge.Node `json:"node,omitempty"`
	}

	params := new(getNodeParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getNodeResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getNodeResponse{
			Message: "Invalid request",
		})
	}

	app := c.(*middleware.AppContext).App
	node, err := app.Graph.GetNode(c.Request().Context(), params.ID)
	if err != nil {
		logger.Error("Failed to get node", "id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, getNodeResponse{
			Message: "Internal server error",
		})
	}
	if node == nil {
		return c.JSON(http.StatusNotFound, getNodeResponse{
			Message: "Node not found",
		})
	}

	return c.JSON(http.StatusOK, getNodeResponse{
		Message: "OK",
		Node:    node,
	})
}

// ListNodesHandler returns nodes filtered by kind, newest last.
func ListNodesHandler(c echo.Context) error {
	type listNodesParams struct {
		Kind  string `query:"kind" validate:"omitempty,oneof=decision pattern failure"`
		Limit int    `query:"limit" validate:"omitempty,gt=0,lte=500"`
	}

	type listNodesResponse struct {
		Message string            `json:"message"`
		Nodes   []*knowledge.Node `json:"nodes"`
	}

	params := new(listNodesParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, listNodesResponse{
			Message: "Invalid request",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, listNodesResponse{
			Message: "Invalid request",
		})
	}

	filter := store.NodeFilter{Limit: params.Limit}
	if params.Kind != "" {
		kind, err := knowledge.ParseKind(params.Kind)
		if err != nil {
			return c.JSON(http.StatusBadRequest, listNodesResponse{
				Message: "Invalid request",
			})
		}
		filter.Kind = kind
	}
	if filter.Limit == 0 {
		filter.Limit = 100
	}

	app := c.(*middleware.AppContext).App
	nodes, err := app.Graph.QueryNodes(c.Request().Context(), filter)
	if err != nil {
		logger.Error("Failed to list nodes", "err", err)
		return c.JSON(http.StatusInternalServerError, listNodesResponse{
			Message: "Internal server error",
		})
	}
	if nodes == nil {
		nodes = []*knowledge.Node{}
	}

	return c.JSON(http.StatusOK, listNodesResponse{
		Message: "OK",
		Nodes:   nodes,
	})
}
