package routes

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/lorekeep/lorekeep/internal/queue"
	"github.com/lorekeep/lorekeep/internal/server/middleware"
	"github.com/lorekeep/lorekeep/pkg/logger"
)

// TriggerExtractHandler enqueues a relationship extraction run. The run
// itself happens on a worker; the response only carries the correlation
// ID for matching the completion event.
func TriggerExtractHandler(c echo.Context) error {
	type extractRequest struct {
		Mode              string  `json:"mode" validate:"omitempty,oneof=full incremental"`
		SemanticThreshold float64 `json:"semantic_threshold" validate:"omitempty,gt=0,lte=1"`
		EnhanceWithLLM    bool    `json:"enhance_with_llm"`
	}

	type extractResponse struct {
		Message       string `json:"message"`
		CorrelationID string `json:"correlation_id,omitempty"`
	}

	data := new(extractRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, extractResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, extractResponse{
			Message: "Invalid request body",
		})
	}

	correlationID, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, extractResponse{
			Message: "Internal server error",
		})
	}

	msg := queue.ExtractJobMsg{
		Mode:              data.Mode,
		SemanticThreshold: data.SemanticThreshold,
		EnhanceWithLLM:    data.EnhanceWithLLM,
		CorrelationID:     correlationID,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, extractResponse{
			Message: "Internal server error",
		})
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishFIFO(ch, queue.ExtractQueue, payload); err != nil {
		logger.Error("Failed to publish to extract_queue", "err", err)
		return c.JSON(http.StatusInternalServerError, extractResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusAccepted, extractResponse{
		Message:       "Extraction queued",
		CorrelationID: correlationID,
	})
}
