package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lorekeep/lorekeep/internal/server/middleware"
	"github.com/lorekeep/lorekeep/internal/storage"
	"github.com/lorekeep/lorekeep/pkg/logger"
)

// ListReportsHandler lists archived extraction reports.
func ListReportsHandler(c echo.Context) error {
	type listReportsResponse struct {
		Message string   `json:"message"`
		Keys    []string `json:"keys"`
	}

	app := c.(*middleware.AppContext).App
	if app.S3 == nil {
		return c.JSON(http.StatusServiceUnavailable, listReportsResponse{
			Message: "Report archive is not configured",
		})
	}

	keys, err := storage.ListReports(c.Request().Context(), app.S3)
	if err != nil {
		logger.Error("Failed to list reports", "err", err)
		return c.JSON(http.StatusInternalServerError, listReportsResponse{
			Message: "Internal server error",
		})
	}
	if keys == nil {
		keys = []string{}
	}

	return c.JSON(http.StatusOK, listReportsResponse{
		Message: "OK",
		Keys:    keys,
	})
}

// GetReportHandler downloads one archived extraction report.
func GetReportHandler(c echo.Context) error {
	type getReportParams struct {
		Key string `query:"key" validate:"required"`
	}

	params := new(getReportParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request"})
	}

	app := c.(*middleware.AppContext).App
	if app.S3 == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"message": "Report archive is not configured"})
	}

	raw, err := storage.GetFile(c.Request().Context(), app.S3, params.Key)
	if err != nil {
		logger.Error("Failed to get report", "key", params.Key, "err", err)
		return c.JSON(http.StatusNotFound, map[string]string{"message": "Report not found"})
	}

	return c.Blob(http.StatusOK, "application/json", *raw)
}
