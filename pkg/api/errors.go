package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/callscope/callscope/pkg/lifecycle"
	"github.com/callscope/callscope/pkg/warehouse"
)

// mapServiceError maps service-layer errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	var validErr *lifecycle.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	var transErr *lifecycle.TransitionError
	if errors.As(err, &transErr) {
		return echo.NewHTTPError(http.StatusConflict, transErr.Error())
	}
	if errors.Is(err, warehouse.ErrNotFound) || errors.Is(err, lifecycle.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if errors.Is(err, lifecycle.ErrAlreadyExists) {
		return echo.NewHTTPError(http.StatusConflict, "resource already exists")
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
