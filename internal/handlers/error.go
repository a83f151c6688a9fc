package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/confessions/internal/channels"
	"github.com/memohai/confessions/internal/reconcile"
	"github.com/memohai/confessions/internal/settings"
	"github.com/memohai/confessions/internal/store"
)

// ErrorResponse is the standard API error body (message only).
type ErrorResponse struct {
	Message string `json:"message"`
}

// httpError maps service errors to HTTP errors: invalid input is 400, a
// running sweep 409 and store failures 503, which callers may retry.
func httpError(err error) error {
	switch {
	case errors.Is(err, store.ErrInvalidKey),
		errors.Is(err, channels.ErrInvalidChannel),
		errors.Is(err, channels.ErrInvalidTypeValue),
		errors.Is(err, settings.ErrPrefaceTooLong),
		errors.Is(err, settings.ErrInvalidAnonID):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, reconcile.ErrSweepRunning):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, channels.ErrPersistence):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
