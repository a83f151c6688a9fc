package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/confessions/internal/reconcile"
)

type ReconcileHandler struct {
	reconciler *reconcile.Reconciler
	logger     *slog.Logger
}

func NewReconcileHandler(log *slog.Logger, reconciler *reconcile.Reconciler) *ReconcileHandler {
	return &ReconcileHandler{
		reconciler: reconciler,
		logger:     log.With(slog.String("handler", "reconcile")),
	}
}

func (h *ReconcileHandler) Register(e *echo.Echo) {
	e.GET("/reconcile/sweep", h.Status)
	e.POST("/reconcile/sweep", h.Sweep)
	e.DELETE("/communities/:community_id/channels/:channel_id/config", h.RemoveChannel)
}

// SweepStatusResponse reports whether a sweep is in progress.
type SweepStatusResponse struct {
	Running bool `json:"running"`
}

// Status godoc
// @Summary Report whether a reconciliation sweep is running
// @Tags reconcile
// @Success 200 {object} SweepStatusResponse
// @Router /reconcile/sweep [get]
func (h *ReconcileHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, SweepStatusResponse{Running: h.reconciler.Running()})
}

// Sweep godoc
// @Summary Run a reconciliation sweep now
// @Description Checks every stored community and channel against Discord and removes confirmed deletions.
// @Tags reconcile
// @Success 200 {object} reconcile.SweepReport
// @Failure 409 {object} ErrorResponse
// @Router /reconcile/sweep [post]
func (h *ReconcileHandler) Sweep(c echo.Context) error {
	report, err := h.reconciler.StartupSweep(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, report)
}

// RemoveChannel godoc
// @Summary Drop a deleted channel's configuration
// @Tags reconcile
// @Success 200 {object} map[string]bool
// @Router /communities/{community_id}/channels/{channel_id}/config [delete]
func (h *ReconcileHandler) RemoveChannel(c echo.Context) error {
	community, channel, err := channelParams(c)
	if err != nil {
		return err
	}
	removed, err := h.reconciler.ReconcileChannel(c.Request().Context(), community, channel)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"removed": removed})
}
