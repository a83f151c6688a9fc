package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/confessions/internal/settings"
)

// BanResponse reports whether a ban change had an effect.
type BanResponse struct {
	AnonID  string `json:"anon_id"`
	Changed bool   `json:"changed"`
}

// BanStatusResponse reports whether an anon-id is banned.
type BanStatusResponse struct {
	AnonID string `json:"anon_id"`
	Banned bool   `json:"banned"`
}

type SettingsHandler struct {
	service *settings.Service
	logger  *slog.Logger
}

func NewSettingsHandler(log *slog.Logger, service *settings.Service) *SettingsHandler {
	return &SettingsHandler{
		service: service,
		logger:  log.With(slog.String("handler", "settings")),
	}
}

func (h *SettingsHandler) Register(e *echo.Echo) {
	group := e.Group("/communities/:community_id")
	group.GET("/settings", h.Get)
	group.PUT("/settings", h.Upsert)
	group.POST("/shuffle", h.Shuffle)
	group.GET("/bans/:anon_id", h.BanStatus)
	group.PUT("/bans/:anon_id", h.Ban)
	group.DELETE("/bans/:anon_id", h.Unban)
}

// Get godoc
// @Summary Get community settings
// @Tags settings
// @Success 200 {object} settings.Settings
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /communities/{community_id}/settings [get]
func (h *SettingsHandler) Get(c echo.Context) error {
	community, err := communityParam(c)
	if err != nil {
		return err
	}
	resp, err := h.service.Get(c.Request().Context(), community)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Upsert godoc
// @Summary Update community settings
// @Tags settings
// @Param payload body settings.UpsertRequest true "Settings payload"
// @Success 200 {object} settings.Settings
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /communities/{community_id}/settings [put]
func (h *SettingsHandler) Upsert(c echo.Context) error {
	community, err := communityParam(c)
	if err != nil {
		return err
	}
	var req settings.UpsertRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := h.service.Upsert(c.Request().Context(), community, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Shuffle godoc
// @Summary Rotate every anon-id of a community
// @Tags settings
// @Param payload body settings.ShuffleRequest false "Shuffle options"
// @Success 200 {object} settings.Settings
// @Router /communities/{community_id}/shuffle [post]
func (h *SettingsHandler) Shuffle(c echo.Context) error {
	community, err := communityParam(c)
	if err != nil {
		return err
	}
	var req settings.ShuffleRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	resp, err := h.service.Shuffle(c.Request().Context(), community, req.ResetBans)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// BanStatus godoc
// @Summary Check whether an anon-id is banned
// @Tags settings
// @Success 200 {object} BanStatusResponse
// @Router /communities/{community_id}/bans/{anon_id} [get]
func (h *SettingsHandler) BanStatus(c echo.Context) error {
	community, err := communityParam(c)
	if err != nil {
		return err
	}
	anonID := strings.TrimSpace(c.Param("anon_id"))
	banned, err := h.service.IsBanned(c.Request().Context(), community, anonID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, BanStatusResponse{AnonID: strings.ToLower(anonID), Banned: banned})
}

// Ban godoc
// @Summary Ban an anon-id
// @Tags settings
// @Success 200 {object} BanResponse
// @Router /communities/{community_id}/bans/{anon_id} [put]
func (h *SettingsHandler) Ban(c echo.Context) error {
	community, err := communityParam(c)
	if err != nil {
		return err
	}
	anonID := strings.TrimSpace(c.Param("anon_id"))
	changed, err := h.service.Ban(c.Request().Context(), community, anonID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, BanResponse{AnonID: strings.ToLower(anonID), Changed: changed})
}

// Unban godoc
// @Summary Lift a ban on an anon-id
// @Tags settings
// @Success 200 {object} BanResponse
// @Router /communities/{community_id}/bans/{anon_id} [delete]
func (h *SettingsHandler) Unban(c echo.Context) error {
	community, err := communityParam(c)
	if err != nil {
		return err
	}
	anonID := strings.TrimSpace(c.Param("anon_id"))
	changed, err := h.service.Unban(c.Request().Context(), community, anonID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, BanResponse{AnonID: strings.ToLower(anonID), Changed: changed})
}
