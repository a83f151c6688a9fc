package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/confessions/internal/channels"
	"github.com/memohai/confessions/internal/reconcile"
)

// Announcer posts the notice for an applied change in the affected channel.
type Announcer interface {
	Announce(ctx context.Context, community, channel string, out channels.Outcome)
}

// ChannelTypeRequest is the body of PUT /communities/{community_id}/channels/{channel_id}.
// Type is a type name ("vetting-anon") or its numeric value.
type ChannelTypeRequest struct {
	Type string `json:"type"`
}

// VettingResponse names the community's vetting channel.
type VettingResponse struct {
	ChannelID string               `json:"channel_id"`
	Type      channels.ChannelType `json:"type"`
}

// PermitResponse answers whether a channel may receive content of a kind.
type PermitResponse struct {
	ChannelID string               `json:"channel_id"`
	Kind      channels.Kind        `json:"kind"`
	Type      channels.ChannelType `json:"type"`
	Permitted bool                 `json:"permitted"`
	Denial    channels.Denial      `json:"denial,omitempty"`
}

// CommunityRemovedResponse reports a community removal.
type CommunityRemovedResponse struct {
	CommunityID string `json:"community_id"`
	Removed     int    `json:"removed"`
}

type ChannelsHandler struct {
	engine     *channels.Engine
	reconciler *reconcile.Reconciler
	announcer  Announcer
	logger     *slog.Logger
}

func NewChannelsHandler(log *slog.Logger, engine *channels.Engine, reconciler *reconcile.Reconciler, announcer Announcer) *ChannelsHandler {
	return &ChannelsHandler{
		engine:     engine,
		reconciler: reconciler,
		announcer:  announcer,
		logger:     log.With(slog.String("handler", "channels")),
	}
}

func (h *ChannelsHandler) Register(e *echo.Echo) {
	group := e.Group("/communities/:community_id")
	group.DELETE("", h.DeleteCommunity)
	group.GET("/vetting", h.Vetting)
	group.GET("/channels", h.List)
	group.GET("/channels/:channel_id", h.Get)
	group.GET("/channels/:channel_id/permit", h.Permit)
	group.PUT("/channels/:channel_id", h.Set)
	group.POST("/channels/:channel_id/toggle-anon", h.ToggleAnon)
	group.DELETE("/channels/:channel_id", h.Unset)
}

// List godoc
// @Summary List configured channels
// @Tags channels
// @Success 200 {object} map[string]string
// @Router /communities/{community_id}/channels [get]
func (h *ChannelsHandler) List(c echo.Context) error {
	community, err := communityParam(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.engine.Registry().GetAll(c.Request().Context(), community))
}

// Get godoc
// @Summary Get a channel's role
// @Tags channels
// @Success 200 {object} map[string]string
// @Router /communities/{community_id}/channels/{channel_id} [get]
func (h *ChannelsHandler) Get(c echo.Context) error {
	community, channel, err := channelParams(c)
	if err != nil {
		return err
	}
	t := h.engine.Registry().Get(c.Request().Context(), community, channel)
	return c.JSON(http.StatusOK, map[string]any{
		"channel_id": channel,
		"type":       t,
		"anon_id":    t.AnonID(),
	})
}

// Permit godoc
// @Summary Check a channel before relaying content to it
// @Description Reports not_configured when the channel has no role and wrong_role when it holds another kind.
// @Tags channels
// @Param kind query string true "Content kind (confessional, marketplace, vetting)"
// @Success 200 {object} PermitResponse
// @Failure 400 {object} ErrorResponse
// @Router /communities/{community_id}/channels/{channel_id}/permit [get]
func (h *ChannelsHandler) Permit(c echo.Context) error {
	community, channel, err := channelParams(c)
	if err != nil {
		return err
	}
	kind, err := channels.ParseKind(c.QueryParam("kind"))
	if err != nil {
		return httpError(err)
	}
	t, denial := h.engine.Registry().Permit(c.Request().Context(), community, channel, kind)
	return c.JSON(http.StatusOK, PermitResponse{
		ChannelID: channel,
		Kind:      kind,
		Type:      t,
		Permitted: denial == channels.DenialNone,
		Denial:    denial,
	})
}

// Set godoc
// @Summary Assign a role to a channel
// @Tags channels
// @Param payload body ChannelTypeRequest true "Requested type"
// @Success 200 {object} channels.Outcome
// @Failure 409 {object} channels.Outcome
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /communities/{community_id}/channels/{channel_id} [put]
func (h *ChannelsHandler) Set(c echo.Context) error {
	community, channel, err := channelParams(c)
	if err != nil {
		return err
	}
	var req ChannelTypeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	requested, err := channels.Parse(req.Type)
	if err != nil {
		return httpError(err)
	}
	ctx := c.Request().Context()
	out, err := h.engine.Assign(ctx, community, channel, requested)
	return h.respond(c, community, channel, out, err)
}

// ToggleAnon godoc
// @Summary Toggle anon-ids on a channel
// @Tags channels
// @Success 200 {object} channels.Outcome
// @Failure 409 {object} channels.Outcome
// @Router /communities/{community_id}/channels/{channel_id}/toggle-anon [post]
func (h *ChannelsHandler) ToggleAnon(c echo.Context) error {
	community, channel, err := channelParams(c)
	if err != nil {
		return err
	}
	out, err := h.engine.ToggleAnonID(c.Request().Context(), community, channel)
	return h.respond(c, community, channel, out, err)
}

// Unset godoc
// @Summary Remove a channel's role
// @Tags channels
// @Success 200 {object} channels.Outcome
// @Failure 409 {object} channels.Outcome
// @Router /communities/{community_id}/channels/{channel_id} [delete]
func (h *ChannelsHandler) Unset(c echo.Context) error {
	community, channel, err := channelParams(c)
	if err != nil {
		return err
	}
	out, err := h.engine.Assign(c.Request().Context(), community, channel, channels.Unset)
	return h.respond(c, community, channel, out, err)
}

// Vetting godoc
// @Summary Get the vetting channel
// @Tags channels
// @Success 200 {object} VettingResponse
// @Failure 404 {object} ErrorResponse
// @Router /communities/{community_id}/vetting [get]
func (h *ChannelsHandler) Vetting(c echo.Context) error {
	community, err := communityParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	channel, ok := h.engine.Registry().FindVettingChannel(ctx, community)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no vetting channel")
	}
	return c.JSON(http.StatusOK, VettingResponse{
		ChannelID: channel,
		Type:      h.engine.Registry().Get(ctx, community, channel),
	})
}

// DeleteCommunity godoc
// @Summary Remove all configuration of a community
// @Tags channels
// @Success 200 {object} CommunityRemovedResponse
// @Router /communities/{community_id} [delete]
func (h *ChannelsHandler) DeleteCommunity(c echo.Context) error {
	community, err := communityParam(c)
	if err != nil {
		return err
	}
	n, err := h.reconciler.ReconcileCommunity(c.Request().Context(), community)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, CommunityRemovedResponse{CommunityID: community, Removed: n})
}

// respond writes 200 for applied outcomes and 409 for rejections. Applied
// changes are announced after the response is decided.
func (h *ChannelsHandler) respond(c echo.Context, community, channel string, out channels.Outcome, err error) error {
	if err != nil {
		return httpError(err)
	}
	if !out.Applied {
		return c.JSON(http.StatusConflict, out)
	}
	if h.announcer != nil {
		h.announcer.Announce(context.WithoutCancel(c.Request().Context()), community, channel, out)
	}
	return c.JSON(http.StatusOK, out)
}

func communityParam(c echo.Context) (string, error) {
	community := strings.TrimSpace(c.Param("community_id"))
	if community == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "community id is required")
	}
	return community, nil
}

func channelParams(c echo.Context) (string, string, error) {
	community, err := communityParam(c)
	if err != nil {
		return "", "", err
	}
	channel := strings.TrimSpace(c.Param("channel_id"))
	if channel == "" {
		return "", "", echo.NewHTTPError(http.StatusBadRequest, "channel id is required")
	}
	return community, channel, nil
}
