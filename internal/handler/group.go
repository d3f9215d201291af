package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/grouptrip/internal/middleware"
	"github.com/iliyamo/grouptrip/internal/model"
	"github.com/iliyamo/grouptrip/internal/service"
)

// GroupHandler exposes the group, booking, ticket and staff operations
// of the service over HTTP.  Authentication has already happened in
// middleware; every method passes the resulting actor on.
type GroupHandler struct {
	svc *service.GroupService
	log zerolog.Logger
}

// NewGroupHandler panics on a nil service.
func NewGroupHandler(svc *service.GroupService, log zerolog.Logger) *GroupHandler {
	if svc == nil {
		panic("nil service passed to NewGroupHandler")
	}
	return &GroupHandler{svc: svc, log: log.With().Str("component", "handler").Logger()}
}

type ticketRequest struct {
	TicketCount     int                  `json:"ticketCount"`
	TicketHolders   []model.TicketHolder `json:"ticketHolders"`
	AmountPaidCents *int64               `json:"amountPaidCents"`
}

type createGroupRequest struct {
	AttractionID int    `json:"attractionId"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	ticketRequest
}

// ListAttractions handles GET /v1/attractions.
func (h *GroupHandler) ListAttractions(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"attractions": h.svc.ListAttractions()})
}

// ListOpenGroups handles GET /v1/groups.
func (h *GroupHandler) ListOpenGroups(c echo.Context) error {
	groups, err := h.svc.ListOpenGroups(c.Request().Context())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"groups": groups})
}

// GetGroup handles GET /v1/groups/:id.
func (h *GroupHandler) GetGroup(c echo.Context) error {
	g, err := h.svc.GetGroup(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"group": g})
}

// CreateGroup handles POST /v1/groups.  The caller becomes organizer.
func (h *GroupHandler) CreateGroup(c echo.Context) error {
	var body createGroupRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	g, err := h.svc.CreateGroup(c.Request().Context(), middleware.ActorFrom(c), service.CreateGroupInput{
		AttractionID:    body.AttractionID,
		Date:            body.Date,
		Time:            body.Time,
		TicketCount:     body.TicketCount,
		TicketHolders:   body.TicketHolders,
		AmountPaidCents: body.AmountPaidCents,
	})
	if err != nil {
		return respondGroupError(c, h.log, http.StatusCreated, g, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"group": g})
}

// JoinGroup handles POST /v1/groups/:id/join.
func (h *GroupHandler) JoinGroup(c echo.Context) error {
	var body ticketRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	g, err := h.svc.JoinGroup(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"), service.JoinInput{
		TicketCount:     body.TicketCount,
		TicketHolders:   body.TicketHolders,
		AmountPaidCents: body.AmountPaidCents,
	})
	if err != nil {
		return respondGroupError(c, h.log, http.StatusOK, g, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"group": g})
}

// respondGroupError keeps a saved group visible when only its booking
// failed, so the client does not retry a join that already happened.
func respondGroupError(c echo.Context, log zerolog.Logger, status int, g *model.Group, err error) error {
	if g != nil && errors.Is(err, service.ErrBookingNotRecorded) {
		return c.JSON(status, echo.Map{"group": g, "bookingError": "booking_not_recorded"})
	}
	return respondError(c, log, err)
}

// ListMyGroups handles GET /v1/me/groups?mode=organizer|member.
func (h *GroupHandler) ListMyGroups(c echo.Context) error {
	mode := service.GroupListMode(c.QueryParam("mode"))
	groups, err := h.svc.ListUserGroups(c.Request().Context(), middleware.ActorFrom(c), mode)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"groups": groups})
}
