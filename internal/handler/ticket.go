package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/grouptrip/internal/middleware"
)

// ListMyTickets handles GET /v1/me/tickets.
func (h *GroupHandler) ListMyTickets(c echo.Context) error {
	tickets, err := h.svc.ListUserTickets(c.Request().Context(), middleware.ActorFrom(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"tickets": tickets})
}

// ListGroupTickets handles GET /v1/groups/:id/tickets and returns the
// caller's own tickets for that group.
func (h *GroupHandler) ListGroupTickets(c echo.Context) error {
	tickets, err := h.svc.ListGroupTickets(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"tickets": tickets})
}

// TicketQR handles GET /v1/groups/:id/tickets/:index/qr.png.
func (h *GroupHandler) TicketQR(c echo.Context) error {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil || idx < 0 {
		return badRequest(c, "invalid ticket index")
	}
	png, err := h.svc.TicketQRCode(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"), idx)
	if err != nil {
		return respondError(c, h.log, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=300")
	return c.Blob(http.StatusOK, "image/png", png)
}
