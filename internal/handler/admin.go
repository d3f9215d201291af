package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/grouptrip/internal/middleware"
)

// ListFullGroups handles GET /v1/admin/groups/full.
func (h *GroupHandler) ListFullGroups(c echo.Context) error {
	groups, err := h.svc.ListFullGroups(c.Request().Context(), middleware.ActorFrom(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"groups": groups})
}

// SendTickets handles POST /v1/admin/groups/:id/send-tickets: staff
// confirmed availability, issue and deliver the tickets.
func (h *GroupHandler) SendTickets(c echo.Context) error {
	res, err := h.svc.IssueTickets(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ResetAllGroups handles DELETE /v1/admin/groups.
func (h *GroupHandler) ResetAllGroups(c echo.Context) error {
	res, err := h.svc.ResetAllGroups(c.Request().Context(), middleware.ActorFrom(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, res)
}
