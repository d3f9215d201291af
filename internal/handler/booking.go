package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/grouptrip/internal/middleware"
	"github.com/iliyamo/grouptrip/internal/model"
	"github.com/iliyamo/grouptrip/internal/service"
)

type bookingRequest struct {
	GroupID         string               `json:"groupId"`
	AttractionID    int                  `json:"attractionId"`
	Date            string               `json:"date"`
	Time            string               `json:"time"`
	TicketCount     int                  `json:"ticketCount"`
	TicketHolders   []model.TicketHolder `json:"ticketHolders"`
	AmountPaidCents *int64               `json:"amountPaidCents"`
}

// CreateBooking handles POST /v1/bookings.  amountPaidCents is
// required; payment itself happened elsewhere.
func (h *GroupHandler) CreateBooking(c echo.Context) error {
	var body bookingRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.AmountPaidCents == nil {
		return badRequest(c, "amountPaidCents is required")
	}
	b, err := h.svc.CreateBooking(c.Request().Context(), middleware.ActorFrom(c), service.BookingInput{
		GroupID:         body.GroupID,
		AttractionID:    body.AttractionID,
		Date:            body.Date,
		Time:            body.Time,
		TicketCount:     body.TicketCount,
		TicketHolders:   body.TicketHolders,
		AmountPaidCents: *body.AmountPaidCents,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"booking": b})
}

// ListMyBookings handles GET /v1/me/bookings.
func (h *GroupHandler) ListMyBookings(c echo.Context) error {
	bookings, err := h.svc.ListUserBookings(c.Request().Context(), middleware.ActorFrom(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": bookings})
}
