package model

import "time"

// BookingStatus tracks where a purchase stands relative to its group.
type BookingStatus string

const (
	BookingConfirmed           BookingStatus = "confirmed"            // paid, group not yet full
	BookingPendingConfirmation BookingStatus = "pending_confirmation" // group full, staff must confirm
	BookingTicketsSent         BookingStatus = "tickets_sent"         // tickets issued
)

// Booking is the user-facing record of a purchase.  GroupID is empty
// for ad hoc purchases made outside a group; such bookings never leave
// BookingConfirmed.
type Booking struct {
	ID              string         `json:"id"`
	UserID          string         `json:"userId"`
	UserName        string         `json:"userName"`
	GroupID         string         `json:"groupId,omitempty"`
	AttractionID    int            `json:"attractionId"`
	AttractionName  string         `json:"attractionName"`
	Date            string         `json:"date,omitempty"`
	Time            string         `json:"time,omitempty"`
	NumberOfTickets int            `json:"numberOfTickets"`
	TicketHolders   []TicketHolder `json:"ticketHolders"`
	TotalPaidCents  int64          `json:"totalPaidCents"`
	Status          BookingStatus  `json:"status"`
	CreatedAt       time.Time      `json:"createdAt"`
	StatusUpdatedAt *time.Time     `json:"statusUpdatedAt,omitempty"`
}

// BookingStatusFor returns the status a booking for g should carry
// right now.  Bookings recorded after the group filled up start at the
// group's stage instead of lagging behind at confirmed.
func BookingStatusFor(g *Group) BookingStatus {
	switch {
	case g == nil:
		return BookingConfirmed
	case g.TicketsIssued():
		return BookingTicketsSent
	case g.Status == GroupFull:
		return BookingPendingConfirmation
	}
	return BookingConfirmed
}

// rank orders statuses along the booking's one-way path.
func (s BookingStatus) rank() int {
	switch s {
	case BookingPendingConfirmation:
		return 1
	case BookingTicketsSent:
		return 2
	}
	return 0
}

// Precedes reports whether moving from s to next is a step forward.
// Bookings never move backwards, so re-running an earlier stage is a
// no-op.
func (s BookingStatus) Precedes(next BookingStatus) bool {
	return s.rank() < next.rank()
}

// Valid reports whether s is a known status.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingConfirmed, BookingPendingConfirmation, BookingTicketsSent:
		return true
	}
	return false
}
