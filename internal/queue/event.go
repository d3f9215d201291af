// Package queue carries ticket notifications over RabbitMQ: the
// publisher the booking core hands issued tickets to, and the consumer
// that turns them into (simulated) email and SMS messages.
package queue

import (
	"time"

	"github.com/iliyamo/grouptrip/internal/model"
)

// TicketsIssuedQueue is the durable queue ticket notifications go to.
const TicketsIssuedQueue = "tickets.issued"

// IssuedTicket is the part of a ticket a notification needs.
type IssuedTicket struct {
	TicketID   string `json:"ticket_id"`
	HolderName string `json:"holder_name"`
	IsChild    bool   `json:"is_child"`
	QRCode     string `json:"qr_code"`
}

// TicketsIssuedEvent is published once per member when their tickets
// are issued.  It is self-contained so the consumer never reads the
// store.
type TicketsIssuedEvent struct {
	GroupID        string         `json:"group_id"`
	AttractionName string         `json:"attraction_name"`
	Location       string         `json:"location"`
	Date           string         `json:"date"`
	Time           string         `json:"time"`
	UserID         string         `json:"user_id"`
	MemberName     string         `json:"member_name"`
	Email          string         `json:"email"`
	Tickets        []IssuedTicket `json:"tickets"`
	IssuedAt       string         `json:"issued_at"`
}

// NewTicketsIssuedEvent builds the event for one member of g.
func NewTicketsIssuedEvent(g *model.Group, m model.Member, tickets []model.Ticket) TicketsIssuedEvent {
	issued := time.Now().UTC()
	if g.TicketsSentAt != nil {
		issued = g.TicketsSentAt.UTC()
	}
	ev := TicketsIssuedEvent{
		GroupID:        g.ID,
		AttractionName: g.AttractionName,
		Location:       g.Location,
		Date:           g.Date,
		Time:           g.Time,
		UserID:         m.UserID,
		MemberName:     m.Name,
		Email:          m.Email,
		Tickets:        make([]IssuedTicket, len(tickets)),
		IssuedAt:       issued.Format(time.RFC3339),
	}
	for i, t := range tickets {
		ev.Tickets[i] = IssuedTicket{TicketID: t.TicketID, HolderName: t.HolderName, IsChild: t.IsChild, QRCode: t.QRCode}
	}
	return ev
}
