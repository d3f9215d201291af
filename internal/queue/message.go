package queue

import (
	"fmt"
	"strings"
)

// EmailSubject is the subject line of the ticket email.
func EmailSubject(ev TicketsIssuedEvent) string {
	return fmt.Sprintf("Twoje bilety na %s są gotowe!", ev.AttractionName)
}

// RenderEmail renders the ticket email for ev as a single log line.
func RenderEmail(ev TicketsIssuedEvent) string {
	ids := make([]string, len(ev.Tickets))
	for i, t := range ev.Tickets {
		ids[i] = t.TicketID
	}
	return fmt.Sprintf("EMAIL to=%s | subject=%q | group=%s | when=\"%s %s\" | where=%q | tickets=%d | ids=[%s]",
		ev.Email, EmailSubject(ev), ev.GroupID, ev.Date, ev.Time, ev.Location, len(ev.Tickets), strings.Join(ids, ","))
}

// RenderSMS renders the short text message for ev.
func RenderSMS(ev TicketsIssuedEvent) string {
	first := "-"
	if len(ev.Tickets) > 0 {
		first = ev.Tickets[0].TicketID
	}
	return fmt.Sprintf("SMS to=%s | GroupTrip: Grupa zapełniona! Twoje bilety (%d) na %s czekają w aplikacji. Bilet #%s",
		ev.Email, len(ev.Tickets), ev.AttractionName, first)
}
