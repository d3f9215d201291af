package model

import "time"

// Ticket is one QR-bearing credential for one ticket holder.  The
// attraction fields are denormalized so a ticket renders on its own.
type Ticket struct {
	TicketID       string    `json:"ticketId"`
	GroupID        string    `json:"groupId"`
	UserID         string    `json:"userId"`
	HolderIndex    int       `json:"holderIndex"`
	HolderName     string    `json:"holderName"`
	IsChild        bool      `json:"isChild"`
	AttractionName string    `json:"attractionName"`
	Location       string    `json:"location"`
	Date           string    `json:"date"`
	Time           string    `json:"time"`
	QRCode         string    `json:"qrCode"`
	GeneratedAt    time.Time `json:"generatedAt"`
}
