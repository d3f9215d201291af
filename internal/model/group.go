package model

import "time"

// GroupStatus is the lifecycle state of a Group.  A group starts OPEN
// and moves to FULL once its ticket count reaches MinimumRequired.
// There is no way back: FULL is terminal for the lifecycle, ticket
// issuance is tracked separately through TicketsSentAt.
type GroupStatus string

const (
	GroupOpen GroupStatus = "open" // still collecting members
	GroupFull GroupStatus = "full" // minimum reached, waiting for staff
)

// TicketHolder is one named person a ticket is issued for.  A member
// buying three tickets supplies three holders.
type TicketHolder struct {
	Name    string `json:"name"`
	IsChild bool   `json:"isChild"`
}

// Member is one user's participation in a Group.  Name and Email are
// snapshotted from the identity at join time.
type Member struct {
	UserID          string         `json:"userId"`
	Name            string         `json:"name"`
	Email           string         `json:"email"`
	NumberOfTickets int            `json:"numberOfTickets"`
	TicketHolders   []TicketHolder `json:"ticketHolders"`
	IsOrganizer     bool           `json:"isOrganizer"`
	JoinedAt        time.Time      `json:"joinedAt"`
}

// Group is a shared reservation for one attraction on one date and
// time.  The attraction fields and prices are a snapshot taken from
// the catalog when the group was created.
//
// Invariants maintained by the lifecycle package:
//   - CurrentMembers equals the sum of NumberOfTickets over Members
//   - Capacity >= CurrentMembers, and Capacity never shrinks
//   - Members[0] is the organizer
//   - once Status is GroupFull it stays GroupFull
type Group struct {
	ID                string      `json:"id"`
	AttractionID      int         `json:"attractionId"`
	AttractionName    string      `json:"attractionName"`
	Location          string      `json:"location"`
	Category          string      `json:"category"`
	Date              string      `json:"date"` // YYYY-MM-DD
	Time              string      `json:"time"` // HH:MM
	Capacity          int         `json:"capacity"`
	MinimumRequired   int         `json:"minimumRequired"`
	CurrentMembers    int         `json:"currentMembers"`
	Members           []Member    `json:"members"`
	Status            GroupStatus `json:"status"`
	GroupPriceCents   int64       `json:"groupPriceCents"`
	RegularPriceCents int64       `json:"regularPriceCents"`
	OrganizerID       string      `json:"organizerId"`
	OrganizerName     string      `json:"organizerName"`
	OrganizerEmail    string      `json:"organizerEmail"`
	CreatedAt         time.Time   `json:"createdAt"`
	CompletedAt       *time.Time  `json:"completedAt,omitempty"`
	TicketsSentAt     *time.Time  `json:"ticketsSentAt,omitempty"`

	// Version is the store version the group was loaded at.  It is
	// not part of the persisted document; repositories fill it in on
	// load and compare it on save.
	Version int64 `json:"-"`
}

// HasMember reports whether userID already belongs to the group.
func (g *Group) HasMember(userID string) bool {
	return g.MemberByUser(userID) != nil
}

// MemberByUser returns the membership of userID or nil.
func (g *Group) MemberByUser(userID string) *Member {
	for i := range g.Members {
		if g.Members[i].UserID == userID {
			return &g.Members[i]
		}
	}
	return nil
}

// TicketTotal sums NumberOfTickets across all members.
func (g *Group) TicketTotal() int {
	n := 0
	for _, m := range g.Members {
		n += m.NumberOfTickets
	}
	return n
}

// IsOpenForListing is true for groups shown on the public list: still
// open and with nominal slots left.
func (g *Group) IsOpenForListing() bool {
	return g.Status == GroupOpen && g.CurrentMembers < g.Capacity
}

// TicketsIssued reports whether staff already issued tickets.
func (g *Group) TicketsIssued() bool { return g.TicketsSentAt != nil }
