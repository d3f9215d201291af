// Package lifecycle is the decision logic for groups: how one is opened,
// how it grows when members join and when it becomes full.  Everything
// here is pure; loading, saving and side effects live in the service
// package.
package lifecycle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/grouptrip/internal/model"
)

var (
	// ErrInvalid marks malformed input (ticket counts, holders, schedule).
	ErrInvalid = errors.New("invalid input")
	// ErrAlreadyMember is returned when a user joins a group twice.
	ErrAlreadyMember = errors.New("user already joined this group")
	// ErrGroupClosed is returned when tickets were already issued.
	ErrGroupClosed = errors.New("group no longer accepts members")
)

// Transition describes what a mutation did to the group status.
type Transition int

const (
	NoTransition Transition = iota
	BecameFull              // open -> full happened in this mutation
)

// Policy carries the sizing knobs.  MaxCapacity of zero means capacity
// may grow without bound.
type Policy struct {
	DefaultCapacity int
	DefaultMinimum  int
	MaxCapacity     int
}

// DefaultPolicy matches the catalog defaults: 15 nominal slots, 15
// tickets to fill, no ceiling.
func DefaultPolicy() Policy {
	return Policy{DefaultCapacity: 15, DefaultMinimum: 15}
}

// NewGroupParams is everything needed to open a group.
type NewGroupParams struct {
	ID            string
	Attraction    model.Attraction
	Date          string
	Time          string
	Organizer     model.Actor
	TicketCount   int
	TicketHolders []model.TicketHolder
	Now           time.Time
}

// NewGroup opens a group with the organizer as its first member.  When
// the organizer alone reaches the minimum the group is born full.
func (p Policy) NewGroup(in NewGroupParams) (model.Group, Transition, error) {
	if in.ID == "" {
		return model.Group{}, NoTransition, fmt.Errorf("%w: group id required", ErrInvalid)
	}
	if in.Attraction.ID == 0 || in.Attraction.Name == "" {
		return model.Group{}, NoTransition, fmt.Errorf("%w: attraction required", ErrInvalid)
	}
	if err := ValidateSchedule(in.Date, in.Time); err != nil {
		return model.Group{}, NoTransition, err
	}
	holders, err := ValidateHolders(in.TicketCount, in.TicketHolders)
	if err != nil {
		return model.Group{}, NoTransition, err
	}
	if err := p.checkCeiling(in.TicketCount); err != nil {
		return model.Group{}, NoTransition, err
	}

	capacity := p.DefaultCapacity
	if in.TicketCount > capacity {
		capacity = in.TicketCount // organizer may open an oversized group
	}
	minimum := in.Attraction.MinPeople
	if minimum <= 0 {
		minimum = p.DefaultMinimum
	}
	now := in.Now.UTC()
	g := model.Group{
		ID:                in.ID,
		AttractionID:      in.Attraction.ID,
		AttractionName:    in.Attraction.Name,
		Location:          in.Attraction.Location,
		Category:          in.Attraction.Category,
		Date:              in.Date,
		Time:              in.Time,
		Capacity:          capacity,
		MinimumRequired:   minimum,
		CurrentMembers:    in.TicketCount,
		Status:            model.GroupOpen,
		GroupPriceCents:   in.Attraction.GroupPriceCents,
		RegularPriceCents: in.Attraction.RegularPriceCents,
		OrganizerID:       in.Organizer.UserID,
		OrganizerName:     in.Organizer.DisplayName(),
		OrganizerEmail:    in.Organizer.Email,
		CreatedAt:         now,
		Members: []model.Member{{
			UserID:          in.Organizer.UserID,
			Name:            in.Organizer.DisplayName(),
			Email:           in.Organizer.Email,
			NumberOfTickets: in.TicketCount,
			TicketHolders:   holders,
			IsOrganizer:     true,
			JoinedAt:        now,
		}},
	}
	return g, markFullIfReached(&g, now), nil
}

// Admit adds actor to g with count tickets.  g is only modified when
// nil is returned.  Capacity stretches to absorb any overshoot and the
// group flips to full once MinimumRequired is met.
func (p Policy) Admit(g *model.Group, actor model.Actor, count int, holders []model.TicketHolder, now time.Time) (Transition, error) {
	clean, err := ValidateHolders(count, holders)
	if err != nil {
		return NoTransition, err
	}
	if g.HasMember(actor.UserID) {
		return NoTransition, ErrAlreadyMember
	}
	if g.TicketsIssued() {
		return NoTransition, ErrGroupClosed
	}
	total := g.CurrentMembers + count
	if err := p.checkCeiling(total); err != nil {
		return NoTransition, err
	}

	now = now.UTC()
	g.Members = append(g.Members, model.Member{
		UserID:          actor.UserID,
		Name:            actor.DisplayName(),
		Email:           actor.Email,
		NumberOfTickets: count,
		TicketHolders:   clean,
		JoinedAt:        now,
	})
	g.CurrentMembers = total
	if g.CurrentMembers > g.Capacity {
		g.Capacity = g.CurrentMembers
	}
	return markFullIfReached(g, now), nil
}

// markFullIfReached applies the only fullness rule: CurrentMembers
// against MinimumRequired.  Capacity plays no part.
func markFullIfReached(g *model.Group, now time.Time) Transition {
	if g.Status != model.GroupOpen || g.CurrentMembers < g.MinimumRequired {
		return NoTransition
	}
	g.Status = model.GroupFull
	g.CompletedAt = &now
	return BecameFull
}

func (p Policy) checkCeiling(total int) error {
	if p.MaxCapacity > 0 && total > p.MaxCapacity {
		return fmt.Errorf("%w: group would hold %d tickets, limit is %d", ErrInvalid, total, p.MaxCapacity)
	}
	return nil
}

// ValidateHolders checks a ticket request and returns the holders with
// trimmed names.
func ValidateHolders(count int, holders []model.TicketHolder) ([]model.TicketHolder, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: ticket count must be at least 1", ErrInvalid)
	}
	if len(holders) != count {
		return nil, fmt.Errorf("%w: %d ticket holders for %d tickets", ErrInvalid, len(holders), count)
	}
	out := make([]model.TicketHolder, len(holders))
	for i, h := range holders {
		name := strings.TrimSpace(h.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: ticket holder %d has no name", ErrInvalid, i+1)
		}
		out[i] = model.TicketHolder{Name: name, IsChild: h.IsChild}
	}
	return out, nil
}

// ValidateSchedule accepts dates as YYYY-MM-DD and times as HH:MM.
func ValidateSchedule(date, clock string) error {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalid)
	}
	if _, err := time.Parse("15:04", clock); err != nil {
		return fmt.Errorf("%w: time must be HH:MM", ErrInvalid)
	}
	return nil
}

// CheckInvariants reports the first broken group invariant, if any.
func CheckInvariants(g *model.Group) error {
	if got := g.TicketTotal(); got != g.CurrentMembers {
		return fmt.Errorf("currentMembers %d != ticket total %d", g.CurrentMembers, got)
	}
	if g.Capacity < g.CurrentMembers {
		return fmt.Errorf("capacity %d below currentMembers %d", g.Capacity, g.CurrentMembers)
	}
	for i, m := range g.Members {
		if m.IsOrganizer != (i == 0) {
			return fmt.Errorf("member %d organizer flag is %v", i, m.IsOrganizer)
		}
		if len(m.TicketHolders) != m.NumberOfTickets {
			return fmt.Errorf("member %s has %d holders for %d tickets", m.UserID, len(m.TicketHolders), m.NumberOfTickets)
		}
	}
	if g.Status == model.GroupFull && g.CompletedAt == nil {
		return errors.New("full group without completedAt")
	}
	return nil
}
